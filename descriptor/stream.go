//go:build linux

package descriptor

import (
	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-asyncsock/endpoint"
	"github.com/joeycumines/go-asyncsock/errkind"
)

// ShutdownDirection selects which half of a full-duplex stream to shut
// down.
type ShutdownDirection int

const (
	ShutdownSend ShutdownDirection = iota
	ShutdownReceive
	ShutdownBoth
)

// Connect initiates (or, for a non-blocking socket, begins) a connection to
// ep. A non-blocking connect in progress reports WouldBlock; the caller
// polls for writability and then calls ConnectResult to retrieve the
// outcome.
func (d *Descriptor) Connect(ep endpoint.Endpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return errkind.New(errkind.Invalid, "descriptor not open")
	}
	sa, err := toSockaddr(ep, d.transport)
	if err != nil {
		return err
	}
	if err := unix.Connect(d.fd, sa); err != nil {
		if err == unix.EINPROGRESS {
			return errkind.New(errkind.WouldBlock, "connect in progress")
		}
		return translateErrno(err, "connect")
	}
	return nil
}

// ConnectResult reads SO_ERROR after a non-blocking connect's fd becomes
// writable, reporting the final outcome.
func (d *Descriptor) ConnectResult() error {
	d.mu.Lock()
	fd := d.fd
	d.mu.Unlock()
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return errkind.Wrap(errkind.Unknown, "getsockopt so_error", err)
	}
	if errno != 0 {
		return translateErrno(unix.Errno(errno), "connect")
	}
	return nil
}

// Send writes buf to the connected stream, returning the number of bytes
// written (possibly fewer than len(buf): partial writes are not errors) and
// WouldBlock if the socket's send buffer is currently full.
func (d *Descriptor) Send(buf []byte) (int, error) {
	d.mu.Lock()
	fd := d.fd
	open := d.open
	d.mu.Unlock()
	if !open {
		return 0, errkind.New(errkind.Invalid, "descriptor not open")
	}
	n, err := unix.Write(fd, buf)
	if err != nil {
		return 0, translateErrno(err, "send")
	}
	return n, nil
}

// Receive reads into buf, returning the number of bytes read. A read of
// zero bytes (peer shut down its send side) is reported as an EOF error.
func (d *Descriptor) Receive(buf []byte) (int, error) {
	d.mu.Lock()
	fd := d.fd
	open := d.open
	d.mu.Unlock()
	if !open {
		return 0, errkind.New(errkind.Invalid, "descriptor not open")
	}
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, translateErrno(err, "receive")
	}
	if n == 0 {
		return 0, errkind.New(errkind.EOF, "peer closed connection")
	}
	return n, nil
}

// Shutdown shuts down one or both directions of a connected stream.
func (d *Descriptor) Shutdown(dir ShutdownDirection) error {
	d.mu.Lock()
	fd := d.fd
	open := d.open
	d.mu.Unlock()
	if !open {
		return errkind.New(errkind.Invalid, "descriptor not open")
	}
	var how int
	switch dir {
	case ShutdownSend:
		how = unix.SHUT_WR
	case ShutdownReceive:
		how = unix.SHUT_RD
	default:
		how = unix.SHUT_RDWR
	}
	if err := unix.Shutdown(fd, how); err != nil {
		return translateErrno(err, "shutdown")
	}
	return nil
}

// Listen marks the descriptor as accepting connections with the given
// backlog.
func (d *Descriptor) Listen(backlog int) error {
	d.mu.Lock()
	fd := d.fd
	open := d.open
	d.mu.Unlock()
	if !open {
		return errkind.New(errkind.Invalid, "descriptor not open")
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return translateErrno(err, "listen")
	}
	return nil
}

// Accept pops one pending connection, returning the new connected handle's
// raw fd and the peer's endpoint. WouldBlock means no connection is
// currently pending.
func (d *Descriptor) Accept() (int, endpoint.Endpoint, error) {
	d.mu.Lock()
	fd := d.fd
	open := d.open
	d.mu.Unlock()
	if !open {
		return -1, endpoint.Endpoint{}, errkind.New(errkind.Invalid, "descriptor not open")
	}
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
	if err != nil {
		return -1, endpoint.Endpoint{}, translateErrno(err, "accept")
	}
	return nfd, fromSockaddr(sa), nil
}

// Unlink removes the filesystem path of a local-transport descriptor
// (meaningful only after Bind on a local endpoint).
func (d *Descriptor) Unlink(path string) error {
	if path == "" {
		return nil
	}
	if err := unix.Unlink(path); err != nil {
		return translateErrno(err, "unlink")
	}
	return nil
}
