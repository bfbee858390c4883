//go:build linux

// Package descriptor implements §4.1: the owned OS socket handle plus the
// blocking socket operations (open/bind/connect/send/receive/listen/accept/
// shutdown/multicast) layered directly over it. It never throws; every
// operation returns a *errkind.Error.
package descriptor

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-asyncsock/endpoint"
	"github.com/joeycumines/go-asyncsock/errkind"
)

// Descriptor is an owned OS socket handle plus its transport tag. It owns
// the handle for its entire lifetime; Close is idempotent.
type Descriptor struct {
	mu        sync.Mutex
	fd        int
	transport endpoint.Transport
	open      bool
	blocking  bool
	lastErr   error
}

// New returns an unopened Descriptor.
func New() *Descriptor {
	return &Descriptor{fd: -1}
}

func domainFamily(t endpoint.Transport) (domain, typ, proto int, err error) {
	switch t {
	case endpoint.UDPIPv4:
		return unix.AF_INET, unix.SOCK_DGRAM, 0, nil
	case endpoint.UDPIPv6:
		return unix.AF_INET6, unix.SOCK_DGRAM, 0, nil
	case endpoint.TCPIPv4:
		return unix.AF_INET, unix.SOCK_STREAM, 0, nil
	case endpoint.TCPIPv6:
		return unix.AF_INET6, unix.SOCK_STREAM, 0, nil
	case endpoint.LocalDatagram:
		return unix.AF_UNIX, unix.SOCK_DGRAM, 0, nil
	case endpoint.LocalStream:
		return unix.AF_UNIX, unix.SOCK_STREAM, 0, nil
	default:
		return 0, 0, 0, errkind.New(errkind.Invalid, "undefined transport")
	}
}

// Open creates a new OS socket of the given transport. Calling Open on an
// already-open Descriptor fails with Already.
func (d *Descriptor) Open(t endpoint.Transport) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return errkind.New(errkind.Already, "descriptor already open")
	}
	domain, typ, proto, err := domainFamily(t)
	if err != nil {
		return err
	}
	fd, sysErr := unix.Socket(domain, typ|unix.SOCK_CLOEXEC, proto)
	if sysErr != nil {
		return errkind.Wrap(errkind.Unknown, "socket", sysErr).WithCode(int(errnoOf(sysErr)))
	}
	d.fd = fd
	d.transport = t
	d.open = true
	d.blocking = true
	return nil
}

// Acquire takes ownership of an already-open raw OS handle, if this
// Descriptor does not already own one.
func (d *Descriptor) Acquire(fd int, t endpoint.Transport) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return errkind.New(errkind.Already, "descriptor already owns a handle")
	}
	d.fd = fd
	d.transport = t
	d.open = true
	return nil
}

// Release relinquishes ownership of the raw handle without closing it,
// returning it to the caller.
func (d *Descriptor) Release() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return -1, errkind.New(errkind.Invalid, "descriptor not open")
	}
	fd := d.fd
	d.fd = -1
	d.open = false
	return fd, nil
}

// Close closes the OS handle. Closing an already-closed Descriptor is a
// no-op.
func (d *Descriptor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	fd := d.fd
	d.fd = -1
	d.open = false
	if err := unix.Close(fd); err != nil {
		return errkind.Wrap(errkind.Unknown, "close", err)
	}
	return nil
}

// FD returns the raw OS handle, or -1 if not open. It is exposed for
// registration with a reactor/proactor; callers must not close it directly.
func (d *Descriptor) FD() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fd
}

// Transport returns the transport tag this descriptor was opened with.
func (d *Descriptor) Transport() endpoint.Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport
}

// IsOpen reports whether this Descriptor currently owns a handle.
func (d *Descriptor) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func toSockaddr(e endpoint.Endpoint, t endpoint.Transport) (unix.Sockaddr, error) {
	switch {
	case t.IsLocal():
		return &unix.SockaddrUnix{Name: e.Path()}, nil
	case t == endpoint.UDPIPv4, t == endpoint.TCPIPv4:
		var sa unix.SockaddrInet4
		ip := e.Addr().To4()
		if ip == nil {
			return nil, errkind.New(errkind.Invalid, "endpoint is not an IPv4 address")
		}
		copy(sa.Addr[:], ip)
		sa.Port = int(e.Port())
		return &sa, nil
	case t == endpoint.UDPIPv6, t == endpoint.TCPIPv6:
		var sa unix.SockaddrInet6
		ip := e.Addr().To16()
		if ip == nil {
			return nil, errkind.New(errkind.Invalid, "endpoint is not an IPv6 address")
		}
		copy(sa.Addr[:], ip)
		sa.Port = int(e.Port())
		return &sa, nil
	default:
		return nil, errkind.New(errkind.Invalid, "unsupported transport for sockaddr")
	}
}

func fromSockaddr(sa unix.Sockaddr) endpoint.Endpoint {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return endpoint.IP(append([]byte(nil), a.Addr[:]...), uint16(a.Port))
	case *unix.SockaddrInet6:
		return endpoint.IP(append([]byte(nil), a.Addr[:]...), uint16(a.Port))
	case *unix.SockaddrUnix:
		return endpoint.Local(a.Name)
	default:
		return endpoint.Endpoint{}
	}
}

// Bind binds the descriptor to endpoint ep, optionally setting SO_REUSEADDR
// first.
func (d *Descriptor) Bind(ep endpoint.Endpoint, reuseAddr bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return errkind.New(errkind.Invalid, "descriptor not open")
	}
	if reuseAddr {
		_ = unix.SetsockoptInt(d.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}
	sa, err := toSockaddr(ep, d.transport)
	if err != nil {
		return err
	}
	if err := unix.Bind(d.fd, sa); err != nil {
		return translateErrno(err, "bind")
	}
	return nil
}

// BindAny opens (if not already open) and binds to the wildcard address for
// transport t: 0.0.0.0:0 / [::]:0 for IP transports, an unnamed (abstract)
// address for local transports.
func (d *Descriptor) BindAny(t endpoint.Transport, reuseAddr bool) error {
	if !d.IsOpen() {
		if err := d.Open(t); err != nil {
			return err
		}
	}
	var ep endpoint.Endpoint
	switch {
	case t.IsLocal():
		ep = endpoint.Local("")
	case t == endpoint.UDPIPv4 || t == endpoint.TCPIPv4:
		ep = endpoint.IP([]byte{0, 0, 0, 0}, 0)
	default:
		ep = endpoint.IP([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, 0)
	}
	return d.Bind(ep, reuseAddr)
}

// SourceEndpoint returns the local endpoint the descriptor is bound to.
func (d *Descriptor) SourceEndpoint() (endpoint.Endpoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return endpoint.Endpoint{}, errkind.New(errkind.Invalid, "descriptor not open")
	}
	sa, err := unix.Getsockname(d.fd)
	if err != nil {
		return endpoint.Endpoint{}, translateErrno(err, "getsockname")
	}
	return fromSockaddr(sa), nil
}

// RemoteEndpoint returns the endpoint the descriptor is connected to.
func (d *Descriptor) RemoteEndpoint() (endpoint.Endpoint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return endpoint.Endpoint{}, errkind.New(errkind.Invalid, "descriptor not open")
	}
	sa, err := unix.Getpeername(d.fd)
	if err != nil {
		return endpoint.Endpoint{}, translateErrno(err, "getpeername")
	}
	return fromSockaddr(sa), nil
}

// SetBlocking toggles the descriptor's blocking mode. The engine normally
// keeps sockets non-blocking (reactor/proactor driven); this exists for the
// rare caller needing a synchronous handle.
func (d *Descriptor) SetBlocking(blocking bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return errkind.New(errkind.Invalid, "descriptor not open")
	}
	if err := unix.SetNonblock(d.fd, !blocking); err != nil {
		return errkind.Wrap(errkind.Unknown, "set nonblock", err)
	}
	d.blocking = blocking
	return nil
}

// GetLastError returns the error last stored by recordErr, or nil. None of
// Descriptor's operations call recordErr, so their failures are not stored
// here; each is returned by the failing call itself.
func (d *Descriptor) GetLastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Descriptor) recordErr(err error) {
	d.lastErr = err
}

// errnoOf extracts the raw errno from err, if it is one.
func errnoOf(err error) unix.Errno {
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return 0
}

// translateErrno maps a raw unix errno to the engine's error taxonomy (§7).
func translateErrno(err error, op string) error {
	errno, ok := err.(unix.Errno)
	if !ok {
		return errkind.Wrap(errkind.Unknown, op, err)
	}
	switch errno {
	case unix.EAGAIN:
		return errkind.Wrap(errkind.WouldBlock, op, err).WithCode(int(errno))
	case unix.EINTR:
		return errkind.Wrap(errkind.Interrupted, op, err).WithCode(int(errno))
	case unix.ECONNREFUSED:
		return errkind.Wrap(errkind.ConnectionRefused, op, err).WithCode(int(errno))
	case unix.ECONNRESET:
		return errkind.Wrap(errkind.ConnectionReset, op, err).WithCode(int(errno))
	case unix.ECONNABORTED:
		return errkind.Wrap(errkind.ConnectionAborted, op, err).WithCode(int(errno))
	case unix.ENETUNREACH:
		return errkind.Wrap(errkind.NetworkUnreachable, op, err).WithCode(int(errno))
	case unix.EHOSTUNREACH:
		return errkind.Wrap(errkind.HostUnreachable, op, err).WithCode(int(errno))
	case unix.EADDRINUSE:
		return errkind.Wrap(errkind.AddressInUse, op, err).WithCode(int(errno))
	case unix.EADDRNOTAVAIL:
		return errkind.Wrap(errkind.AddressNotAvailable, op, err).WithCode(int(errno))
	case unix.ENOTCONN:
		return errkind.Wrap(errkind.NotConnected, op, err).WithCode(int(errno))
	case unix.EINVAL:
		return errkind.Wrap(errkind.Invalid, op, err).WithCode(int(errno))
	case unix.EISCONN, unix.EALREADY:
		return errkind.Wrap(errkind.Already, op, err).WithCode(int(errno))
	default:
		return errkind.Wrap(errkind.Unknown, op, err).WithCode(int(errno))
	}
}
