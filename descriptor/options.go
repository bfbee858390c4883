//go:build linux

package descriptor

import (
	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-asyncsock/errkind"
	"github.com/joeycumines/go-asyncsock/option"
)

func (d *Descriptor) setBoolOpt(level, name int, enabled bool) error {
	d.mu.Lock()
	fd := d.fd
	open := d.open
	d.mu.Unlock()
	if !open {
		return errkind.New(errkind.Invalid, "descriptor not open")
	}
	v := 0
	if enabled {
		v = 1
	}
	if err := unix.SetsockoptInt(fd, level, name, v); err != nil {
		return translateErrno(err, "setsockopt")
	}
	return nil
}

func (d *Descriptor) setIntOpt(level, name, val int) error {
	d.mu.Lock()
	fd := d.fd
	open := d.open
	d.mu.Unlock()
	if !open {
		return errkind.New(errkind.Invalid, "descriptor not open")
	}
	if err := unix.SetsockoptInt(fd, level, name, val); err != nil {
		return translateErrno(err, "setsockopt")
	}
	return nil
}

func (d *Descriptor) getIntOpt(level, name int) (int, error) {
	d.mu.Lock()
	fd := d.fd
	open := d.open
	d.mu.Unlock()
	if !open {
		return 0, errkind.New(errkind.Invalid, "descriptor not open")
	}
	v, err := unix.GetsockoptInt(fd, level, name)
	if err != nil {
		return 0, translateErrno(err, "getsockopt")
	}
	return v, nil
}

// SetOption applies one socket option, as enumerated in §6. Unknown options
// fail with NotImplemented.
func (d *Descriptor) SetOption(opt option.SocketOption) error {
	if err := option.Validate(opt.Kind); err != nil {
		return err
	}
	switch opt.Kind {
	case option.ReuseAddress:
		return d.setBoolOpt(unix.SOL_SOCKET, unix.SO_REUSEADDR, opt.Bool)
	case option.ReusePort:
		return d.setBoolOpt(unix.SOL_SOCKET, unix.SO_REUSEPORT, opt.Bool)
	case option.KeepAlive:
		return d.setBoolOpt(unix.SOL_SOCKET, unix.SO_KEEPALIVE, opt.Bool)
	case option.NoDelay:
		return d.setBoolOpt(unix.IPPROTO_TCP, unix.TCP_NODELAY, opt.Bool)
	case option.Linger:
		d.mu.Lock()
		fd := d.fd
		open := d.open
		d.mu.Unlock()
		if !open {
			return errkind.New(errkind.Invalid, "descriptor not open")
		}
		l := unix.Linger{}
		if opt.Linger.Enabled {
			l.Onoff = 1
			l.Linger = int32(opt.Linger.Duration.Seconds())
		}
		if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &l); err != nil {
			return translateErrno(err, "setsockopt so_linger")
		}
		return nil
	case option.SendBufferSize:
		return d.setIntOpt(unix.SOL_SOCKET, unix.SO_SNDBUF, opt.Int)
	case option.ReceiveBufferSize:
		return d.setIntOpt(unix.SOL_SOCKET, unix.SO_RCVBUF, opt.Int)
	case option.SendLowWatermark:
		return d.setIntOpt(unix.SOL_SOCKET, unix.SO_SNDLOWAT, opt.Int)
	case option.ReceiveLowWatermark:
		return d.setIntOpt(unix.SOL_SOCKET, unix.SO_RCVLOWAT, opt.Int)
	case option.Broadcast:
		return d.setBoolOpt(unix.SOL_SOCKET, unix.SO_BROADCAST, opt.Bool)
	case option.BypassRouting:
		return d.setBoolOpt(unix.SOL_SOCKET, unix.SO_DONTROUTE, opt.Bool)
	case option.InlineOutOfBand:
		return d.setBoolOpt(unix.SOL_SOCKET, unix.SO_OOBINLINE, opt.Bool)
	case option.TxTimestamping, option.RxTimestamping:
		return d.setBoolOpt(unix.SOL_SOCKET, unix.SO_TIMESTAMPNS, opt.Bool)
	case option.ZeroCopy:
		return d.setBoolOpt(unix.SOL_SOCKET, unix.SO_ZEROCOPY, opt.Bool)
	case option.TCPCongestionControl:
		d.mu.Lock()
		fd := d.fd
		open := d.open
		d.mu.Unlock()
		if !open {
			return errkind.New(errkind.Invalid, "descriptor not open")
		}
		if err := unix.SetsockoptString(fd, unix.IPPROTO_TCP, unix.TCP_CONGESTION, opt.String); err != nil {
			return translateErrno(err, "setsockopt tcp_congestion")
		}
		return nil
	default:
		return errkind.New(errkind.NotImplemented, "unhandled socket option")
	}
}

// GetOption reads one socket option's current value.
func (d *Descriptor) GetOption(kind option.SocketOptionKind) (option.SocketOption, error) {
	if err := option.Validate(kind); err != nil {
		return option.SocketOption{}, err
	}
	switch kind {
	case option.ReuseAddress:
		v, err := d.getIntOpt(unix.SOL_SOCKET, unix.SO_REUSEADDR)
		return option.SocketOption{Kind: kind, Bool: v != 0}, err
	case option.ReusePort:
		v, err := d.getIntOpt(unix.SOL_SOCKET, unix.SO_REUSEPORT)
		return option.SocketOption{Kind: kind, Bool: v != 0}, err
	case option.KeepAlive:
		v, err := d.getIntOpt(unix.SOL_SOCKET, unix.SO_KEEPALIVE)
		return option.SocketOption{Kind: kind, Bool: v != 0}, err
	case option.NoDelay:
		v, err := d.getIntOpt(unix.IPPROTO_TCP, unix.TCP_NODELAY)
		return option.SocketOption{Kind: kind, Bool: v != 0}, err
	case option.SendBufferSize:
		v, err := d.getIntOpt(unix.SOL_SOCKET, unix.SO_SNDBUF)
		return option.SocketOption{Kind: kind, Int: v}, err
	case option.ReceiveBufferSize:
		v, err := d.getIntOpt(unix.SOL_SOCKET, unix.SO_RCVBUF)
		return option.SocketOption{Kind: kind, Int: v}, err
	case option.Broadcast:
		v, err := d.getIntOpt(unix.SOL_SOCKET, unix.SO_BROADCAST)
		return option.SocketOption{Kind: kind, Bool: v != 0}, err
	default:
		return option.SocketOption{}, errkind.New(errkind.NotImplemented, "unhandled socket option")
	}
}
