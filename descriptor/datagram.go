//go:build linux

package descriptor

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-asyncsock/endpoint"
	"github.com/joeycumines/go-asyncsock/errkind"
)

// SendTo writes buf as one datagram addressed to ep.
func (d *Descriptor) SendTo(buf []byte, ep endpoint.Endpoint) (int, error) {
	d.mu.Lock()
	fd := d.fd
	transport := d.transport
	open := d.open
	d.mu.Unlock()
	if !open {
		return 0, errkind.New(errkind.Invalid, "descriptor not open")
	}
	sa, err := toSockaddr(ep, transport)
	if err != nil {
		return 0, err
	}
	if err := unix.Sendto(fd, buf, 0, sa); err != nil {
		return 0, translateErrno(err, "sendto")
	}
	return len(buf), nil
}

// ReceiveFrom reads one datagram into buf, reporting the sender's endpoint.
func (d *Descriptor) ReceiveFrom(buf []byte) (int, endpoint.Endpoint, error) {
	d.mu.Lock()
	fd := d.fd
	open := d.open
	d.mu.Unlock()
	if !open {
		return 0, endpoint.Endpoint{}, errkind.New(errkind.Invalid, "descriptor not open")
	}
	n, sa, err := unix.Recvfrom(fd, buf, 0)
	if err != nil {
		return 0, endpoint.Endpoint{}, translateErrno(err, "recvfrom")
	}
	return n, fromSockaddr(sa), nil
}

// SetMulticastLoopback enables/disables receiving a datagram socket's own
// multicast transmissions.
func (d *Descriptor) SetMulticastLoopback(enabled bool) error {
	return d.setBoolOpt(ip4or6(d.transport, unix.IPPROTO_IP, unix.IPPROTO_IPV6),
		ip4or6(d.transport, unix.IP_MULTICAST_LOOP, unix.IPV6_MULTICAST_LOOP), enabled)
}

// SetMulticastInterface selects the outgoing interface for IPv4 multicast
// transmissions by its local address iface. On an IPv6 transport it
// returns a NotImplemented error and changes nothing.
func (d *Descriptor) SetMulticastInterface(iface net.IP) error {
	d.mu.Lock()
	fd := d.fd
	transport := d.transport
	open := d.open
	d.mu.Unlock()
	if !open {
		return errkind.New(errkind.Invalid, "descriptor not open")
	}
	if transport == endpoint.UDPIPv6 {
		return errkind.New(errkind.NotImplemented, "multicast interface by index unsupported for ipv6 in this build")
	}
	var addr [4]byte
	copy(addr[:], iface.To4())
	if err := unix.SetsockoptInet4Addr(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_IF, addr); err != nil {
		return translateErrno(err, "setsockopt ip_multicast_if")
	}
	return nil
}

// SetMulticastTTL sets the outgoing multicast TTL (IPv4) / hop limit
// (IPv6).
func (d *Descriptor) SetMulticastTTL(ttl int) error {
	return d.setIntOpt(ip4or6(d.transport, unix.IPPROTO_IP, unix.IPPROTO_IPV6),
		ip4or6(d.transport, unix.IP_MULTICAST_TTL, unix.IPV6_MULTICAST_HOPS), ttl)
}

func ip4or6(t endpoint.Transport, v4, v6 int) int {
	if t == endpoint.UDPIPv6 {
		return v6
	}
	return v4
}

// JoinGroup joins the any-source multicast group at groupAddr via the
// interface identified by ifaceAddr (the zero IP selects the default
// interface).
func (d *Descriptor) JoinGroup(groupAddr, ifaceAddr net.IP) error {
	return d.membership(groupAddr, ifaceAddr, true)
}

// LeaveGroup leaves a previously joined any-source multicast group.
func (d *Descriptor) LeaveGroup(groupAddr, ifaceAddr net.IP) error {
	return d.membership(groupAddr, ifaceAddr, false)
}

func (d *Descriptor) membership(groupAddr, ifaceAddr net.IP, join bool) error {
	d.mu.Lock()
	fd := d.fd
	open := d.open
	d.mu.Unlock()
	if !open {
		return errkind.New(errkind.Invalid, "descriptor not open")
	}
	var mreq unix.IPMreq
	copy(mreq.Multiaddr[:], groupAddr.To4())
	copy(mreq.Interface[:], ifaceAddr.To4())
	opt := unix.IP_ADD_MEMBERSHIP
	if !join {
		opt = unix.IP_DROP_MEMBERSHIP
	}
	if err := unix.SetsockoptIPMreq(fd, unix.IPPROTO_IP, opt, &mreq); err != nil {
		return translateErrno(err, "setsockopt ip membership")
	}
	return nil
}

// JoinSourceGroup joins a source-specific multicast group: only datagrams
// from sourceAddr within groupAddr are delivered.
func (d *Descriptor) JoinSourceGroup(groupAddr, sourceAddr, ifaceAddr net.IP) error {
	return d.sourceMembership(groupAddr, sourceAddr, ifaceAddr, true)
}

// LeaveSourceGroup leaves a previously joined source-specific multicast
// group.
func (d *Descriptor) LeaveSourceGroup(groupAddr, sourceAddr, ifaceAddr net.IP) error {
	return d.sourceMembership(groupAddr, sourceAddr, ifaceAddr, false)
}

func (d *Descriptor) sourceMembership(groupAddr, sourceAddr, ifaceAddr net.IP, join bool) error {
	d.mu.Lock()
	fd := d.fd
	open := d.open
	d.mu.Unlock()
	if !open {
		return errkind.New(errkind.Invalid, "descriptor not open")
	}
	var mreq unix.IPMreqSource
	copy(mreq.Multiaddr[:], groupAddr.To4())
	copy(mreq.Sourceaddr[:], sourceAddr.To4())
	copy(mreq.Interface[:], ifaceAddr.To4())
	opt := unix.IP_ADD_SOURCE_MEMBERSHIP
	if !join {
		opt = unix.IP_DROP_SOURCE_MEMBERSHIP
	}
	if err := unix.SetsockoptIPMreqSource(fd, unix.IPPROTO_IP, opt, &mreq); err != nil {
		return translateErrno(err, "setsockopt ip source membership")
	}
	return nil
}
