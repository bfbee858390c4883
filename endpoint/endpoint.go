// Package endpoint provides the tagged-union Endpoint value type and the
// transport tag enumeration used throughout the engine.
package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/joeycumines/go-asyncsock/errkind"
)

// Transport enumerates the socket kinds the engine supports.
type Transport int

const (
	Undefined Transport = iota
	UDPIPv4
	UDPIPv6
	TCPIPv4
	TCPIPv6
	LocalDatagram
	LocalStream
)

func (t Transport) String() string {
	switch t {
	case UDPIPv4:
		return "udp4"
	case UDPIPv6:
		return "udp6"
	case TCPIPv4:
		return "tcp4"
	case TCPIPv6:
		return "tcp6"
	case LocalDatagram:
		return "unixgram"
	case LocalStream:
		return "unix"
	default:
		return "undefined"
	}
}

// IsStream reports whether t is a stream-mode transport.
func (t Transport) IsStream() bool {
	return t == TCPIPv4 || t == TCPIPv6 || t == LocalStream
}

// IsDatagram reports whether t is a datagram-mode transport.
func (t Transport) IsDatagram() bool {
	return t == UDPIPv4 || t == UDPIPv6 || t == LocalDatagram
}

// IsLocal reports whether t addresses a filesystem path / abstract name
// rather than an IP address and port.
func (t Transport) IsLocal() bool {
	return t == LocalDatagram || t == LocalStream
}

// kind distinguishes the union members held by Endpoint.
type kind int

const (
	kindUndefined kind = iota
	kindIP
	kindLocal
)

// Endpoint is a tagged union over {IP endpoint, local-path endpoint,
// undefined}. It is a plain value type: copies are independent.
type Endpoint struct {
	k       kind
	ip      net.IP
	port    uint16
	v6      bool
	pathVal string
}

// IsUndefined reports whether e carries no address.
func (e Endpoint) IsUndefined() bool { return e.k == kindUndefined }

// IsIP reports whether e is an IP-address endpoint.
func (e Endpoint) IsIP() bool { return e.k == kindIP }

// IsLocal reports whether e is a filesystem-path (or abstract-name) endpoint.
func (e Endpoint) IsLocal() bool { return e.k == kindLocal }

// IP constructs an IP-endpoint from addr and port. v6 selects bracketed
// textual formatting; it does not by itself reject a v4 address.
func IP(addr net.IP, port uint16) Endpoint {
	v6 := addr.To4() == nil
	return Endpoint{k: kindIP, ip: addr, port: port, v6: v6}
}

// Local constructs a local-path (or abstract-name) endpoint.
func Local(path string) Endpoint {
	return Endpoint{k: kindLocal, pathVal: path}
}

// Addr returns the IP address carried by e. The zero value is returned for
// non-IP endpoints.
func (e Endpoint) Addr() net.IP { return e.ip }

// Port returns the port carried by e. Zero is returned for non-IP endpoints.
func (e Endpoint) Port() uint16 { return e.port }

// Path returns the filesystem path / abstract name carried by e. The empty
// string is returned for non-local endpoints.
func (e Endpoint) Path() string { return e.pathVal }

// String formats e in its canonical textual form: "<addr>:<port>" for v4,
// "[<addr>]:<port>" for v6, the bare path for local endpoints, and the
// empty string for Undefined.
func (e Endpoint) String() string {
	switch e.k {
	case kindIP:
		if e.v6 {
			return fmt.Sprintf("[%s]:%d", e.ip.String(), e.port)
		}
		return fmt.Sprintf("%s:%d", e.ip.String(), e.port)
	case kindLocal:
		return e.pathVal
	default:
		return ""
	}
}

// Parse parses the canonical textual form of an IP endpoint. It rejects
// anything else with an Invalid error; use Local directly to build local
// endpoints, since local paths have no single canonical delimiter-free
// grammar that would disambiguate them from a bare hostname.
func Parse(s string) (Endpoint, error) {
	if s == "" {
		return Endpoint{}, errkind.New(errkind.Invalid, "empty endpoint")
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, errkind.Wrap(errkind.Invalid, "parse endpoint "+strconv.Quote(s), err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, errkind.Wrap(errkind.Invalid, "parse port "+strconv.Quote(portStr), err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Endpoint{}, errkind.New(errkind.Invalid, "not an IP address: "+strconv.Quote(host))
	}
	e := IP(ip, uint16(port))
	// preserve the bracket-vs-bare form the caller used, so that e.g. an
	// IPv4-mapped address written in brackets round-trips as v6 textually.
	e.v6 = strings.HasPrefix(s, "[")
	return e, nil
}

// TransportOf returns the Transport tag matching e's family (local, IPv6 or
// IPv4) and the requested mode: preferStream selects the stream transport,
// otherwise the datagram one. An undefined e yields Undefined.
func TransportOf(e Endpoint, preferStream bool) Transport {
	switch {
	case e.IsLocal():
		if preferStream {
			return LocalStream
		}
		return LocalDatagram
	case e.IsIP() && e.v6:
		if preferStream {
			return TCPIPv6
		}
		return UDPIPv6
	case e.IsIP():
		if preferStream {
			return TCPIPv4
		}
		return UDPIPv4
	default:
		return Undefined
	}
}
