package ioreactor

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
)

// EndpointKind tags the variant carried by an Endpoint.
type EndpointKind uint8

const (
	EndpointUndefined EndpointKind = iota
	EndpointIPv4
	EndpointIPv6
)

// Endpoint is an opaque address value: a tagged variant over
// {UNDEFINED, IPv4, IPv6} carrying an address and port. It round-trips with
// both textual form ("a.b.c.d" / "x:y:...:z") and octet arrays of length 4
// or 16.
type Endpoint struct {
	kind EndpointKind
	addr netip.Addr
	port uint16
}

// UndefinedEndpoint is the zero-value, invalid endpoint.
var UndefinedEndpoint = Endpoint{}

// Kind reports which variant this Endpoint holds.
func (e Endpoint) Kind() EndpointKind { return e.kind }

// IsDefined reports whether this is not the UNDEFINED variant.
func (e Endpoint) IsDefined() bool { return e.kind != EndpointUndefined }

// Port returns the endpoint's port number.
func (e Endpoint) Port() uint16 { return e.port }

// NewEndpointFromString parses a textual address ("a.b.c.d" or the IPv6
// bracketless form "x:y:...:z") plus a port into an Endpoint.
func NewEndpointFromString(addr string, port uint16) (Endpoint, Error) {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return UndefinedEndpoint, NewError(INVALID_ARGUMENT, err.Error())
	}
	return newEndpoint(a, port), Ok()
}

// NewEndpointFromIPv4Octets builds an Endpoint from 4 octets (network
// byte order, as in a sockaddr_in) and a port.
func NewEndpointFromIPv4Octets(octets [4]byte, port uint16) Endpoint {
	return newEndpoint(netip.AddrFrom4(octets), port)
}

// NewEndpointFromIPv6Octets builds an Endpoint from 16 octets and a port.
func NewEndpointFromIPv6Octets(octets [16]byte, port uint16) Endpoint {
	return newEndpoint(netip.AddrFrom16(octets), port)
}

func newEndpoint(a netip.Addr, port uint16) Endpoint {
	a = a.Unmap()
	kind := EndpointIPv6
	if a.Is4() {
		kind = EndpointIPv4
	}
	return Endpoint{kind: kind, addr: a, port: port}
}

// NewEndpointFromNetAddr adapts a net.Addr (as returned by net.Conn/UDPConn)
// into an Endpoint. Returns UndefinedEndpoint for non-IP addresses.
func NewEndpointFromNetAddr(a net.Addr) Endpoint {
	switch v := a.(type) {
	case *net.TCPAddr:
		if addr, ok := netip.AddrFromSlice(v.IP); ok {
			return newEndpoint(addr, uint16(v.Port))
		}
	case *net.UDPAddr:
		if addr, ok := netip.AddrFromSlice(v.IP); ok {
			return newEndpoint(addr, uint16(v.Port))
		}
	}
	return UndefinedEndpoint
}

// String renders the textual form: dotted-decimal for IPv4, colon-separated
// for IPv6. Returns "" for the UNDEFINED variant.
func (e Endpoint) String() string {
	if e.kind == EndpointUndefined {
		return ""
	}
	return e.addr.String()
}

// HostPort renders "host:port" suitable for net.Dial/net.Listen.
func (e Endpoint) HostPort() string {
	if e.kind == EndpointUndefined {
		return ""
	}
	return net.JoinHostPort(e.addr.String(), fmt.Sprintf("%d", e.port))
}

// Octets4 returns the 4-byte IPv4 octet form. Valid only when Kind() == EndpointIPv4.
func (e Endpoint) Octets4() [4]byte {
	return e.addr.As4()
}

// Octets16 returns the 16-byte IPv6 octet form. Valid only when Kind() == EndpointIPv6.
func (e Endpoint) Octets16() [16]byte {
	return e.addr.As16()
}

// Uint32LittleEndian packs the IPv4 address into a little-endian uint32,
// matching the wire-level sockaddr_in mapping this library uses (octets
// stored in little-endian order within the 32-bit address field).
func (e Endpoint) Uint32LittleEndian() uint32 {
	o := e.addr.As4()
	return binary.LittleEndian.Uint32(o[:])
}

// AddrPort converts to the stdlib netip.AddrPort, for use with net.Dial-style APIs.
func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.addr, e.port)
}

// peerIDFromEndpoint derives a PeerId from a UDP sender's endpoint, the
// tuple (address-high, address-low, port) described in the data model: the
// 16-byte (v4-mapped or native v6) address is split into two 64-bit halves.
func peerIDFromEndpoint(e Endpoint) PeerId {
	var b [16]byte
	if e.kind == EndpointIPv4 {
		o := e.addr.As4()
		// v4-mapped into the low 32 bits of the low half, matching a
		// conventional v4-in-v6 embedding.
		b[10], b[11] = 0xff, 0xff
		copy(b[12:], o[:])
	} else {
		b = e.addr.As16()
	}
	return PeerId{
		AddrHigh: binary.BigEndian.Uint64(b[0:8]),
		AddrLow:  binary.BigEndian.Uint64(b[8:16]),
		Port:     e.port,
	}
}
