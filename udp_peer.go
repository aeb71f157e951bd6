package ioreactor

import (
	"sync/atomic"
	"time"
)

// PeerId is the componentwise-equal, componentwise-hashable key for a UDP
// peer, derived from the sender's address and port: two 64-bit address
// halves (big-endian, covering a v4-mapped or native v6 address) plus the
// 16-bit port.
type PeerId struct {
	AddrHigh uint64
	AddrLow  uint64
	Port     uint16
}

// UdpPeer is a reference-counted observer of a UDP server socket, keyed by
// PeerId. It is held in the server's active-peers map with one implicit
// reference; every additional reference (e.g. one retained by an
// application callback past the callback's return) must be paired with
// Release.
type UdpPeer struct {
	server      *UdpServer
	id          PeerId
	destination Endpoint

	refCount atomic.Int32
	lastSeen atomic.Int64 // UnixNano wall-clock time (no monotonic reading)
}

func newUdpPeer(server *UdpServer, id PeerId, destination Endpoint, now time.Time) *UdpPeer {
	p := &UdpPeer{server: server, id: id, destination: destination}
	p.refCount.Store(1)
	p.lastSeen.Store(now.UnixNano())
	return p
}

// ID returns this peer's address/port key.
func (p *UdpPeer) ID() PeerId { return p.id }

// Destination returns the endpoint packets for this peer should be sent to.
func (p *UdpPeer) Destination() Endpoint { return p.destination }

// LastPacketTime returns the timestamp of the most recently observed packet
// from this peer.
func (p *UdpPeer) LastPacketTime() time.Time {
	return time.Unix(0, p.lastSeen.Load())
}

func (p *UdpPeer) touch(now time.Time) {
	p.lastSeen.Store(now.UnixNano())
}

// Retain increments the peer's reference count. Pair with Release.
func (p *UdpPeer) Retain() {
	p.refCount.Add(1)
}

// Release decrements the peer's reference count. The peer's resources are
// only actually reclaimed once the count reaches zero, which requires both
// every Retain to be paired with a Release and the server's active-peers map
// to have already dropped its own reference (on timeout or close_peer).
func (p *UdpPeer) Release() {
	p.refCount.Add(-1)
}

func (p *UdpPeer) uses() int32 {
	return p.refCount.Load()
}
