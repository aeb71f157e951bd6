package ioreactor

import (
	"net"
	"sync"
	"time"
)

// OnNewPeer is called the first time a packet arrives from a peer not
// already in the active-peers map, before OnUdpReceive fires for the same
// packet.
type OnNewPeer func(peer *UdpPeer)

// OnUdpReceive delivers one inbound datagram. peer is nil in transient mode
// (start_receive without timeout tracking).
type OnUdpReceive func(peer *UdpPeer, chunk DataChunk, from Endpoint)

// OnPeerTimeout fires when a tracked peer's last packet is older than the
// server's configured timeout.
type OnPeerTimeout func(peer *UdpPeer, err Error)

// UdpServer receives datagrams on a bound socket, optionally tracking
// per-sender state (UdpPeer) across packets with an inactivity timeout.
type UdpServer struct {
	Removable

	r    *Reactor
	conn *net.UDPConn
	fd   int

	recvBuf *recvBufferPool

	onReceive OnUdpReceive
	onNewPeer OnNewPeer

	tracking      bool
	timeoutMs     int64
	onPeerTimeout OnPeerTimeout

	mu            sync.Mutex
	activePeers   map[PeerId]*UdpPeer
	inactivePeers map[PeerId]*Timer
	backlog       *BacklogWithTimeout[*UdpPeer]

	closed bool
}

// NewUdpServer constructs a server bound to nothing yet; call StartReceive
// or StartReceiveWithPeerTracking to bind and begin receiving.
func NewUdpServer(r *Reactor) *UdpServer {
	s := &UdpServer{
		r:             r,
		activePeers:   make(map[PeerId]*UdpPeer),
		inactivePeers: make(map[PeerId]*Timer),
	}
	s.InitRemovable(r)
	s.SetOnScheduleRemoval(func() { s.teardown() })
	return s
}

// StartReceive binds to endpoint and begins delivering every inbound
// datagram as a transient, untracked peer (nil *UdpPeer passed to cb).
func (s *UdpServer) StartReceive(endpoint Endpoint, cb OnUdpReceive) Error {
	s.onReceive = cb
	return s.bindAndReceive(endpoint)
}

// StartReceiveWithPeerTracking binds to endpoint and begins receiving with
// per-sender state: the first packet from a sender allocates a UdpPeer,
// fires onNewPeer (if non-nil) then onReceive; subsequent packets from the
// same sender reuse it. Peers idle longer than timeoutMs are expired via
// onPeerTimeout and removed from the active set.
func (s *UdpServer) StartReceiveWithPeerTracking(endpoint Endpoint, onNewPeer OnNewPeer, cb OnUdpReceive, timeoutMs int64, onTimeout OnPeerTimeout) Error {
	s.tracking = true
	s.onNewPeer = onNewPeer
	s.onReceive = cb
	s.timeoutMs = timeoutMs
	s.onPeerTimeout = onTimeout
	s.backlog = NewBacklogWithTimeout[*UdpPeer](s.r, timeoutMs, s.expirePeer, func(p *UdpPeer) time.Time {
		return p.LastPacketTime()
	}, s.r.now)
	return s.bindAndReceive(endpoint)
}

func (s *UdpServer) bindAndReceive(endpoint Endpoint) Error {
	if s.conn != nil {
		return NewError(ALREADY_CONNECTED, "udp server already bound")
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: endpoint.addr.AsSlice(), Port: int(endpoint.Port())})
	if err != nil {
		return NewError(FromOSError(err), err.Error())
	}
	s.conn = conn
	s.recvBuf = newRecvBufferPool(65536)

	rc, err := conn.SyscallConn()
	if err != nil {
		_ = conn.Close()
		return NewError(FromOSError(err), err.Error())
	}
	var fd int
	_ = rc.Control(func(f uintptr) { fd = int(f) })
	s.fd = fd

	if regErr := s.r.RegisterFD(fd, EventRead, func(IOEvents) { s.onReadable() }); regErr != nil {
		_ = conn.Close()
		return NewError(UNKNOWN_ERROR, regErr.Error())
	}
	return Ok()
}

func (s *UdpServer) onReadable() {
	for {
		buf := s.recvBuf.acquire()
		n, addr, err := s.conn.ReadFromUDP(buf.data)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		from := NewEndpointFromNetAddr(addr)
		chunk := newDataChunk(buf, n, 0)
		now := s.r.now()

		if !s.tracking {
			if s.onReceive != nil {
				s.onReceive(nil, chunk, from)
			}
			continue
		}

		id := peerIDFromEndpoint(from)
		s.mu.Lock()
		if _, inactive := s.inactivePeers[id]; inactive {
			s.mu.Unlock()
			continue
		}
		peer, exists := s.activePeers[id]
		if !exists {
			peer = newUdpPeer(s, id, from, now)
			s.activePeers[id] = peer
			s.mu.Unlock()
			if s.onNewPeer != nil {
				s.onNewPeer(peer)
			}
			s.backlog.AddItem(peer)
		} else {
			peer.touch(now)
			s.mu.Unlock()
		}

		if s.onReceive != nil {
			s.onReceive(peer, chunk, from)
		}
	}
}

// expirePeer is the backlog's on_expired callback: remove the peer from the
// active map and notify the application.
func (s *UdpServer) expirePeer(peer *UdpPeer) {
	s.mu.Lock()
	delete(s.activePeers, peer.ID())
	s.mu.Unlock()
	if s.onPeerTimeout != nil {
		s.onPeerTimeout(peer, Ok())
	}
}

// SendTo writes data to peer's destination address over the server's bound
// socket.
func (s *UdpServer) SendTo(peer *UdpPeer, data []byte) Error {
	dest := peer.Destination()
	addr := &net.UDPAddr{IP: dest.addr.AsSlice(), Port: int(dest.Port())}
	if _, err := s.conn.WriteToUDP(data, addr); err != nil {
		return NewError(FromOSError(err), err.Error())
	}
	return Ok()
}

// ClosePeer removes peer from the active-peers map and admits its id to an
// "inactive" cooldown for inactivityTimeoutMs: packets from that sender are
// silently dropped until the cooldown timer fires.
func (s *UdpServer) ClosePeer(peer *UdpPeer, inactivityTimeoutMs int64) {
	id := peer.ID()
	s.mu.Lock()
	delete(s.activePeers, id)
	if s.backlog != nil {
		s.backlog.RemoveItem(peer, func(a, b *UdpPeer) bool { return a == b })
	}
	timer := NewTimer(s.r, time.Duration(inactivityTimeoutMs)*time.Millisecond, func() {
		s.mu.Lock()
		delete(s.inactivePeers, id)
		s.mu.Unlock()
	})
	s.inactivePeers[id] = timer
	s.mu.Unlock()
}

// Close stops receiving and tears down the socket. done, if non-nil, fires
// once teardown completes.
func (s *UdpServer) Close(done func()) {
	s.SetOnScheduleRemoval(func() {
		s.teardown()
		if done != nil {
			done()
		}
	})
	s.ScheduleRemoval()
}

func (s *UdpServer) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.backlog != nil {
		s.backlog.Stop()
	}
	for _, t := range s.inactivePeers {
		t.Stop()
	}
	s.mu.Unlock()

	if s.conn != nil {
		_ = s.r.UnregisterFD(s.fd)
		_ = s.conn.Close()
	}
}
