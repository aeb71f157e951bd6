package ioreactor

import "sync"

// udpServerPeerTransport adapts one tracked UdpPeer to tlsTransport for a
// DTLS session layered over a UdpServer.
type udpServerPeerTransport struct {
	server *UdpServer
	peer   *UdpPeer
}

func (t *udpServerPeerTransport) sendCiphertext(data []byte) error {
	err := t.server.SendTo(t.peer, data)
	if err.Truthy() {
		return err
	}
	return nil
}

func (t *udpServerPeerTransport) remoteEndpoint() Endpoint {
	return t.peer.Destination()
}

// OnDtlsNewPeer reports one peer's handshake completion (or failure).
type OnDtlsNewPeer func(peer *UdpPeer, err Error)

// DtlsServer tracks senders like UdpServer's peer-tracking mode, layering a
// DTLS server handshake onto each new peer before delivering its
// application data.
type DtlsServer struct {
	Removable

	r   *Reactor
	udp *UdpServer
	cfg TlsConfig

	onNewPeer OnDtlsNewPeer
	onReceive OnTcpReceive
	onClose   OnTcpClose

	mu       sync.Mutex
	sessions map[PeerId]*tlsSession
}

// NewDtlsServer constructs a server bound to reactor r, not yet listening.
func NewDtlsServer(r *Reactor) *DtlsServer {
	s := &DtlsServer{r: r, udp: NewUdpServer(r), sessions: make(map[PeerId]*tlsSession)}
	s.InitRemovable(r)
	s.SetOnScheduleRemoval(func() {
		s.mu.Lock()
		sessions := make([]*tlsSession, 0, len(s.sessions))
		for _, session := range s.sessions {
			sessions = append(sessions, session)
		}
		s.mu.Unlock()
		for _, session := range sessions {
			session.shutdown()
		}
		s.udp.Close(nil)
	})
	return s
}

// Listen binds endpoint and begins accepting DTLS handshakes from new
// senders, expiring inactive peers after timeoutMs per the UDP peer
// tracking rules.
func (s *DtlsServer) Listen(endpoint Endpoint, cfg TlsConfig, timeoutMs int64, onNewPeer OnDtlsNewPeer, onReceive OnTcpReceive, onClose OnTcpClose) Error {
	s.cfg = cfg
	s.onNewPeer = onNewPeer
	s.onReceive = onReceive
	s.onClose = onClose

	dtlsCfg, err := cfg.buildDtlsServerConfig()
	if err.Truthy() {
		return err
	}

	return s.udp.StartReceiveWithPeerTracking(endpoint,
		func(peer *UdpPeer) {
			transport := &udpServerPeerTransport{server: s.udp, peer: peer}
			session := newTlsSessionForDtls(s.r, transport, dtlsCfg, true)

			s.mu.Lock()
			s.sessions[peer.ID()] = session
			s.mu.Unlock()

			session.start(
				func(hsErr Error) {
					if onNewPeer != nil {
						onNewPeer(peer, hsErr)
					}
				},
				onReceive,
				func(closeErr Error) {
					s.mu.Lock()
					delete(s.sessions, peer.ID())
					s.mu.Unlock()
					if onClose != nil {
						onClose(closeErr)
					}
				},
			)
		},
		func(peer *UdpPeer, chunk DataChunk, _ Endpoint) {
			s.mu.Lock()
			session := s.sessions[peer.ID()]
			s.mu.Unlock()
			if session != nil {
				session.deliverCiphertext(chunk.Bytes())
			}
		},
		timeoutMs,
		// Peer inactivity fires before the DTLS close callback: the UDP
		// layer removes the peer from its own tracking first, then this
		// tears the session down and reports on_close for it, matching
		// the documented timeout-then-close ordering.
		func(peer *UdpPeer, timeoutErr Error) {
			s.mu.Lock()
			session := s.sessions[peer.ID()]
			delete(s.sessions, peer.ID())
			s.mu.Unlock()
			if session != nil {
				session.finish(Ok())
			}
		},
	)
}

// Endpoint returns the server's bound local address.
func (s *DtlsServer) Endpoint() Endpoint { return s.udp.Endpoint() }

// ClosePeer tears down one peer's session and admits its address to the
// underlying server's inactivity cooldown.
func (s *DtlsServer) ClosePeer(peer *UdpPeer, inactivityTimeoutMs int64) {
	s.mu.Lock()
	session := s.sessions[peer.ID()]
	delete(s.sessions, peer.ID())
	s.mu.Unlock()
	if session != nil {
		session.shutdown()
	}
	s.udp.ClosePeer(peer, inactivityTimeoutMs)
}

// Close tears down every session and the underlying socket.
func (s *DtlsServer) Close() { s.ScheduleRemoval() }
