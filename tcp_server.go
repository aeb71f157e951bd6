package ioreactor

import (
	"context"
	"net"
	"sync"
	"syscall"
)

// OnTcpNewConn reports a new accepted connection (or an accept-path
// failure): err is OK on success.
type OnTcpNewConn func(client *TcpConnectedClient, err Error)

// TcpServer accepts inbound TCP connections on a bound listener, handing
// each one to the application as a TcpConnectedClient.
type TcpServer struct {
	Removable

	r        *Reactor
	listener *net.TCPListener
	fd       int

	onNewConn OnTcpNewConn
	onReceive OnTcpReceive
	onClose   OnTcpClose

	mu       sync.Mutex
	clients  map[*TcpConnectedClient]struct{}
	listening bool
}

// NewTcpServer constructs a server bound to reactor r, not yet listening.
func NewTcpServer(r *Reactor) *TcpServer {
	s := &TcpServer{r: r, clients: make(map[*TcpConnectedClient]struct{})}
	s.InitRemovable(r)
	s.SetOnScheduleRemoval(func() { s.teardown() })
	return s
}

// Listen binds and begins accepting on endpoint. backlog is not passed to
// the listener; the operating system's default accept queue length applies.
// Fails with
// INVALID_ARGUMENT for an undefined endpoint, CONNECTION_ALREADY_IN_PROGRESS
// if already listening; bind/listen errors are propagated verbatim.
func (s *TcpServer) Listen(endpoint Endpoint, backlog int, onNewConn OnTcpNewConn, onReceive OnTcpReceive, onClose OnTcpClose) Error {
	if !endpoint.IsDefined() {
		return NewError(INVALID_ARGUMENT, "undefined endpoint")
	}
	if s.listening {
		return NewError(CONNECTION_ALREADY_IN_PROGRESS, "already listening")
	}
	if backlog <= 0 {
		backlog = 128
	}

	lc := net.ListenConfig{Control: func(network, address string, rc syscall.RawConn) error {
		var setErr error
		_ = rc.Control(func(fd uintptr) {
			setErr = setReuseAddr(fd)
		})
		return setErr
	}}
	ln, err := lc.Listen(context.Background(), "tcp", endpoint.HostPort())
	if err != nil {
		return NewError(FromOSError(err), err.Error())
	}
	s.listener = ln.(*net.TCPListener)
	s.onNewConn = onNewConn
	s.onReceive = onReceive
	s.onClose = onClose
	s.listening = true

	rc, err := s.listener.SyscallConn()
	if err != nil {
		_ = s.listener.Close()
		return NewError(FromOSError(err), err.Error())
	}
	var fd int
	_ = rc.Control(func(f uintptr) { fd = int(f) })
	s.fd = fd

	if regErr := s.r.RegisterFD(fd, EventRead, func(IOEvents) { s.onAcceptable() }); regErr != nil {
		_ = s.listener.Close()
		return NewError(UNKNOWN_ERROR, regErr.Error())
	}
	return Ok()
}

func (s *TcpServer) onAcceptable() {
	_ = s.listener.SetDeadline(immediatePast)
	conn, err := s.listener.AcceptTCP()
	if err != nil {
		return
	}

	client := newTcpConnectedClient(s.r, s, conn)
	client.streamCore.onReceive = s.onReceive
	client.streamCore.onClose = s.onClose

	if attachErr := client.streamCore.attach(s.r, conn); attachErr.Truthy() {
		_ = conn.Close()
		if s.onNewConn != nil {
			s.onNewConn(nil, attachErr)
		}
		client.ScheduleRemoval()
		return
	}
	client.streamCore.setState(TcpOpen)

	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	var peerErr error
	if rc, scErr := conn.SyscallConn(); scErr == nil {
		_ = rc.Control(func(fd uintptr) { peerErr = checkPeerName(fd) })
	}
	if peerErr != nil && FromOSError(peerErr) == INVALID_ARGUMENT {
		if s.onNewConn != nil {
			s.onNewConn(client, Ok())
		}
		client.streamCore.finish(NewError(CONNECTION_RESET_BY_PEER, "connection reset before accept completed"))
		s.removeClient(client)
		return
	}

	if s.onNewConn != nil {
		s.onNewConn(client, Ok())
	}
}

func (s *TcpServer) removeClient(c *TcpConnectedClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// ConnectedClientsCount returns the number of currently accepted
// connections.
func (s *TcpServer) ConnectedClientsCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Endpoint returns the listener's local address.
func (s *TcpServer) Endpoint() Endpoint {
	if s.listener == nil {
		return UndefinedEndpoint
	}
	return NewEndpointFromNetAddr(s.listener.Addr())
}

// Shutdown half-closes every accepted connection, then stops accepting new
// ones. done, if non-nil, fires once complete.
func (s *TcpServer) Shutdown(done func()) {
	s.mu.Lock()
	clients := make([]*TcpConnectedClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.Shutdown()
	}
	s.stopAccepting()
	if done != nil {
		done()
	}
}

// Close closes every accepted connection and then the listener. done, if
// non-nil, fires once complete.
func (s *TcpServer) Close(done func()) {
	s.SetOnScheduleRemoval(func() {
		s.teardown()
		if done != nil {
			done()
		}
	})
	s.ScheduleRemoval()
}

func (s *TcpServer) stopAccepting() {
	if s.listener != nil && s.listening {
		s.listening = false
		_ = s.r.UnregisterFD(s.fd)
		_ = s.listener.Close()
	}
}

func (s *TcpServer) teardown() {
	s.mu.Lock()
	clients := make([]*TcpConnectedClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	s.stopAccepting()
}
