package ioreactor

// OnTlsNewConn reports one accepted connection that has completed (or
// failed) its TLS handshake.
type OnTlsNewConn func(conn *TlsConnectedClient, err Error)

// TlsServer accepts TCP connections and layers a TLS server handshake onto
// each one before handing it to the application.
type TlsServer struct {
	Removable

	r   *Reactor
	tcp *TcpServer
	cfg TlsConfig

	onNewConn OnTlsNewConn
	onReceive OnTcpReceive
	onClose   OnTcpClose
}

// NewTlsServer constructs a server bound to reactor r, not yet listening.
func NewTlsServer(r *Reactor) *TlsServer {
	s := &TlsServer{r: r, tcp: NewTcpServer(r)}
	s.InitRemovable(r)
	s.SetOnScheduleRemoval(func() { s.tcp.Close(nil) })
	return s
}

// Listen binds and accepts per endpoint/backlog, handshaking every accepted
// connection under cfg before reporting it through onNewConn.
func (s *TlsServer) Listen(endpoint Endpoint, backlog int, cfg TlsConfig, onNewConn OnTlsNewConn, onReceive OnTcpReceive, onClose OnTcpClose) Error {
	s.cfg = cfg
	s.onNewConn = onNewConn
	s.onReceive = onReceive
	s.onClose = onClose

	tlsCfg, err := cfg.buildServerConfig()
	if err.Truthy() {
		return err
	}

	return s.tcp.Listen(endpoint, backlog,
		func(raw *TcpConnectedClient, acceptErr Error) {
			if acceptErr.Truthy() || raw == nil {
				if onNewConn != nil {
					onNewConn(nil, acceptErr)
				}
				return
			}
			transport := &tcpCiphertextTransport{stream: raw}
			session := newTlsSessionForTls(s.r, transport, tlsCfg, true)
			tc := &TlsConnectedClient{r: s.r, tcp: raw, session: session}

			// Route this connection's raw bytes to its own session
			// rather than the shared Listen-time onReceive, which never
			// sees ciphertext: TcpServer assigns onReceive once per
			// accepted client, so overriding it here (before the next
			// readiness notification can possibly fire) gives each
			// connection its own decrypt pipe.
			raw.onReceive = func(chunk DataChunk) {
				session.deliverCiphertext(chunk.Bytes())
			}

			session.start(
				func(hsErr Error) {
					if onNewConn != nil {
						onNewConn(tc, hsErr)
					}
				},
				onReceive,
				func(closeErr Error) {
					if onClose != nil {
						onClose(closeErr)
					}
					raw.Close()
				},
			)
		},
		func(chunk DataChunk) {
			// unreachable: onNewConn overrides each connection's
			// onReceive with its session's decrypt pipe before any data
			// can arrive.
		},
		nil,
	)
}

// Endpoint returns the listener's local address.
func (s *TlsServer) Endpoint() Endpoint { return s.tcp.Endpoint() }

// Close tears down every connection and the listener.
func (s *TlsServer) Close() { s.ScheduleRemoval() }

// TlsConnectedClient is one accepted, TLS-handshaked connection.
type TlsConnectedClient struct {
	r       *Reactor
	tcp     *TcpConnectedClient
	session *tlsSession
}

// SendData encrypts and sends plaintext.
func (c *TlsConnectedClient) SendData(data []byte, onSent func(Error)) Error {
	return c.session.sendData(data, onSent)
}

// Shutdown sends close_notify and closes the underlying TCP stream.
func (c *TlsConnectedClient) Shutdown() {
	c.session.shutdown()
	c.tcp.Close()
}

// Close closes the underlying TCP connection without shutting the session
// down first; the teardown runs on the next loop cycle.
func (c *TlsConnectedClient) Close() { c.tcp.Close() }

// NegotiatedVersion reports the negotiated TLS version.
func (c *TlsConnectedClient) NegotiatedVersion() NegotiatedVersion { return c.session.negotiatedVersion() }

// Endpoint returns the remote peer's address.
func (c *TlsConnectedClient) Endpoint() Endpoint { return c.tcp.Endpoint() }
