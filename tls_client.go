package ioreactor

// tcpCiphertextTransport adapts a TcpStream to tlsTransport for a TLS
// session layered over it.
type tcpCiphertextTransport struct {
	stream TcpStream
}

func (t *tcpCiphertextTransport) sendCiphertext(data []byte) error {
	err := t.stream.SendData(data, nil)
	if err.Truthy() {
		return err
	}
	return nil
}

func (t *tcpCiphertextTransport) remoteEndpoint() Endpoint {
	return t.stream.Endpoint()
}

// TlsClient dials out over TCP and layers a TLS client handshake on top,
// delivering decrypted application data through on_receive.
type TlsClient struct {
	Removable

	r      *Reactor
	tcp    *TcpClient
	cfg    TlsConfig
	session *tlsSession
}

// NewTlsClient constructs a client bound to reactor r.
func NewTlsClient(r *Reactor) *TlsClient {
	c := &TlsClient{r: r, tcp: NewTcpClient(r)}
	c.InitRemovable(r)
	c.SetOnScheduleRemoval(func() {
		if c.session != nil {
			c.session.shutdown()
		}
		c.tcp.Close()
	})
	return c
}

// Connect dials endpoint, then performs a TLS handshake per cfg.
// onHandshake fires once with the outcome; onReceive/onClose apply to the
// decrypted application stream thereafter.
func (c *TlsClient) Connect(endpoint Endpoint, cfg TlsConfig, onHandshake OnTlsHandshake, onReceive OnTcpReceive, onClose OnTcpClose) Error {
	c.cfg = cfg
	tlsCfg, err := cfg.buildClientConfig()
	if err.Truthy() {
		return err
	}

	transport := &tcpCiphertextTransport{stream: c.tcp}
	c.session = newTlsSessionForTls(c.r, transport, tlsCfg, false)

	return c.tcp.Connect(endpoint,
		func(connErr Error) {
			if connErr.Truthy() {
				onHandshake(connErr)
				return
			}
			c.session.start(onHandshake, onReceive, func(closeErr Error) {
				if onClose != nil {
					onClose(closeErr)
				}
				c.tcp.Close()
			})
		},
		func(chunk DataChunk) {
			c.session.deliverCiphertext(chunk.Bytes())
		},
		func(tcpCloseErr Error) {
			if c.session != nil {
				c.session.finish(tcpCloseErr)
			}
		},
	)
}

// SendData encrypts and sends plaintext once the handshake is finished.
func (c *TlsClient) SendData(data []byte, onSent func(Error)) Error {
	if c.session == nil {
		return NewError(NOT_CONNECTED, "handshake not started")
	}
	return c.session.sendData(data, onSent)
}

// Shutdown sends close_notify and closes the underlying TCP stream.
func (c *TlsClient) Shutdown() {
	if c.session != nil {
		c.session.shutdown()
	}
	c.tcp.Close()
}

// Close schedules the teardown of the session and its TCP stream for the
// next loop cycle.
func (c *TlsClient) Close() {
	c.ScheduleRemoval()
}

// NegotiatedVersion reports the negotiated TLS version, UNKNOWN before
// Finishing.
func (c *TlsClient) NegotiatedVersion() NegotiatedVersion {
	if c.session == nil {
		return VersionUnknown
	}
	return c.session.negotiatedVersion()
}

// IsOpen reports whether the underlying TCP connection is open.
func (c *TlsClient) IsOpen() bool { return c.tcp.IsOpen() }

// Endpoint returns the remote peer's address.
func (c *TlsClient) Endpoint() Endpoint { return c.tcp.Endpoint() }
