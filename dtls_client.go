package ioreactor

// udpClientTransport adapts a UdpClient to tlsTransport for a DTLS session
// layered over it.
type udpClientTransport struct {
	client *UdpClient
}

func (t *udpClientTransport) sendCiphertext(data []byte) error {
	err := t.client.SendData(data)
	if err.Truthy() {
		return err
	}
	return nil
}

func (t *udpClientTransport) remoteEndpoint() Endpoint {
	return t.client.Endpoint()
}

// DtlsClient sends its first datagram to a fixed destination and layers a
// DTLS client handshake over a UdpClient.
type DtlsClient struct {
	Removable

	r       *Reactor
	udp     *UdpClient
	session *tlsSession
}

// NewDtlsClient constructs a client bound to reactor r.
func NewDtlsClient(r *Reactor) *DtlsClient {
	c := &DtlsClient{r: r, udp: NewUdpClient(r)}
	c.InitRemovable(r)
	c.SetOnScheduleRemoval(func() {
		if c.session != nil {
			c.session.shutdown()
		}
		c.udp.Close()
	})
	return c
}

// Connect memorizes destination, then performs a DTLS handshake per cfg.
func (c *DtlsClient) Connect(destination Endpoint, cfg TlsConfig, onHandshake OnTlsHandshake, onReceive OnTcpReceive, onClose OnTcpClose) {
	dtlsCfg, err := cfg.buildDtlsClientConfig()
	if err.Truthy() {
		onHandshake(err)
		return
	}

	transport := &udpClientTransport{client: c.udp}
	c.session = newTlsSessionForDtls(c.r, transport, dtlsCfg, false)

	c.udp.SetDestination(destination,
		func(setErr Error) {
			if setErr.Truthy() {
				onHandshake(setErr)
				return
			}
			c.session.start(onHandshake, onReceive, func(closeErr Error) {
				if onClose != nil {
					onClose(closeErr)
				}
				c.udp.Close()
			})
		},
		func(chunk DataChunk) {
			c.session.deliverCiphertext(chunk.Bytes())
		},
		0,
		nil,
	)
}

// SendData encrypts and sends plaintext once the handshake is finished.
func (c *DtlsClient) SendData(data []byte, onSent func(Error)) Error {
	if c.session == nil {
		return NewError(NOT_CONNECTED, "handshake not started")
	}
	return c.session.sendData(data, onSent)
}

// Shutdown sends close_notify and closes the underlying UDP endpoint.
func (c *DtlsClient) Shutdown() {
	if c.session != nil {
		c.session.shutdown()
	}
	c.udp.Close()
}

// Close schedules the teardown of the session and its UDP endpoint for the
// next loop cycle.
func (c *DtlsClient) Close() { c.ScheduleRemoval() }

// NegotiatedDtlsVersion reports the negotiated DTLS version, UNKNOWN before
// Finishing.
func (c *DtlsClient) NegotiatedDtlsVersion() NegotiatedVersion {
	if c.session == nil {
		return VersionUnknown
	}
	return c.session.negotiatedVersion()
}

// IsOpen reports whether the underlying UDP endpoint is open.
func (c *DtlsClient) IsOpen() bool { return c.udp.IsOpen() }

// Endpoint returns the memorized destination.
func (c *DtlsClient) Endpoint() Endpoint { return c.udp.Endpoint() }
