package ioreactor

import "net"

// TcpConnectedClient represents one accepted connection on a TcpServer. Its
// lifetime is owned by the server: Close, CloseWithReset, or server
// teardown remove it from the server's connection set before the final
// release. Shutdown only half-closes it and leaves it in the set.
type TcpConnectedClient struct {
	Removable
	streamCore

	r      *Reactor
	server *TcpServer
}

func newTcpConnectedClient(r *Reactor, server *TcpServer, conn *net.TCPConn) *TcpConnectedClient {
	c := &TcpConnectedClient{r: r, server: server}
	c.streamCore.r = r
	c.InitRemovable(r)
	c.SetOnScheduleRemoval(func() {
		c.server.removeClient(c)
		c.streamCore.finish(Ok())
	})
	return c
}

// SendData enqueues data for write; see streamCore.EnqueueSend.
func (c *TcpConnectedClient) SendData(data []byte, onEndSend func(Error)) Error {
	return c.streamCore.EnqueueSend(data, onEndSend)
}

// PendingSendRequests returns the number of writes not yet fully flushed.
func (c *TcpConnectedClient) PendingSendRequests() int32 { return c.streamCore.PendingSendRequests() }

// Shutdown half-closes the connection (stop writes, send FIN).
func (c *TcpConnectedClient) Shutdown() { c.streamCore.Shutdown() }

// Close fully closes the connection, removing it from the owning server and
// firing on_close(OK).
func (c *TcpConnectedClient) Close() { c.ScheduleRemoval() }

// CloseWithReset closes via SO_LINGER(1,0), producing an RST, and removes
// the connection from the owning server.
func (c *TcpConnectedClient) CloseWithReset() {
	if c.streamCore.conn != nil {
		_ = c.streamCore.conn.SetLinger(0)
	}
	c.ScheduleRemoval()
}

// DelaySend toggles Nagle: enabled=true delays small sends (Nagle on).
func (c *TcpConnectedClient) DelaySend(enabled bool) { c.streamCore.SetDelaySend(enabled) }

// IsOpen reports whether the connection is in the OPEN state.
func (c *TcpConnectedClient) IsOpen() bool { return c.streamCore.IsOpen() }

// Endpoint returns the remote peer's address.
func (c *TcpConnectedClient) Endpoint() Endpoint { return c.streamCore.Endpoint() }

// State reports the connection's current lifecycle state.
func (c *TcpConnectedClient) State() TcpState { return c.streamCore.State() }
