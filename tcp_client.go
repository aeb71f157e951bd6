package ioreactor

import (
	"context"
	"net"
)

// OnTcpConnect reports the outcome of TcpClient.Connect.
type OnTcpConnect func(err Error)

// TcpClient is a TCP stream that dials out to a remote endpoint, cycling
// through TcpIdle -> TcpConnecting -> TcpOpen -> TcpClosing -> TcpClosed.
type TcpClient struct {
	Removable
	streamCore

	r *Reactor

	connectGen int
}

// NewTcpClient constructs an idle client bound to reactor r.
func NewTcpClient(r *Reactor) *TcpClient {
	c := &TcpClient{r: r}
	c.streamCore.r = r
	c.InitRemovable(r)
	c.SetOnScheduleRemoval(func() { c.streamCore.finish(Ok()) })
	return c
}

// Connect validates endpoint synchronously (INVALID_ARGUMENT if undefined),
// then dials asynchronously. If a previous stream exists it is closed first
// and the new connect is deferred to the next loop cycle. onConnect reports
// OK and transitions to TcpOpen on success, or the dial error (stream torn
// down) on failure.
func (c *TcpClient) Connect(endpoint Endpoint, onConnect OnTcpConnect, onReceive OnTcpReceive, onClose OnTcpClose) Error {
	if !endpoint.IsDefined() {
		return NewError(INVALID_ARGUMENT, "undefined endpoint")
	}

	c.connectGen++
	gen := c.connectGen

	c.streamCore.onReceive = onReceive
	c.streamCore.onClose = onClose
	c.streamCore.setState(TcpConnecting)

	// The connect syscall itself blocks until the handshake completes or
	// fails, so it runs on the work pool rather than the loop thread; only
	// the attach (fd registration) and callback delivery happen back on
	// the loop thread.
	dial := func(ctx context.Context) (any, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", endpoint.HostPort())
	}

	startDial := func() {
		if gen != c.connectGen {
			return
		}
		_, _ = c.r.AddWork(dial, func(result any, err error) {
			if gen != c.connectGen {
				if err == nil {
					_ = result.(net.Conn).Close()
				}
				return
			}
			if err != nil {
				c.streamCore.setState(TcpClosed)
				onConnect(NewError(FromOSError(err), err.Error()))
				return
			}
			conn := result.(*net.TCPConn)
			if attachErr := c.streamCore.attach(c.r, conn); attachErr.Truthy() {
				_ = conn.Close()
				c.streamCore.setState(TcpClosed)
				onConnect(attachErr)
				return
			}
			c.streamCore.setState(TcpOpen)
			onConnect(Ok())
		})
	}

	if c.streamCore.conn != nil {
		c.streamCore.teardownQuiet()
		_ = c.r.ExecuteOnLoopThread(startDial)
		return Ok()
	}

	startDial()
	return Ok()
}

// SendData enqueues data for write; see streamCore.EnqueueSend.
func (c *TcpClient) SendData(data []byte, onEndSend func(Error)) Error {
	return c.streamCore.EnqueueSend(data, onEndSend)
}

// PendingSendRequests returns the number of writes not yet fully flushed.
func (c *TcpClient) PendingSendRequests() int32 { return c.streamCore.PendingSendRequests() }

// Shutdown half-closes the stream (stop writes, send FIN).
func (c *TcpClient) Shutdown() { c.streamCore.Shutdown() }

// Close fully closes the stream, firing on_close(OK).
func (c *TcpClient) Close() { c.streamCore.Close() }

// CloseWithReset closes via SO_LINGER(1,0), producing an RST.
func (c *TcpClient) CloseWithReset() { c.streamCore.CloseWithReset() }

// DelaySend toggles Nagle: enabled=true delays small sends (Nagle on).
func (c *TcpClient) DelaySend(enabled bool) { c.streamCore.SetDelaySend(enabled) }

// IsOpen reports whether the client is in the OPEN state.
func (c *TcpClient) IsOpen() bool { return c.streamCore.IsOpen() }

// Endpoint returns the remote peer's address.
func (c *TcpClient) Endpoint() Endpoint { return c.streamCore.Endpoint() }

// State reports the client's current lifecycle state.
func (c *TcpClient) State() TcpState { return c.streamCore.State() }
