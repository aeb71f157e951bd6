package ioreactor

import (
	"net"
	"sync"
	"time"
)

// tlsTransport is the ciphertext carrier a bioConn writes to and is fed
// from: a TcpStream for TLS, or a UdpClient/UdpServer peer for DTLS.
type tlsTransport interface {
	// sendCiphertext writes one record's worth of bytes out-of-band from
	// the loop thread; a transport error is returned here, and
	// bioConn.Write passes it on to the TLS/DTLS engine.
	sendCiphertext(data []byte) error
	remoteEndpoint() Endpoint
}

// bioConn adapts the reactor's push-driven ciphertext delivery to the
// blocking net.Conn interface crypto/tls.Conn requires: inbound records are
// pushed onto a buffered channel from the loop thread as they arrive, and
// Read blocks (on a pump goroutine, never the loop thread) until one is
// available; Write passes straight through to the transport.
type bioConn struct {
	transport tlsTransport

	mu     sync.Mutex
	pend   []byte
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once
}

func newBioConn(transport tlsTransport) *bioConn {
	return &bioConn{
		transport: transport,
		inbox:     make(chan []byte, 64),
		closed:    make(chan struct{}),
	}
}

// deliver pushes one ciphertext record into the adapter's inbox. Called
// from the loop thread as datagrams/segments arrive. When the 64-slot inbox
// is full it blocks until the handshake/read pump goroutine takes a record
// or Close is called.
func (c *bioConn) deliver(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case c.inbox <- cp:
	case <-c.closed:
	}
}

func (c *bioConn) Read(b []byte) (int, error) {
	if len(c.pend) == 0 {
		select {
		case chunk, ok := <-c.inbox:
			if !ok {
				return 0, net.ErrClosed
			}
			c.pend = chunk
		case <-c.closed:
			return 0, net.ErrClosed
		}
	}
	n := copy(b, c.pend)
	c.pend = c.pend[n:]
	return n, nil
}

func (c *bioConn) Write(b []byte) (int, error) {
	if err := c.transport.sendCiphertext(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *bioConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *bioConn) LocalAddr() net.Addr  { return nil }
func (c *bioConn) RemoteAddr() net.Addr { return nil }

func (c *bioConn) SetDeadline(t time.Time) error      { return nil }
func (c *bioConn) SetReadDeadline(t time.Time) error   { return nil }
func (c *bioConn) SetWriteDeadline(t time.Time) error  { return nil }
