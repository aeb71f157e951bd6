package ioreactor

import (
	"context"
	"net"
	"sync"
	"syscall"
	"time"
)

// OnUdpClientReceive delivers one inbound datagram from the client's fixed
// destination; packets from any other source are silently dropped.
type OnUdpClientReceive func(chunk DataChunk)

// UdpClient is a UDP endpoint "connected" (in the sense of remembering a
// single peer, not an OS-level connect) to one remote destination, with
// optional inactivity-timeout auto-close.
type UdpClient struct {
	Removable

	r    *Reactor
	conn *net.UDPConn
	fd   int

	recvBuf *recvBufferPool

	mu          sync.Mutex
	destination Endpoint
	hasDest     bool

	onReceive OnUdpClientReceive
	onClose   func(Error)

	lastPacket time.Time
	idleTimer  *Timer

	closed bool
}

// NewUdpClient constructs an unbound client.
func NewUdpClient(r *Reactor) *UdpClient {
	c := &UdpClient{r: r}
	c.InitRemovable(r)
	c.SetOnScheduleRemoval(func() { c.teardown() })
	return c
}

// SetDestination lazily binds the underlying socket (with address reuse),
// memorizes destination as the remote peer, and begins receiving. The
// destination's address family must match any previously set destination,
// else INVALID_ARGUMENT. If timeoutMs > 0, the client auto-closes and fires
// onClose(Ok()) once timeoutMs elapses with no packets seen.
func (c *UdpClient) SetDestination(destination Endpoint, onSet func(Error), onReceive OnUdpClientReceive, timeoutMs int64, onClose func(Error)) {
	c.mu.Lock()
	if c.hasDest && c.destination.Kind() != destination.Kind() {
		c.mu.Unlock()
		if onSet != nil {
			onSet(NewError(INVALID_ARGUMENT, "destination address family changed"))
		}
		return
	}
	c.destination = destination
	c.hasDest = true
	c.onReceive = onReceive
	c.onClose = onClose
	c.mu.Unlock()

	if c.conn == nil {
		if err := c.bind(destination); err.Truthy() {
			if onSet != nil {
				onSet(err)
			}
			return
		}
	}

	c.lastPacket = c.r.now()
	if timeoutMs > 0 {
		c.armIdleTimer(timeoutMs)
	}

	if onSet != nil {
		onSet(Ok())
	}
}

func (c *UdpClient) bind(destination Endpoint) Error {
	lc := net.ListenConfig{Control: func(network, address string, rc syscall.RawConn) error {
		var setErr error
		_ = rc.Control(func(fd uintptr) {
			setErr = setReuseAddr(fd)
		})
		return setErr
	}}
	local := "0.0.0.0:0"
	if destination.Kind() == EndpointIPv6 {
		local = "[::]:0"
	}
	pc, err := lc.ListenPacket(context.Background(), "udp", local)
	if err != nil {
		return NewError(FromOSError(err), err.Error())
	}
	conn := pc.(*net.UDPConn)
	c.conn = conn
	c.recvBuf = newRecvBufferPool(65536)

	rc, err := conn.SyscallConn()
	if err != nil {
		_ = conn.Close()
		return NewError(FromOSError(err), err.Error())
	}
	var fd int
	_ = rc.Control(func(f uintptr) { fd = int(f) })
	c.fd = fd

	if regErr := c.r.RegisterFD(fd, EventRead, func(IOEvents) { c.onReadable() }); regErr != nil {
		_ = conn.Close()
		return NewError(UNKNOWN_ERROR, regErr.Error())
	}
	return Ok()
}

func (c *UdpClient) armIdleTimer(timeoutMs int64) {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = NewTicker(c.r, time.Duration(timeoutMs)*time.Millisecond, func() {
		if c.r.now().Sub(c.lastPacket) >= time.Duration(timeoutMs)*time.Millisecond {
			onClose := c.onClose
			c.Close()
			if onClose != nil {
				onClose(Ok())
			}
		}
	})
}

func (c *UdpClient) onReadable() {
	for {
		buf := c.recvBuf.acquire()
		n, addr, err := c.conn.ReadFromUDP(buf.data)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		from := NewEndpointFromNetAddr(addr)
		c.mu.Lock()
		dest := c.destination
		c.mu.Unlock()
		if from.addr != dest.addr || from.Port() != dest.Port() {
			continue
		}
		c.lastPacket = c.r.now()
		if c.onReceive != nil {
			c.onReceive(newDataChunk(buf, n, 0))
		}
	}
}

// SendData writes data to the memorized destination. Returns
// INVALID_ARGUMENT if data is empty, OPERATION_CANCELED if the client has
// been closed, DESTINATION_ADDRESS_REQUIRED if SetDestination hasn't been
// called yet.
func (c *UdpClient) SendData(data []byte) Error {
	if len(data) == 0 {
		return NewError(INVALID_ARGUMENT, "empty payload")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return NewError(OPERATION_CANCELED, "client closed")
	}
	if !c.hasDest {
		c.mu.Unlock()
		return NewError(DESTINATION_ADDRESS_REQUIRED, "no destination set")
	}
	dest := c.destination
	c.mu.Unlock()

	addr := &net.UDPAddr{IP: dest.addr.AsSlice(), Port: int(dest.Port())}
	if _, err := c.conn.WriteToUDP(data, addr); err != nil {
		return NewError(FromOSError(err), err.Error())
	}
	c.lastPacket = c.r.now()
	return Ok()
}

// BoundPort returns the local port the client is bound to, or 0 if unbound.
func (c *UdpClient) BoundPort() uint16 {
	if c.conn == nil {
		return 0
	}
	return NewEndpointFromNetAddr(c.conn.LocalAddr()).Port()
}

// Endpoint returns the memorized destination endpoint.
func (c *UdpClient) Endpoint() Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destination
}

// IsOpen reports whether the client is bound and not yet closed.
func (c *UdpClient) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}

// Close tears down the socket. Idempotent.
func (c *UdpClient) Close() {
	c.ScheduleRemoval()
}

func (c *UdpClient) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	if c.conn != nil {
		_ = c.r.UnregisterFD(c.fd)
		_ = c.conn.Close()
	}
}
