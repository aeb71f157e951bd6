package ioreactor

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// immediatePast is used as a read/write deadline to make a net.Conn call
// return immediately instead of blocking the loop thread: since the call is
// only ever made in response to the reactor's own readiness notification,
// data/capacity is already expected to be there, and a timeout just means
// "try again next cycle" rather than a real error.
var immediatePast = time.Unix(1, 0)

func isTimeoutErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// TcpStream is the operation set TcpClient and TcpConnectedClient share,
// letting the TLS overlay treat either as an interchangeable ciphertext
// transport.
type TcpStream interface {
	SendData(data []byte, onEndSend func(Error)) Error
	Shutdown()
	Close()
	CloseWithReset()
	DelaySend(enabled bool)
	IsOpen() bool
	Endpoint() Endpoint
	State() TcpState
}

// TcpState is the lifecycle of a TcpClient or TcpConnectedClient.
type TcpState int32

const (
	TcpIdle TcpState = iota
	TcpConnecting
	TcpOpen
	TcpClosing
	TcpClosed
)

// OnTcpReceive delivers one read completion. chunk.Offset is the cumulative
// byte count received on this stream before this chunk.
type OnTcpReceive func(chunk DataChunk)

// OnTcpClose fires exactly once, when a stream's read/write paths have both
// finished, with OK on a clean close/EOF or the triggering error otherwise.
type OnTcpClose func(err Error)

type pendingWrite struct {
	data   []byte
	onSent func(Error)
}

// streamCore is the read/write engine shared by TcpClient and
// TcpConnectedClient: both are a single TCP byte stream registered with the
// reactor's poller, differing only in how they come to exist (dial vs
// accept) and how their lifetime is owned.
type streamCore struct {
	r    *Reactor
	conn *net.TCPConn
	fd   int

	recvBuf  *recvBufferPool
	received uint64

	onReceive OnTcpReceive
	onClose   OnTcpClose

	mu          sync.Mutex
	state       atomic.Int32
	writeQueue  []*pendingWrite
	writePending bool
	noDelay     bool

	pendingSends atomic.Int32

	closeErr     Error
	closeNotified bool
}

func (s *streamCore) setState(st TcpState) {
	s.state.Store(int32(st))
}

func (s *streamCore) State() TcpState {
	return TcpState(s.state.Load())
}

// attach registers conn's fd with the reactor and begins the read pump.
func (s *streamCore) attach(r *Reactor, conn *net.TCPConn) Error {
	s.r = r
	s.conn = conn
	s.recvBuf = newRecvBufferPool(65536)

	rc, err := conn.SyscallConn()
	if err != nil {
		return NewError(FromOSError(err), err.Error())
	}
	var fd int
	_ = rc.Control(func(f uintptr) { fd = int(f) })
	s.fd = fd

	_ = conn.SetNoDelay(!s.noDelay)

	if regErr := r.RegisterFD(fd, EventRead, func(ev IOEvents) { s.onEvents(ev) }); regErr != nil {
		return NewError(UNKNOWN_ERROR, regErr.Error())
	}
	return Ok()
}

func (s *streamCore) onEvents(ev IOEvents) {
	if ev&EventRead != 0 {
		s.onReadable()
	}
	if ev&EventWrite != 0 {
		s.onWritable()
	}
}

// onReadable runs one read attempt per readiness notification. net.Conn has
// no raw non-blocking mode, so a read deadline of "now" is set first: with
// data already waiting (the only reason this is called) the read returns
// immediately; epoll is level-triggered, so any data left unread after one
// pass is reported again on the next cycle instead of requiring an
// internal drain loop that could otherwise park the loop thread.
func (s *streamCore) onReadable() {
	if s.State() != TcpOpen {
		return
	}
	buf := s.recvBuf.acquire()
	_ = s.conn.SetReadDeadline(immediatePast)
	n, err := s.conn.Read(buf.data)
	if n > 0 {
		chunk := newDataChunk(buf, n, s.received)
		s.received += uint64(n)
		if s.onReceive != nil {
			s.onReceive(chunk)
		}
	}
	if err != nil {
		if isTimeoutErr(err) {
			return
		}
		s.handleReadError(err)
	}
}

func (s *streamCore) handleReadError(err error) {
	code := FromOSError(err)
	if code == END_OF_FILE {
		if sc, scErr := s.conn.SyscallConn(); scErr == nil {
			var peekedCode StatusCode
			_ = sc.Control(func(fd uintptr) {
				peekedCode, _ = socketError(fd)
			})
			if peekedCode == CONNECTION_RESET_BY_PEER {
				s.finish(NewError(CONNECTION_RESET_BY_PEER, "connection reset by peer"))
				return
			}
		}
		s.finish(Ok())
		return
	}
	s.finish(NewError(code, err.Error()))
}

// EnqueueSend fails fast with NOT_CONNECTED/INVALID_ARGUMENT and otherwise
// queues data for write, incrementing pending_send_requests until the write
// completes.
func (s *streamCore) EnqueueSend(data []byte, onSent func(Error)) Error {
	if s.State() != TcpOpen {
		return NewError(NOT_CONNECTED, "stream not open")
	}
	if len(data) == 0 {
		return NewError(INVALID_ARGUMENT, "empty payload")
	}
	s.pendingSends.Add(1)
	s.mu.Lock()
	s.writeQueue = append(s.writeQueue, &pendingWrite{data: data, onSent: onSent})
	needsArm := !s.writePending
	s.writePending = true
	s.mu.Unlock()

	if needsArm {
		_ = s.r.ModifyFD(s.fd, EventRead|EventWrite)
	}
	return Ok()
}

func (s *streamCore) PendingSendRequests() int32 {
	return s.pendingSends.Load()
}

func (s *streamCore) onWritable() {
	for {
		s.mu.Lock()
		if len(s.writeQueue) == 0 {
			s.writePending = false
			s.mu.Unlock()
			_ = s.r.ModifyFD(s.fd, EventRead)
			return
		}
		w := s.writeQueue[0]
		s.mu.Unlock()

		_ = s.conn.SetWriteDeadline(immediatePast)
		n, err := s.conn.Write(w.data)
		if n > 0 {
			w.data = w.data[n:]
		}
		if err != nil {
			if isTimeoutErr(err) {
				// kernel send buffer is full; wait for the next
				// writability notification and retry from where n left
				// off.
				return
			}
			s.mu.Lock()
			s.writeQueue = s.writeQueue[1:]
			s.mu.Unlock()
			s.pendingSends.Add(-1)
			if w.onSent != nil {
				w.onSent(NewError(FromOSError(err), err.Error()))
			}
			s.finish(NewError(FromOSError(err), err.Error()))
			return
		}
		if len(w.data) == 0 {
			s.mu.Lock()
			s.writeQueue = s.writeQueue[1:]
			s.mu.Unlock()
			s.pendingSends.Add(-1)
			if w.onSent != nil {
				w.onSent(Ok())
			}
			continue
		}
		// short write: remaining bytes stay queued, wait for the next
		// writability notification.
		return
	}
}

// SetDelaySend toggles Nagle: delay=true enables Nagle (disables TCP_NODELAY).
func (s *streamCore) SetDelaySend(delay bool) {
	s.noDelay = delay
	if s.conn != nil {
		_ = s.conn.SetNoDelay(!delay)
	}
}

// Shutdown half-closes the stream: no further writes, FIN sent, reads still
// complete in whatever order the backend reports them.
func (s *streamCore) Shutdown() {
	if s.State() != TcpOpen {
		return
	}
	s.setState(TcpClosing)
	if s.conn != nil {
		_ = s.conn.CloseWrite()
	}
}

// Close fully closes the stream and fires onClose(OK) if not already fired.
func (s *streamCore) Close() {
	s.finish(Ok())
}

// CloseWithReset sets SO_LINGER(1,0) before closing, producing an RST.
func (s *streamCore) CloseWithReset() {
	if s.conn != nil {
		_ = s.conn.SetLinger(0)
	}
	s.finish(Ok())
}

// finish tears the stream down exactly once and notifies onClose.
func (s *streamCore) finish(err Error) {
	s.mu.Lock()
	if s.closeNotified {
		s.mu.Unlock()
		return
	}
	s.closeNotified = true
	s.closeErr = err
	s.mu.Unlock()

	s.setState(TcpClosed)
	if s.conn != nil {
		_ = s.r.UnregisterFD(s.fd)
		_ = s.conn.Close()
	}
	if s.onClose != nil {
		s.onClose(err)
	}
}

// teardownQuiet unregisters and closes the current conn without invoking
// onClose, for internal reuse (e.g. TcpClient.Connect replacing a prior
// stream before the new onClose/onReceive callbacks are even installed).
func (s *streamCore) teardownQuiet() {
	if s.conn != nil {
		_ = s.r.UnregisterFD(s.fd)
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Lock()
	s.writeQueue = nil
	s.writePending = false
	s.mu.Unlock()
	s.pendingSends.Store(0)
	s.received = 0
	s.closeNotified = false
}

// IsOpen reports whether the stream is in the OPEN state.
func (s *streamCore) IsOpen() bool {
	return s.State() == TcpOpen
}

// Endpoint returns the remote peer's address, or UndefinedEndpoint if
// unavailable (e.g. not yet connected, or getpeername failed).
func (s *streamCore) Endpoint() Endpoint {
	if s.conn == nil {
		return UndefinedEndpoint
	}
	addr := s.conn.RemoteAddr()
	if addr == nil {
		return UndefinedEndpoint
	}
	return NewEndpointFromNetAddr(addr)
}
