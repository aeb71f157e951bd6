package ioreactor

import "sync/atomic"

// sharedBuffer is a reference-counted byte buffer. The reactor's receive
// paths hand out DataChunk values backed by one of these; if the use count
// goes above 1 after a callback returns, the library drops its own
// reference instead of reusing the buffer for the next read (§4.3 zero-copy
// rule: the common "consume within callback" path costs zero allocations,
// while retaining a chunk across callback boundaries is still safe).
type sharedBuffer struct {
	data     []byte
	refCount atomic.Int32
}

func newSharedBuffer(size int) *sharedBuffer {
	b := &sharedBuffer{data: make([]byte, size)}
	b.refCount.Store(1)
	return b
}

func (b *sharedBuffer) retain() *sharedBuffer {
	b.refCount.Add(1)
	return b
}

func (b *sharedBuffer) release() {
	b.refCount.Add(-1)
}

func (b *sharedBuffer) uses() int32 {
	return b.refCount.Load()
}

// DataChunk is a read-only view {buffer, size, offset} handed to receive
// callbacks. Bytes() is only valid for the duration of the callback unless
// Retain is called, which increments the backing buffer's shared-use count
// and returns a function that must eventually be called to release it.
type DataChunk struct {
	buf    *sharedBuffer
	size   int
	Offset uint64
}

// Bytes returns the chunk's payload. Do not retain the returned slice past
// the callback unless Retain() was called first.
func (c DataChunk) Bytes() []byte {
	if c.buf == nil {
		return nil
	}
	return c.buf.data[:c.size]
}

// Size returns the number of valid bytes in the chunk.
func (c DataChunk) Size() int { return c.size }

// Retain increments the backing buffer's use count, signaling the reactor
// that it should allocate a fresh buffer for the next read instead of
// reusing this one. Returns a release function; call it when done with the
// retained bytes.
func (c DataChunk) Retain() func() {
	if c.buf == nil {
		return func() {}
	}
	b := c.buf.retain()
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			b.release()
		}
	}
}

func newDataChunk(buf *sharedBuffer, size int, offset uint64) DataChunk {
	return DataChunk{buf: buf, size: size, Offset: offset}
}

// recvBufferPool manages the shared receive buffer for a single stream or
// datagram handle, implementing the reuse-unless-retained rule of §4.3.
type recvBufferPool struct {
	size    int
	current *sharedBuffer
}

func newRecvBufferPool(size int) *recvBufferPool {
	return &recvBufferPool{size: size}
}

// acquire returns a buffer to read into: the previously handed-out one if
// its use count is still 1 (nobody retained it), or a freshly allocated one
// otherwise.
func (p *recvBufferPool) acquire() *sharedBuffer {
	if p.current != nil && p.current.uses() == 1 {
		return p.current
	}
	if p.current != nil {
		p.current.release()
	}
	p.current = newSharedBuffer(p.size)
	return p.current
}

// release drops the pool's own reference, e.g. on handle teardown.
func (p *recvBufferPool) release() {
	if p.current != nil {
		p.current.release()
		p.current = nil
	}
}
