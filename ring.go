package loopback

import (
	"sync/atomic"
)

// RingBuffer is a fixed-capacity byte FIFO for exactly one writer and one reader.
//
// The write and read cursors only grow; a position in the backing slice is the
// cursor modulo the capacity. The writer publishes its cursor after copying and
// the reader publishes its cursor after copying, so one Write and one Read may
// run concurrently without locks. Two writers or two readers may not.
//
// Write never blocks: when the buffer is short of space it accepts what fits
// and reports the count, and the caller retries the rest later.
type RingBuffer struct {
	writePos atomic.Uint64
	_        [56]byte
	readPos  atomic.Uint64
	_        [56]byte

	buf   []byte
	ready chan struct{}
}

// NewRingBuffer creates a ring buffer holding capacity bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}

	return &RingBuffer{
		buf:   make([]byte, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Cap returns the capacity in bytes.
func (rb *RingBuffer) Cap() int {
	return len(rb.buf)
}

// Write copies up to len(p) bytes into the buffer and returns the number accepted.
// Only the writer goroutine may call it.
func (rb *RingBuffer) Write(p []byte) int {
	w := rb.writePos.Load()
	r := rb.readPos.Load()

	size := uint64(len(rb.buf))
	free := size - (w - r)

	n := uint64(len(p))
	if n > free {
		n = free
	}

	if n == 0 {
		return 0
	}

	pos := w % size
	first := size - pos
	if first >= n {
		copy(rb.buf[pos:pos+n], p[:n])
	} else {
		copy(rb.buf[pos:], p[:first])
		copy(rb.buf[:n-first], p[first:n])
	}

	rb.writePos.Store(w + n)

	select {
	case rb.ready <- struct{}{}:
	default:
	}

	return int(n)
}

// Read copies up to min(len(p), Available()) bytes out of the buffer and returns the count.
// Only the reader goroutine may call it.
func (rb *RingBuffer) Read(p []byte) int {
	r := rb.readPos.Load()
	w := rb.writePos.Load()

	n := uint64(len(p))
	if avail := w - r; n > avail {
		n = avail
	}

	if n == 0 {
		return 0
	}

	size := uint64(len(rb.buf))
	pos := r % size
	first := size - pos
	if first >= n {
		copy(p[:n], rb.buf[pos:pos+n])
	} else {
		copy(p[:first], rb.buf[pos:])
		copy(p[first:n], rb.buf[:n-first])
	}

	rb.readPos.Store(r + n)

	return int(n)
}

// Available returns the number of unread bytes.
func (rb *RingBuffer) Available() int {
	r := rb.readPos.Load()
	w := rb.writePos.Load()

	// A third goroutine can observe the cursors between two publishes.
	switch {
	case w < r:
		return 0
	case w-r > uint64(len(rb.buf)):
		return len(rb.buf)
	}

	return int(w - r)
}

// Free returns the number of bytes Write would accept right now.
func (rb *RingBuffer) Free() int {
	return len(rb.buf) - rb.Available()
}

// Ready returns a channel that receives a value after a Write accepted data.
// The signal is coalesced, so the reader must drain Available after waking.
func (rb *RingBuffer) Ready() <-chan struct{} {
	return rb.ready
}

// Flush discards all buffered data and rewinds both cursors to zero.
// Neither the writer nor the reader may be inside Write or Read while it runs.
func (rb *RingBuffer) Flush() {
	rb.readPos.Store(0)
	rb.writePos.Store(0)

	select {
	case <-rb.ready:
	default:
	}
}
