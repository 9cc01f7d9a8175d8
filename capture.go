package loopback

import (
	"encoding/binary"
	"sync/atomic"
)

// sampleScale maps a signed 16-bit sample into [-1.0, 1.0).
const sampleScale = 1 << 15

// Normalize converts a signed 16-bit sample to floating point as v / 2^15.
func Normalize(v int16) float64 {
	return float64(v) / sampleScale
}

// CaptureBuffer is the append-only capture window of one test session.
//
// Only the capture worker appends. Other goroutines may call Len, Full and
// Snapshot at any time; they see every sample published before the length
// they observe.
type CaptureBuffer struct {
	samples []float64
	n       atomic.Int64
}

// NewCaptureBuffer allocates a capture window of capacity samples.
func NewCaptureBuffer(capacity int) *CaptureBuffer {
	if capacity < 0 {
		capacity = 0
	}

	return &CaptureBuffer{samples: make([]float64, capacity)}
}

// Cap returns the capacity in samples.
func (c *CaptureBuffer) Cap() int {
	return len(c.samples)
}

// Len returns the number of samples captured so far.
func (c *CaptureBuffer) Len() int {
	return int(c.n.Load())
}

// Full reports whether the window has reached capacity.
func (c *CaptureBuffer) Full() bool {
	return c.Len() >= len(c.samples)
}

// Reset rewinds the fill cursor.
func (c *CaptureBuffer) Reset() {
	c.n.Store(0)
}

// AppendPCM16 normalizes little-endian 16-bit samples from data and appends them
// until data is exhausted or the window is full. It returns the number of samples appended.
func (c *CaptureBuffer) AppendPCM16(data []byte) int {
	start := int(c.n.Load())
	i := start

	for off := 0; off+bytesPerSample <= len(data) && i < len(c.samples); off += bytesPerSample {
		c.samples[i] = Normalize(int16(binary.LittleEndian.Uint16(data[off:])))
		i++
	}

	c.n.Store(int64(i))

	return i - start
}

// Snapshot returns a copy of the samples captured so far.
func (c *CaptureBuffer) Snapshot() []float64 {
	n := c.Len()
	out := make([]float64, n)
	copy(out, c.samples[:n])

	return out
}
