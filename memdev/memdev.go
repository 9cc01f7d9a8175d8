// Package memdev provides an in-memory audio backend for loopback.
//
// Everything written to the output device is appended to a shared delay line
// and comes back out of the input device, like a cable from the speaker jack
// to the microphone jack. When the line holds less audio than a read asks
// for, the rest of the read is silence.
package memdev

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/loopback"
)

// DefaultBufferBytes is the device buffer used when a stream asks for the device minimum.
const DefaultBufferBytes = 3840

// ErrClosed is returned by I/O on a released device.
var ErrClosed = errors.New("device closed")

// Counts records how often each device operation was called.
type Counts struct {
	InputsOpened  int
	InputsClosed  int
	OutputsOpened int
	OutputsClosed int
	Starts        int
	Stops         int
	Reads         int
	Writes        int
	Plays         int
	Pauses        int
	Flushes       int
}

// Backend is an in-memory loopback.Backend. The zero value is not usable, use New.
type Backend struct {
	// LatencySamples of silence are queued on the line when an input starts.
	LatencySamples int
	// Period, if set, is slept before every input read to pace the stream.
	Period time.Duration
	// InputErr and OutputErr, if set, make the corresponding Open fail.
	InputErr  error
	OutputErr error
	// ReadHook, if set, is called at the start of every input read.
	ReadHook func()
	// WriteHook, if set, is called with every output write made while playing.
	// It returns how many leading bytes of p the line accepts and the error the
	// write reports, to simulate short or failing writes.
	WriteHook func(p []byte) (int, error)
	// MinBufferBytes is returned as the device minimum.
	MinBufferBytes int

	mu     sync.Mutex
	line   []byte
	counts Counts
}

var (
	_ loopback.Backend       = (*Backend)(nil)
	_ loopback.DelayReporter = (*output)(nil)
)

// New creates an in-memory backend with no latency and unpaced reads.
func New() *Backend {
	return &Backend{MinBufferBytes: DefaultBufferBytes}
}

// Counts returns a snapshot of the operation counters.
func (b *Backend) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Queued returns the number of bytes waiting on the line.
func (b *Backend) Queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.line)
}

// Inject appends raw 16-bit samples to the line, as if they were picked up by the microphone.
func (b *Backend) Inject(samples []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, v := range samples {
		b.line = append(b.line, byte(v), byte(uint16(v)>>8))
	}
}

func (b *Backend) bufferBytes(p loopback.StreamParams) int {
	if p.BufferBytes > 0 {
		return p.BufferBytes
	}

	return b.MinBufferBytes
}

func checkParams(p loopback.StreamParams) error {
	if p.SampleRate <= 0 || p.Channels != 1 || p.BitDepth != 16 {
		return fmt.Errorf("unsupported stream %s", p)
	}

	return nil
}

// OpenInput opens the microphone end of the line.
func (b *Backend) OpenInput(p loopback.StreamParams) (loopback.InputDevice, error) {
	if b.InputErr != nil {
		return nil, b.InputErr
	}

	if err := checkParams(p); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.counts.InputsOpened++
	b.mu.Unlock()

	return &input{b: b, size: b.bufferBytes(p)}, nil
}

// OpenOutput opens the speaker end of the line.
func (b *Backend) OpenOutput(p loopback.StreamParams) (loopback.OutputDevice, error) {
	if b.OutputErr != nil {
		return nil, b.OutputErr
	}

	if err := checkParams(p); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.counts.OutputsOpened++
	b.mu.Unlock()

	return &output{b: b, size: b.bufferBytes(p), rate: p.SampleRate}, nil
}

type input struct {
	b       *Backend
	size    int
	running bool
	closed  bool
}

func (in *input) BufferBytes() int {
	return in.size
}

func (in *input) Start() error {
	b := in.b

	b.mu.Lock()
	defer b.mu.Unlock()

	if in.closed {
		return ErrClosed
	}

	b.counts.Starts++
	if !in.running && b.LatencySamples > 0 {
		b.line = append(make([]byte, b.LatencySamples*2), b.line...)
	}
	in.running = true

	return nil
}

func (in *input) Stop() error {
	b := in.b

	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.Stops++
	in.running = false

	return nil
}

func (in *input) Close() error {
	b := in.b

	b.mu.Lock()
	defer b.mu.Unlock()

	if !in.closed {
		b.counts.InputsClosed++
		in.closed = true
	}

	return nil
}

func (in *input) Read(p []byte) (int, error) {
	b := in.b

	if b.ReadHook != nil {
		b.ReadHook()
	}

	if b.Period > 0 {
		time.Sleep(b.Period)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if in.closed {
		return 0, ErrClosed
	}

	b.counts.Reads++

	n := copy(p, b.line)
	b.line = b.line[:copy(b.line, b.line[n:])]
	clear(p[n:])

	return len(p), nil
}

type output struct {
	b       *Backend
	size    int
	rate    int
	playing bool
	closed  bool
}

func (out *output) BufferBytes() int {
	return out.size
}

func (out *output) Play() error {
	b := out.b

	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.Plays++
	out.playing = true

	return nil
}

func (out *output) Pause() error {
	b := out.b

	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.Pauses++
	out.playing = false

	return nil
}

func (out *output) Flush() error {
	b := out.b

	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.Flushes++
	b.line = b.line[:0]

	return nil
}

func (out *output) Close() error {
	b := out.b

	b.mu.Lock()
	defer b.mu.Unlock()

	if !out.closed {
		b.counts.OutputsClosed++
		out.closed = true
	}

	return nil
}

// Delay returns how long the audio queued on the line takes to play out.
func (out *output) Delay() (time.Duration, error) {
	b := out.b

	b.mu.Lock()
	defer b.mu.Unlock()

	if out.closed {
		return 0, ErrClosed
	}

	samples := len(b.line) / 2

	return time.Duration(samples) * time.Second / time.Duration(out.rate), nil
}

func (out *output) Write(p []byte) (int, error) {
	b := out.b

	b.mu.Lock()
	defer b.mu.Unlock()

	if out.closed {
		return 0, ErrClosed
	}

	b.counts.Writes++
	if !out.playing {
		return 0, nil
	}

	if b.WriteHook == nil {
		b.line = append(b.line, p...)

		return len(p), nil
	}

	b.mu.Unlock()
	n, err := b.WriteHook(p)
	b.mu.Lock()

	n = max(0, min(n, len(p)))
	b.line = append(b.line, p[:n]...)

	return n, err
}
