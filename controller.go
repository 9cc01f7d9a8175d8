package loopback

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result describes one test session.
type Result struct {
	ID         string
	SampleRate int
	Started    time.Time
	Ended      time.Time // Zero while the session is running.
	// Samples is the normalized capture window, possibly shorter than its capacity.
	Samples  []float64
	Capacity int
	// OutputDelay is the device-side playback delay sampled when the session ended, if the output reports one.
	OutputDelay time.Duration
	// Stats holds the traffic of this session only.
	Stats Stats
}

// Complete reports whether the capture window was filled.
func (r Result) Complete() bool {
	return r.Capacity > 0 && len(r.Samples) >= r.Capacity
}

// writeErrorPause keeps an output device that accepts nothing from spinning the playback loop.
const writeErrorPause = time.Millisecond

type commandKind int

const (
	cmdRunTest commandKind = iota
	cmdEndTest
)

type command struct {
	kind  commandKind
	reply chan error
}

// session is the state of the test currently or most recently run.
type session struct {
	id      string
	capture *CaptureBuffer
	started time.Time
	ended   time.Time
	base    Stats
	stats   Stats
	delay   time.Duration
	span    trace.Span
}

// Controller is the playback consumer and the test state machine. It owns the
// output device, drains the ring buffer into it and starts and stops the
// Recorder. Operator commands are executed on the Run goroutine.
type Controller struct {
	mu *sync.Mutex

	cfg      Config
	backend  Backend
	ring     *RingBuffer
	rec      *Recorder
	stats    *counters
	logger   *log.Logger
	notifier Notifier
	tracer   trace.Tracer

	cmds chan command
	done chan struct{}

	// Written on the Run goroutine under mu.
	playing bool

	out     OutputDevice
	outBuf  []byte
	outOff  int
	outLen  int
	current atomic.Pointer[session]
}

// NewController creates the playback side. mu must be the mutex given to rec.
func NewController(mu *sync.Mutex, cfg Config, backend Backend, ring *RingBuffer, rec *Recorder, opts ...Option) *Controller {
	o := newOptions(opts)

	return &Controller{
		mu:       mu,
		cfg:      cfg,
		backend:  backend,
		ring:     ring,
		rec:      rec,
		stats:    rec.stats,
		logger:   o.logger,
		notifier: o.notifier,
		tracer:   o.tracer,
		cmds:     make(chan command),
		done:     make(chan struct{}),
	}
}

// RunTest starts a test session. If one is already playing it is ended, with
// its RecordingComplete event, and a fresh session starts; a second trigger is
// a restart, not a stop toggle.
// It returns once the playback worker has acted on the request.
func (c *Controller) RunTest(ctx context.Context) error {
	return c.send(ctx, cmdRunTest)
}

// EndTest stops the running test session. It does nothing when no session is playing.
func (c *Controller) EndTest(ctx context.Context) error {
	return c.send(ctx, cmdEndTest)
}

func (c *Controller) send(ctx context.Context, kind commandKind) error {
	cmd := command{kind: kind, reply: make(chan error, 1)}

	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Playing reports whether a test session is running.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.playing
}

// WaveData returns the samples captured by the most recent session so far.
func (c *Controller) WaveData() []float64 {
	s := c.current.Load()
	if s == nil {
		return nil
	}

	return s.capture.Snapshot()
}

// LastResult returns the most recent session, if any.
func (c *Controller) LastResult() (Result, bool) {
	s := c.current.Load()
	if s == nil {
		return Result{}, false
	}

	stats := s.stats
	if s.ended.IsZero() {
		stats = c.stats.snapshot().sub(s.base)
	}

	return Result{
		ID:          s.id,
		SampleRate:  c.cfg.SampleRate,
		Started:     s.started,
		Ended:       s.ended,
		Samples:     s.capture.Snapshot(),
		Capacity:    s.capture.Cap(),
		OutputDelay: s.delay,
		Stats:       stats,
	}, true
}

// Run opens the output device and executes the playback loop until ctx is cancelled.
// The output device is released on return.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	params := c.cfg.outputParams()

	out, err := c.backend.OpenOutput(params)
	if err != nil {
		err = fmt.Errorf("%w: open output (%s): %w", ErrDeviceInit, params, err)
		c.logger.Printf("[controller] %v", err)

		return err
	}
	defer c.release(out)

	size := out.BufferBytes()
	if params.BufferBytes <= 0 {
		c.logger.Printf("[controller] playback: computed min buff size = %d bytes", size)
	} else {
		c.logger.Printf("[controller] playback: using min buff size = %d bytes", size)
	}

	block := size &^ (bytesPerSample - 1)
	if block <= 0 {
		err = fmt.Errorf("%w: output buffer of %d bytes is unusable", ErrDeviceInit, size)
		c.logger.Printf("[controller] %v", err)

		return err
	}

	c.out = out
	c.outBuf = make([]byte, block)

	for {
		if !c.playing {
			select {
			case <-ctx.Done():
				return nil
			case cmd := <-c.cmds:
				c.handle(cmd)
			}

			continue
		}

		if c.outOff == c.outLen && c.ring.Available() < bytesPerSample {
			select {
			case <-ctx.Done():
				c.endTest()

				return nil
			case cmd := <-c.cmds:
				c.handle(cmd)
			case <-c.ring.Ready():
			}

			continue
		}

		select {
		case <-ctx.Done():
			c.endTest()

			return nil
		case cmd := <-c.cmds:
			c.handle(cmd)

			continue
		default:
		}

		if !c.pump() {
			continue
		}

		pause := time.NewTimer(writeErrorPause)
		select {
		case <-ctx.Done():
			pause.Stop()
			c.endTest()

			return nil
		case cmd := <-c.cmds:
			c.handle(cmd)
		case <-pause.C:
		}
		pause.Stop()
	}
}

// pump moves at most one output block from the ring buffer to the output device.
// It reports whether the output device took nothing while audio was pending.
func (c *Controller) pump() (stalled bool) {
	if c.outOff == c.outLen {
		want := c.ring.Available()
		if want > len(c.outBuf) {
			want = len(c.outBuf)
		}
		want &^= bytesPerSample - 1

		c.outLen = c.ring.Read(c.outBuf[:want])
		c.outOff = 0
	}

	if c.outOff < c.outLen {
		n, err := c.out.Write(c.outBuf[c.outOff:c.outLen])
		if n > 0 {
			c.outOff += n
			c.stats.bytesPlayed.Add(uint64(n))
		}

		if err != nil {
			c.stats.writeErrors.Add(1)
			c.logger.Printf("[controller] write: %v", err)
		}

		stalled = n <= 0
	}

	if !c.rec.IsStillRoomToRecord() {
		c.endTest()

		return false
	}

	return stalled
}

func (c *Controller) handle(cmd command) {
	var err error

	switch cmd.kind {
	case cmdRunTest:
		err = c.runTest()
	case cmdEndTest:
		c.endTest()
	}

	cmd.reply <- err
}

// runTest allocates a new capture window and starts playback and capture.
func (c *Controller) runTest() error {
	if c.playing {
		c.logger.Printf("[controller] run test, but still playing, restarting")
		c.endTest()
	}

	s := &session{
		id:      uuid.NewString(),
		capture: NewCaptureBuffer(c.cfg.CaptureSamples()),
		started: time.Now(),
		base:    c.stats.snapshot(),
	}

	_, s.span = c.tracer.Start(context.Background(), "loopback.test",
		trace.WithAttributes(
			attribute.String("loopback.session_id", s.id),
			attribute.Int("loopback.sample_rate", c.cfg.SampleRate),
			attribute.Int("loopback.capture_capacity", s.capture.Cap()),
		),
	)

	c.setPlaying(true)
	c.outOff, c.outLen = 0, 0

	if err := c.out.Play(); err != nil {
		c.logger.Printf("[controller] play: %v", err)
	}

	if err := c.rec.StartRecording(s.capture); err != nil {
		c.setPlaying(false)
		c.pauseAndFlush()

		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, "recorder initialization failed")
		s.span.End()

		return err
	}

	c.current.Store(s)
	c.logger.Printf("[controller] started capture test %s", s.id)
	c.notify(RecordingStarted)

	return nil
}

// endTest stops a playing session. Without one it leaves every device untouched.
func (c *Controller) endTest() {
	if !c.playing {
		return
	}

	c.logger.Printf("[controller] ending capture test")
	c.setPlaying(false)

	delay := c.outputDelay()

	if err := c.out.Pause(); err != nil {
		c.logger.Printf("[controller] pause: %v", err)
	}

	c.rec.StopRecording()
	c.ring.Flush()

	if err := c.out.Flush(); err != nil {
		c.logger.Printf("[controller] flush: %v", err)
	}
	c.outOff, c.outLen = 0, 0

	if s := c.current.Load(); s != nil && s.ended.IsZero() {
		done := &session{
			id:      s.id,
			capture: s.capture,
			started: s.started,
			ended:   time.Now(),
			base:    s.base,
			stats:   c.stats.snapshot().sub(s.base),
			delay:   delay,
		}

		outcome := "aborted"
		if s.capture.Full() {
			outcome = "completed"
		}

		s.span.SetAttributes(
			attribute.Int("loopback.samples_captured", s.capture.Len()),
			attribute.Int64("loopback.bytes_dropped", int64(done.stats.BytesDropped)),
			attribute.Int64("loopback.bytes_played", int64(done.stats.BytesPlayed)),
			attribute.String("loopback.outcome", outcome),
			attribute.Int64("loopback.output_delay_us", delay.Microseconds()),
		)
		s.span.End()

		c.current.Store(done)
	}

	c.notify(RecordingComplete)
}

// outputDelay samples the playback delay of the output device, 0 when it cannot report one.
func (c *Controller) outputDelay() time.Duration {
	r, ok := c.out.(DelayReporter)
	if !ok {
		return 0
	}

	d, err := r.Delay()
	if err != nil {
		c.logger.Printf("[controller] delay: %v", err)

		return 0
	}

	return d
}

func (c *Controller) pauseAndFlush() {
	if err := c.out.Pause(); err != nil {
		c.logger.Printf("[controller] pause: %v", err)
	}

	if err := c.out.Flush(); err != nil {
		c.logger.Printf("[controller] flush: %v", err)
	}
}

func (c *Controller) setPlaying(v bool) {
	c.mu.Lock()
	c.playing = v
	c.mu.Unlock()
}

func (c *Controller) notify(kind EventKind) {
	if c.notifier != nil {
		c.notifier.Notify(Event{Kind: kind})
	}
}

func (c *Controller) release(out OutputDevice) {
	c.out = nil

	if err := out.Close(); err != nil {
		c.logger.Printf("[controller] release output: %v", err)
	}
}
