package loopback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Engine runs the capture and playback workers of a loopback test and tears them down.
type Engine struct {
	cfg    Config
	ring   *RingBuffer
	rec    *Recorder
	ctl    *Controller
	logger *log.Logger
	opts   options

	mu         sync.Mutex
	started    bool
	finished   bool
	group      *errgroup.Group
	cancelPlay context.CancelFunc
	cancelRec  context.CancelFunc
	playDone   chan struct{}
	recDone    chan struct{}
}

// New validates cfg and wires a recorder and a controller around a shared mutex and ring buffer.
func New(cfg Config, backend Backend, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidConfig)
	}

	o := newOptions(opts)

	var mu sync.Mutex
	ring := NewRingBuffer(cfg.RingCapacity)
	rec := NewRecorder(&mu, cfg, backend, ring, o.logger)
	ctl := NewController(&mu, cfg, backend, ring, rec, opts...)

	return &Engine{
		cfg:    cfg,
		ring:   ring,
		rec:    rec,
		ctl:    ctl,
		logger: o.logger,
		opts:   o,
	}, nil
}

// Start launches both workers. A worker that fails stops the other one.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return errors.New("engine already started")
	}
	e.started = true

	g, gctx := errgroup.WithContext(ctx)

	playCtx, cancelPlay := context.WithCancel(gctx)
	recCtx, cancelRec := context.WithCancel(gctx)

	e.group = g
	e.cancelPlay = cancelPlay
	e.cancelRec = cancelRec
	e.playDone = make(chan struct{})
	e.recDone = make(chan struct{})

	g.Go(func() error {
		defer close(e.recDone)

		return e.worker("recorder", func() error { return e.rec.Run(recCtx) })
	})

	g.Go(func() error {
		defer close(e.playDone)

		return e.worker("controller", func() error { return e.ctl.Run(playCtx) })
	})

	return nil
}

// worker runs fn on a dedicated OS thread at raised scheduling priority.
// A thread whose priority was raised is never unlocked, so the runtime
// discards it when fn returns instead of reusing it for other goroutines.
func (e *Engine) worker(name string, fn func() error) error {
	runtime.LockOSThread()

	raised := false
	if e.opts.realtime {
		if err := raisePriority(); err != nil {
			e.logger.Printf("[engine] %s: keeping default priority: %v", name, err)
		} else {
			raised = true
		}
	}

	if !raised {
		defer runtime.UnlockOSThread()
	}

	return fn()
}

// RunTest starts a test session. Calling it while a session is playing ends
// that session, emitting RecordingComplete, and then starts a new one with a
// new id and capture window. It never acts as a stop toggle; use EndTest to stop.
func (e *Engine) RunTest(ctx context.Context) error {
	return e.ctl.RunTest(ctx)
}

// EndTest stops the running test session.
func (e *Engine) EndTest(ctx context.Context) error {
	return e.ctl.EndTest(ctx)
}

// Playing reports whether a test session is running.
func (e *Engine) Playing() bool {
	return e.ctl.Playing()
}

// WaveData returns the samples captured by the most recent session so far.
func (e *Engine) WaveData() []float64 {
	return e.ctl.WaveData()
}

// LastResult returns the most recent session.
func (e *Engine) LastResult() (Result, bool) {
	return e.ctl.LastResult()
}

// Stats returns the counters accumulated since the engine was created.
func (e *Engine) Stats() Stats {
	return e.rec.Stats()
}

// Config returns the configuration the engine runs with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Wait blocks until both workers have exited and returns the first worker error.
func (e *Engine) Wait() error {
	e.mu.Lock()
	g := e.group
	e.mu.Unlock()

	if g == nil {
		return ErrNotRunning
	}

	return g.Wait()
}

// Finish stops the playback worker, giving it StopGrace to observe the stop,
// then stops the capture worker and waits at most JoinTimeout for it. A capture
// worker that does not exit in time is abandoned and ErrShutdownTimeout is returned.
func (e *Engine) Finish() error {
	e.mu.Lock()
	if !e.started || e.finished {
		e.mu.Unlock()

		return nil
	}
	e.finished = true
	e.mu.Unlock()

	e.cancelPlay()
	if !waitTimeout(e.playDone, e.cfg.StopGrace) {
		e.logger.Printf("[engine] playback worker still busy after %v", e.cfg.StopGrace)
	}

	e.cancelRec()
	if !waitTimeout(e.recDone, e.cfg.JoinTimeout) {
		e.logger.Printf("[engine] capture worker did not exit within %v, abandoning it", e.cfg.JoinTimeout)

		return fmt.Errorf("%w: capture worker still running after %v", ErrShutdownTimeout, e.cfg.JoinTimeout)
	}

	return nil
}

func waitTimeout(done <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
