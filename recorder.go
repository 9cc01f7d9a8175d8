package loopback

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// readErrorPause keeps a failing input device from spinning the capture loop.
const readErrorPause = time.Millisecond

// Recorder is the capture producer. It owns the input device, injects the
// calibration tone into every block it reads, forwards the block to the ring
// buffer and fills the capture window of the current session.
//
// The recording flag and the input device are guarded by the mutex handed to
// NewRecorder, which the capture loop holds for a whole iteration.
type Recorder struct {
	mu   *sync.Mutex
	cond *sync.Cond

	cfg     Config
	backend Backend
	ring    *RingBuffer
	stats   *counters
	logger  *log.Logger

	recording bool
	in        InputDevice
	scratch   []byte
	carry     []byte

	tone       Tone
	toneCursor int

	capture *CaptureBuffer
}

// NewRecorder creates a capture producer writing into ring. mu is shared with the playback side.
func NewRecorder(mu *sync.Mutex, cfg Config, backend Backend, ring *RingBuffer, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}

	return &Recorder{
		mu:      mu,
		cond:    sync.NewCond(mu),
		cfg:     cfg,
		backend: backend,
		ring:    ring,
		stats:   &counters{},
		logger:  logger,
	}
}

// StartRecording begins a capture session that fills capture.
// It opens and starts the input device; on failure the recorder stays idle and
// the returned error wraps ErrDeviceInit.
func (r *Recorder) StartRecording(capture *CaptureBuffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		r.stopLocked()
	}

	r.recording = true
	r.capture = capture
	if capture != nil {
		capture.Reset()
	}

	if err := r.initLocked(); err != nil {
		r.logger.Printf("[recorder] initialization error: %v", err)
		r.recording = false
		r.capture = nil

		return err
	}

	r.logger.Printf("[recorder] ready to go, reading %d byte blocks", len(r.scratch))
	r.cond.Broadcast()

	return nil
}

// initLocked opens the input device and prepares the per-session state.
func (r *Recorder) initLocked() error {
	params := r.cfg.inputParams()

	in, err := r.backend.OpenInput(params)
	if err != nil {
		return fmt.Errorf("%w: open input (%s): %w", ErrDeviceInit, params, err)
	}

	size := in.BufferBytes()
	if params.BufferBytes <= 0 {
		r.logger.Printf("[recorder] computed min buff size = %d bytes", size)
	} else {
		r.logger.Printf("[recorder] using min buff size = %d bytes", size)
	}

	// Read half a device buffer per cycle, in whole samples.
	block := (size / 2) &^ (bytesPerSample - 1)
	if block <= 0 {
		_ = in.Close()

		return fmt.Errorf("%w: input buffer of %d bytes is unusable", ErrDeviceInit, size)
	}

	r.tone = GenerateTone(r.cfg.ToneSamples, r.cfg.ToneFrequency, r.cfg.SampleRate, r.cfg.ToneAmplitude, true)
	r.toneCursor = 0

	if cap(r.scratch) < block {
		r.scratch = make([]byte, block)
	}
	r.scratch = r.scratch[:block]
	r.carry = r.carry[:0]

	r.ring.Flush()

	if err := in.Start(); err != nil {
		_ = in.Close()

		return fmt.Errorf("%w: start input: %w", ErrDeviceInit, err)
	}

	r.in = in

	return nil
}

// StopRecording ends the capture session and releases the input device. It is safe to call repeatedly.
func (r *Recorder) StopRecording() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
}

func (r *Recorder) stopLocked() {
	wasRecording := r.recording
	r.recording = false

	if r.in != nil {
		if err := r.in.Stop(); err != nil {
			r.logger.Printf("[recorder] stop input: %v", err)
		}

		if err := r.in.Close(); err != nil {
			r.logger.Printf("[recorder] release input: %v", err)
		}

		r.in = nil
	}

	if wasRecording {
		r.logger.Printf("[recorder] stopped")
	}

	r.cond.Broadcast()
}

// Recording reports whether a capture session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.recording
}

// IsStillRoomToRecord reports whether the current capture window exists and is not yet full.
// The playback side polls it to detect the end of a test.
func (r *Recorder) IsStillRoomToRecord() bool {
	c := r.capture
	if c == nil {
		return false
	}

	return !c.Full()
}

// Stats returns the capture-side counters.
func (r *Recorder) Stats() Stats {
	return r.stats.snapshot()
}

// Run executes the capture loop until ctx is cancelled. It waits without
// spinning while no session is active. The input device is released on return.
func (r *Recorder) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	for {
		r.mu.Lock()
		for !(r.recording && r.in != nil) && ctx.Err() == nil {
			r.cond.Wait()
		}

		if ctx.Err() != nil {
			r.stopLocked()
			r.mu.Unlock()

			return nil
		}

		failed := r.processBlockLocked()
		r.mu.Unlock()

		if failed {
			time.Sleep(readErrorPause)
		}
	}
}

// processBlockLocked reads one block and pushes it downstream. It reports whether the read failed.
func (r *Recorder) processBlockLocked() bool {
	n, err := r.in.Read(r.scratch)
	if err != nil {
		r.stats.readErrors.Add(1)
		r.logger.Printf("[recorder] read: %v", err)

		if n <= 0 {
			return true
		}
	}

	n &^= bytesPerSample - 1
	if n <= 0 {
		return false
	}

	block := r.scratch[:n]
	r.stats.blocksRead.Add(1)
	r.stats.bytesCaptured.Add(uint64(n))

	r.injectTone(block)
	r.forward(block)

	if r.capture != nil && !r.capture.Full() {
		r.capture.AppendPCM16(block)
	}

	return false
}

// injectTone overwrites the samples of block that fall inside the tone window.
// The tone cursor advances once per sample whether or not it overwrote anything.
func (r *Recorder) injectTone(block []byte) {
	for off := 0; off+bytesPerSample <= len(block); off += bytesPerSample {
		if v, ok := r.tone.At(r.toneCursor - r.cfg.TonePreRoll); ok {
			block[off] = byte(v)
			block[off+1] = byte(uint16(v) >> 8)
		}

		r.toneCursor++
	}
}

// forward writes block to the ring buffer after any bytes left over from
// earlier cycles. Leftovers are capped at the ring capacity; beyond that the
// oldest whole samples are dropped.
func (r *Recorder) forward(block []byte) {
	if len(r.carry) == 0 {
		n := r.ring.Write(block)
		r.stats.bytesForwarded.Add(uint64(n))
		if n == len(block) {
			return
		}

		r.carry = append(r.carry, block[n:]...)
	} else {
		r.carry = append(r.carry, block...)

		n := r.ring.Write(r.carry)
		r.stats.bytesForwarded.Add(uint64(n))
		r.carry = r.carry[:copy(r.carry, r.carry[n:])]
	}

	if limit := r.ring.Cap(); len(r.carry) > limit {
		drop := len(r.carry) - limit
		drop += drop & (bytesPerSample - 1)
		if drop > len(r.carry) {
			drop = len(r.carry)
		}

		r.carry = r.carry[:copy(r.carry, r.carry[drop:])]
		r.stats.bytesDropped.Add(uint64(drop))
	}
}
