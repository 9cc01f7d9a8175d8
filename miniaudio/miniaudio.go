// Package miniaudio is a portable loopback backend built on malgo, the Go
// binding of the miniaudio library.
//
// miniaudio drives devices from its own callback thread. Each device here
// bridges that callback to the blocking Read and Write calls of the loopback
// workers through a loopback.RingBuffer: the capture callback is the ring's
// writer and Read its reader, while Write is the writer and the playback
// callback the reader of the output ring.
package miniaudio

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/gen2brain/loopback"
)

const (
	// DefaultPeriodMillis is the device period used when a stream asks for the device minimum.
	DefaultPeriodMillis = 10
	// DefaultPeriods is the number of periods per device buffer.
	DefaultPeriods = 3
	// DefaultTimeout bounds a Read or Write that makes no progress.
	DefaultTimeout = time.Second
)

var (
	// ErrTimeout is returned when the device callback stopped moving data.
	ErrTimeout = errors.New("audio device timed out")
	// ErrClosed is returned by I/O on a released device.
	ErrClosed = errors.New("device closed")
)

// Backend opens miniaudio devices.
type Backend struct {
	// CaptureDevice and PlaybackDevice select devices whose name contains the
	// given text. Empty selects the system default.
	CaptureDevice  string
	PlaybackDevice string
	// Timeout bounds a Read or Write that makes no progress, DefaultTimeout when 0.
	Timeout time.Duration

	ctx    *malgo.AllocatedContext
	logger *log.Logger
}

var (
	_ loopback.Backend       = (*Backend)(nil)
	_ loopback.DelayReporter = (*output)(nil)
)

// New initializes a miniaudio context. Passing no backends lets miniaudio pick
// the platform default; malgo.BackendNull gives silent devices paced by a timer.
func New(logger *log.Logger, backends ...malgo.Backend) (*Backend, error) {
	if logger == nil {
		logger = log.Default()
	}

	ctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(message string) {
		logger.Printf("[miniaudio] %s", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize context: %w", err)
	}

	return &Backend{ctx: ctx, logger: logger}, nil
}

// Close releases the context. Devices must be closed first.
func (b *Backend) Close() error {
	if b.ctx == nil {
		return nil
	}

	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil

	return err
}

// Devices returns the names of the devices of the given type.
func (b *Backend) Devices(kind malgo.DeviceType) ([]string, error) {
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if info.IsDefault != 0 {
			name += " (default)"
		}
		names = append(names, name)
	}

	return names, nil
}

func (b *Backend) timeout() time.Duration {
	if b.Timeout > 0 {
		return b.Timeout
	}

	return DefaultTimeout
}

// deviceConfig builds the device config for p and returns the device buffer size in bytes.
func (b *Backend) deviceConfig(kind malgo.DeviceType, name string, p loopback.StreamParams) (malgo.DeviceConfig, int, error) {
	if p.BitDepth != 16 {
		return malgo.DeviceConfig{}, 0, fmt.Errorf("unsupported bit depth %d", p.BitDepth)
	}

	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.SampleRate = uint32(p.SampleRate)
	cfg.Periods = DefaultPeriods
	cfg.Alsa.NoMMap = 1

	sub := &cfg.Capture
	if kind == malgo.Playback {
		sub = &cfg.Playback
	}
	sub.Format = malgo.FormatS16
	sub.Channels = uint32(p.Channels)

	frameBytes := p.Channels * 2
	bufferBytes := p.BufferBytes
	if bufferBytes > 0 {
		cfg.PeriodSizeInFrames = uint32(bufferBytes / frameBytes / DefaultPeriods)
		if cfg.PeriodSizeInFrames == 0 {
			cfg.PeriodSizeInFrames = 1
		}
	} else {
		cfg.PeriodSizeInMilliseconds = DefaultPeriodMillis
		bufferBytes = p.SampleRate * DefaultPeriodMillis / 1000 * DefaultPeriods * frameBytes
	}

	if name != "" {
		infos, err := b.ctx.Devices(kind)
		if err != nil {
			return cfg, 0, fmt.Errorf("failed to enumerate devices: %w", err)
		}

		found := false
		for i := range infos {
			if strings.Contains(infos[i].Name(), name) {
				sub.DeviceID = infos[i].ID.Pointer()
				found = true

				break
			}
		}

		if !found {
			return cfg, 0, fmt.Errorf("no device matching '%s'", name)
		}
	}

	return cfg, bufferBytes, nil
}

// OpenInput opens the capture device.
func (b *Backend) OpenInput(p loopback.StreamParams) (loopback.InputDevice, error) {
	cfg, bufferBytes, err := b.deviceConfig(malgo.Capture, b.CaptureDevice, p)
	if err != nil {
		return nil, err
	}

	in := &input{
		ring:        loopback.NewRingBuffer(4 * bufferBytes),
		bufferBytes: bufferBytes,
		timeout:     b.timeout(),
		done:        make(chan struct{}),
	}

	in.device, err = malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, inputSamples []byte, _ uint32) {
			if n := in.ring.Write(inputSamples); n < len(inputSamples) {
				in.mu.Lock()
				in.dropped += len(inputSamples) - n
				in.mu.Unlock()
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return in, nil
}

// OpenOutput opens the playback device.
func (b *Backend) OpenOutput(p loopback.StreamParams) (loopback.OutputDevice, error) {
	cfg, bufferBytes, err := b.deviceConfig(malgo.Playback, b.PlaybackDevice, p)
	if err != nil {
		return nil, err
	}

	out := &output{
		ring:        loopback.NewRingBuffer(bufferBytes),
		bufferBytes: bufferBytes,
		rate:        p.SampleRate,
		frameBytes:  p.Channels * 2,
		timeout:     b.timeout(),
		space:       make(chan struct{}, 1),
		done:        make(chan struct{}),
	}

	out.device, err = malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(outputSamples, _ []byte, _ uint32) {
			n := out.ring.Read(outputSamples)
			clear(outputSamples[n:])

			if n > 0 {
				select {
				case out.space <- struct{}{}:
				default:
				}
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return out, nil
}

type input struct {
	device      *malgo.Device
	ring        *loopback.RingBuffer
	bufferBytes int
	timeout     time.Duration

	mu      sync.Mutex
	dropped int

	done      chan struct{}
	closeOnce sync.Once
}

// Read returns what the capture callback queued, waiting for data when the queue is empty.
func (in *input) Read(p []byte) (int, error) {
	timer := time.NewTimer(in.timeout)
	defer timer.Stop()

	for {
		if n := in.ring.Read(p); n > 0 {
			return n, nil
		}

		select {
		case <-in.ring.Ready():
		case <-in.done:
			return 0, ErrClosed
		case <-timer.C:
			return 0, ErrTimeout
		}
	}
}

func (in *input) Start() error {
	return in.device.Start()
}

// Stop halts the device and discards audio it captured but nobody read.
func (in *input) Stop() error {
	if err := in.device.Stop(); err != nil {
		return err
	}

	in.ring.Flush()

	return nil
}

func (in *input) Close() error {
	in.closeOnce.Do(func() {
		close(in.done)
		in.device.Uninit()
	})

	return nil
}

func (in *input) BufferBytes() int {
	return in.bufferBytes
}

// Dropped returns the number of captured bytes lost because Read fell behind.
func (in *input) Dropped() int {
	in.mu.Lock()
	defer in.mu.Unlock()

	return in.dropped
}

type output struct {
	device      *malgo.Device
	ring        *loopback.RingBuffer
	bufferBytes int
	rate        int
	frameBytes  int
	timeout     time.Duration

	space     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Write queues p for the playback callback, waiting while the queue is full.
func (out *output) Write(p []byte) (int, error) {
	timer := time.NewTimer(out.timeout)
	defer timer.Stop()

	written := 0
	for written < len(p) {
		select {
		case <-out.done:
			return written, ErrClosed
		default:
		}

		if n := out.ring.Write(p[written:]); n > 0 {
			written += n

			continue
		}

		select {
		case <-out.space:
		case <-out.done:
			return written, ErrClosed
		case <-timer.C:
			return written, ErrTimeout
		}
	}

	return written, nil
}

func (out *output) Play() error {
	if out.device.IsStarted() {
		return nil
	}

	return out.device.Start()
}

func (out *output) Pause() error {
	if !out.device.IsStarted() {
		return nil
	}

	return out.device.Stop()
}

// Flush discards queued audio. The device must be paused.
func (out *output) Flush() error {
	if out.device.IsStarted() {
		return errors.New("cannot flush a playing device")
	}

	out.ring.Flush()

	return nil
}

func (out *output) Close() error {
	out.closeOnce.Do(func() {
		close(out.done)
		out.device.Uninit()
	})

	return nil
}

func (out *output) BufferBytes() int {
	return out.bufferBytes
}

// Delay reports the audio queued ahead of the device callback.
func (out *output) Delay() (time.Duration, error) {
	select {
	case <-out.done:
		return 0, ErrClosed
	default:
	}

	frames := out.ring.Available() / out.frameBytes

	return time.Duration(frames) * time.Second / time.Duration(out.rate), nil
}
