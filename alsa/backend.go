//go:build linux && (amd64 || arm64)

package alsa

import (
	"errors"
	"fmt"
	"time"

	"github.com/gen2brain/loopback"
)

// DefaultPeriodCount is the number of periods in a device buffer when Backend.PeriodCount is 0.
const DefaultPeriodCount = 4

// Backend opens ALSA hardware devices for a loopback test.
type Backend struct {
	CaptureCard    uint
	CaptureDevice  uint
	PlaybackCard   uint
	PlaybackDevice uint
	// PeriodCount is the number of periods per device buffer, DefaultPeriodCount when 0.
	PeriodCount uint32
}

var (
	_ loopback.Backend       = (*Backend)(nil)
	_ loopback.DelayReporter = (*output)(nil)
)

// OpenInput opens the capture device.
func (b *Backend) OpenInput(p loopback.StreamParams) (loopback.InputDevice, error) {
	pcm, err := b.open(b.CaptureCard, b.CaptureDevice, Capture, p)
	if err != nil {
		return nil, err
	}

	return &input{pcm: pcm}, nil
}

// OpenOutput opens the playback device.
func (b *Backend) OpenOutput(p loopback.StreamParams) (loopback.OutputDevice, error) {
	pcm, err := b.open(b.PlaybackCard, b.PlaybackDevice, Playback, p)
	if err != nil {
		return nil, err
	}

	return &output{pcm: pcm}, nil
}

// open configures a device for p. A zero p.BufferBytes asks the driver for its smallest buffer.
func (b *Backend) open(card, device uint, stream Stream, p loopback.StreamParams) (*PCM, error) {
	if p.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", p.BitDepth)
	}

	periods := b.PeriodCount
	if periods == 0 {
		periods = DefaultPeriodCount
	}

	cfg := Config{
		Channels:    uint32(p.Channels),
		Rate:        uint32(p.SampleRate),
		PeriodCount: periods,
		Format:      SNDRV_PCM_FORMAT_S16_LE,
	}

	bufferBytes := p.BufferBytes
	if bufferBytes <= 0 {
		n, err := MinBufferBytes(card, device, stream, cfg)
		if err != nil {
			return nil, err
		}
		bufferBytes = n
	}

	frameBytes := p.Channels * 2
	cfg.PeriodSize = uint32(bufferBytes / frameBytes / int(periods))
	if cfg.PeriodSize == 0 {
		cfg.PeriodSize = 1
	}

	return Open(card, device, stream, cfg)
}

type input struct {
	pcm *PCM
}

func (in *input) Read(p []byte) (int, error) {
	return in.pcm.Read(p)
}

func (in *input) Start() error {
	if err := in.pcm.Prepare(); err != nil {
		return err
	}

	return in.pcm.Start()
}

func (in *input) Stop() error {
	return in.pcm.Drop()
}

func (in *input) Close() error {
	return in.pcm.Close()
}

func (in *input) BufferBytes() int {
	return in.pcm.BufferBytes()
}

type output struct {
	pcm *PCM
}

func (out *output) Write(p []byte) (int, error) {
	return out.pcm.Write(p)
}

// Play resumes a paused stream or prepares a stopped one. A prepared stream
// starts once half its buffer has been written.
func (out *output) Play() error {
	switch out.pcm.State() {
	case SNDRV_PCM_STATE_PAUSED:
		return out.pcm.Pause(false)
	case SNDRV_PCM_STATE_RUNNING, SNDRV_PCM_STATE_PREPARED:
		return nil
	default:
		return out.pcm.Prepare()
	}
}

// Pause halts a running stream. Drivers without pause support are stopped instead.
func (out *output) Pause() error {
	if out.pcm.State() != SNDRV_PCM_STATE_RUNNING {
		return nil
	}

	err := out.pcm.Pause(true)
	if err == nil {
		return nil
	}

	if dropErr := out.pcm.Drop(); dropErr != nil {
		return errors.Join(err, dropErr)
	}

	return nil
}

// Flush discards queued frames and leaves the stream prepared.
func (out *output) Flush() error {
	if err := out.pcm.Drop(); err != nil {
		return err
	}

	return out.pcm.Prepare()
}

func (out *output) Close() error {
	return out.pcm.Close()
}

func (out *output) BufferBytes() int {
	return out.pcm.BufferBytes()
}

func (out *output) Delay() (time.Duration, error) {
	frames, err := out.pcm.Delay()
	if err != nil {
		return 0, err
	}

	return out.pcm.FramesToDuration(frames), nil
}
