// Package loopback measures round-trip audio latency.
//
// A test tone is injected into the samples captured from an input device, the
// stream is pushed through a bounded ring buffer and played back on an output
// device, and a fixed-length window of the captured signal is kept for offline
// glitch and latency analysis.
//
// Two long-lived workers move the data: the Recorder (capture producer) and the
// Controller (playback consumer, which also runs the start/stop test state
// machine). The Engine starts both and tears them down.
package loopback

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeviceInit is returned when an input or output device fails to open or configure.
	ErrDeviceInit = errors.New("device initialization failed")
	// ErrShutdownTimeout is returned by Engine.Finish when the capture worker did not exit in time.
	ErrShutdownTimeout = errors.New("shutdown timed out")
	// ErrNotRunning is returned when a command is sent to a worker that is not running.
	ErrNotRunning = errors.New("worker not running")
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid config")
)

// Bytes per sample of the 16-bit mono stream.
const bytesPerSample = 2

// StreamParams describes the stream a device is opened with.
type StreamParams struct {
	SampleRate int
	Channels   int
	BitDepth   int
	// BufferBytes is the requested device buffer size in bytes, 0 lets the backend pick its minimum.
	BufferBytes int
}

// String returns a human-readable representation of the StreamParams.
func (p StreamParams) String() string {
	buf := "default"
	if p.BufferBytes > 0 {
		buf = fmt.Sprintf("%d bytes", p.BufferBytes)
	}

	return fmt.Sprintf("%d Hz, %d ch, %d bit, buffer %s", p.SampleRate, p.Channels, p.BitDepth, buf)
}

// InputDevice is a capture endpoint with blocking reads.
type InputDevice interface {
	// Read blocks until some audio is available and returns the number of bytes read.
	Read(p []byte) (int, error)
	Start() error
	Stop() error
	Close() error
	// BufferBytes returns the size of the device buffer actually in use.
	BufferBytes() int
}

// OutputDevice is a playback endpoint with blocking writes.
type OutputDevice interface {
	// Write blocks until the device accepted the data and returns the number of bytes written.
	Write(p []byte) (int, error)
	Play() error
	Pause() error
	// Flush discards audio queued in the device.
	Flush() error
	Close() error
	BufferBytes() int
}

// DelayReporter is implemented by output devices that can tell how long
// audio written now waits before it reaches the speaker.
type DelayReporter interface {
	Delay() (time.Duration, error)
}

// Backend opens audio devices.
type Backend interface {
	OpenInput(p StreamParams) (InputDevice, error)
	OpenOutput(p StreamParams) (OutputDevice, error)
}
