//go:build !linux || !(amd64 || arm64)

package alsa

import (
	"errors"

	"github.com/gen2brain/loopback"
)

// ErrUnsupported is returned when ALSA devices are opened on a platform without ALSA support.
var ErrUnsupported = errors.New("alsa: not supported on this platform")

// Backend opens ALSA hardware devices for a loopback test.
type Backend struct {
	CaptureCard    uint
	CaptureDevice  uint
	PlaybackCard   uint
	PlaybackDevice uint
	PeriodCount    uint32
}

// OpenInput always fails with ErrUnsupported.
func (b *Backend) OpenInput(loopback.StreamParams) (loopback.InputDevice, error) {
	return nil, ErrUnsupported
}

// OpenOutput always fails with ErrUnsupported.
func (b *Backend) OpenOutput(loopback.StreamParams) (loopback.OutputDevice, error) {
	return nil, ErrUnsupported
}
