//go:build linux && (amd64 || arm64)

package alsa

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Write plays interleaved frames from data, blocking until all whole frames
// were accepted. A trailing partial frame is ignored. It returns the number of
// bytes written. Underruns are recovered transparently and counted in Xruns.
func (p *PCM) Write(data []byte) (int, error) {
	if p.stream != Playback {
		return 0, errors.New("cannot write to a capture device")
	}

	return p.transfer(data, ioctlWriteiFrames, "WRITEI_FRAMES")
}

// Read fills data with interleaved captured frames, blocking until all whole
// frames were read. It returns the number of bytes read. Overruns are
// recovered transparently and counted in Xruns.
func (p *PCM) Read(data []byte) (int, error) {
	if p.stream != Capture {
		return 0, errors.New("cannot read from a playback device")
	}

	return p.transfer(data, ioctlReadiFrames, "READI_FRAMES")
}

func (p *PCM) transfer(data []byte, req uintptr, name string) (int, error) {
	if p.file == nil {
		return 0, errors.New("PCM device is closed")
	}

	frameSize := p.FrameSize()
	if frameSize == 0 {
		return 0, fmt.Errorf("invalid frame size for format %d", p.config.Format)
	}

	frames := uint32(len(data)) / frameSize
	if frames == 0 {
		return 0, nil
	}

	if p.State() == SNDRV_PCM_STATE_SETUP {
		if err := p.Prepare(); err != nil {
			return 0, err
		}
	}

	defer runtime.KeepAlive(data)

	done := uint32(0)
	for done < frames {
		xfer := sndXferi{
			Buf:    uintptr(unsafe.Pointer(&data[done*frameSize])),
			Frames: uframes(frames - done),
		}

		err := ioctlPtr(p.file.Fd(), req, unsafe.Pointer(&xfer))
		if xfer.Result > 0 {
			done += uint32(xfer.Result)
		}

		if err == nil {
			continue
		}

		if errors.Is(err, unix.EINTR) {
			continue
		}

		if recErr := p.recoverXrun(err); recErr != nil {
			return int(done * frameSize), fmt.Errorf("ioctl %s failed: %w", name, recErr)
		}
	}

	return int(done * frameSize), nil
}
