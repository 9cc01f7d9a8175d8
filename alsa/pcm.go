//go:build linux && (amd64 || arm64)

package alsa

import (
	"errors"
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Config holds the hardware parameters of a PCM stream.
type Config struct {
	Channels    uint32
	Rate        uint32
	PeriodSize  uint32 // In frames.
	PeriodCount uint32
	Format      PcmFormat
}

// PCM is an open ALSA hardware PCM device using interleaved read/write access.
type PCM struct {
	file       *os.File
	stream     Stream
	config     Config
	bufferSize uint32 // In frames.
	sync       sndPcmSyncPtr
	xruns      int
}

func devicePath(card, device uint, stream Stream) string {
	return fmt.Sprintf("/dev/snd/pcmC%dD%d%c", card, device, stream.suffix())
}

// Open opens a hardware PCM device in blocking mode and applies cfg.
// The driver may adjust the period size; Config reports the values in use.
func Open(card, device uint, stream Stream, cfg Config) (*PCM, error) {
	path := devicePath(card, device, stream)

	// Open non-blocking so a busy device fails instead of hanging, then switch to blocking I/O.
	file, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCM device %s: %w", path, err)
	}

	flags, err := unix.FcntlInt(file.Fd(), unix.F_GETFL, 0)
	if err == nil {
		_, err = unix.FcntlInt(file.Fd(), unix.F_SETFL, flags&^unix.O_NONBLOCK)
	}

	if err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("failed to set blocking mode on %s: %w", path, err)
	}

	var info sndPcmInfo
	if err := ioctlPtr(file.Fd(), ioctlInfo, unsafe.Pointer(&info)); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("ioctl INFO on %s failed: %w", path, err)
	}

	p := &PCM{file: file, stream: stream}

	if err := p.setConfig(cfg); err != nil {
		_ = p.Close()

		return nil, fmt.Errorf("failed to configure %s: %w", path, err)
	}

	return p, nil
}

func (p *PCM) setConfig(cfg Config) error {
	hw := &sndPcmHwParams{}
	paramInit(hw)

	paramSetMask(hw, paramAccess, sndrvPcmAccessRwInterleaved)
	paramSetMask(hw, paramFormat, uint32(cfg.Format))
	paramSetMin(hw, paramPeriodSize, cfg.PeriodSize)
	paramSetInt(hw, paramChannels, cfg.Channels)
	paramSetInt(hw, paramPeriods, cfg.PeriodCount)
	paramSetInt(hw, paramRate, cfg.Rate)

	if err := ioctlPtr(p.file.Fd(), ioctlHwParams, unsafe.Pointer(hw)); err != nil {
		return fmt.Errorf("ioctl HW_PARAMS failed: %w", err)
	}

	p.config = Config{
		Channels:    paramGetInt(hw, paramChannels),
		Rate:        paramGetInt(hw, paramRate),
		PeriodSize:  paramGetInt(hw, paramPeriodSize),
		PeriodCount: paramGetInt(hw, paramPeriods),
		Format:      cfg.Format,
	}
	p.bufferSize = p.config.PeriodSize * p.config.PeriodCount

	if p.config.Channels == 0 || p.config.Rate == 0 || p.config.PeriodSize == 0 || p.config.PeriodCount == 0 {
		return fmt.Errorf("driver finalized invalid PCM configuration (Channels=%d, Rate=%d, PeriodSize=%d, PeriodCount=%d)",
			p.config.Channels, p.config.Rate, p.config.PeriodSize, p.config.PeriodCount)
	}

	sw := &sndPcmSwParams{
		TstampMode: 1,
		PeriodStep: 1,
		AvailMin:   uframes(p.config.PeriodSize),
		XferAlign:  uframes(p.config.PeriodSize / 2),
	}

	if p.stream == Capture {
		sw.StartThreshold = 1
		sw.StopThreshold = uframes(p.bufferSize * 10)
	} else {
		sw.StartThreshold = uframes(p.bufferSize / 2)
		sw.StopThreshold = uframes(p.bufferSize)
	}

	if err := ioctlPtr(p.file.Fd(), ioctlSwParams, unsafe.Pointer(sw)); err != nil {
		return fmt.Errorf("ioctl SW_PARAMS failed: %w", err)
	}

	return nil
}

// Close releases the device.
func (p *PCM) Close() error {
	if p == nil || p.file == nil {
		return nil
	}

	err := p.file.Close()
	p.file = nil

	return err
}

// Config returns the parameters the driver settled on.
func (p *PCM) Config() Config {
	return p.config
}

// BufferSize returns the device buffer size in frames.
func (p *PCM) BufferSize() uint32 {
	return p.bufferSize
}

// FrameSize returns the size of one frame in bytes.
func (p *PCM) FrameSize() uint32 {
	return p.config.Channels * (PcmFormatToBits(p.config.Format) / 8)
}

// BufferBytes returns the device buffer size in bytes.
func (p *PCM) BufferBytes() int {
	return int(p.bufferSize * p.FrameSize())
}

// Xruns returns the number of overruns or underruns recovered so far.
func (p *PCM) Xruns() int {
	return p.xruns
}

// Prepare readies the stream for I/O, discarding an xrun or a stopped state.
func (p *PCM) Prepare() error {
	if err := ioctl(p.file.Fd(), ioctlPrepare, 0); err != nil {
		return fmt.Errorf("ioctl PREPARE failed: %w", err)
	}

	return p.syncPtr(sndrvPcmSyncPtrAppl | sndrvPcmSyncPtrAvailMin)
}

// Start prepares the stream if needed and starts it.
func (p *PCM) Start() error {
	switch p.State() {
	case SNDRV_PCM_STATE_RUNNING:
		return nil
	case SNDRV_PCM_STATE_SETUP, SNDRV_PCM_STATE_XRUN:
		if err := p.Prepare(); err != nil {
			return err
		}
	}

	if err := ioctl(p.file.Fd(), ioctlStart, 0); err != nil {
		return fmt.Errorf("ioctl START failed: %w", err)
	}

	return nil
}

// Drop stops the stream immediately, discarding pending frames.
func (p *PCM) Drop() error {
	if err := ioctl(p.file.Fd(), ioctlDrop, 0); err != nil {
		return fmt.Errorf("ioctl DROP failed: %w", err)
	}

	return nil
}

// Drain blocks until pending playback frames have been played, then stops the stream.
func (p *PCM) Drain() error {
	if err := ioctl(p.file.Fd(), ioctlDrain, 0); err != nil {
		return fmt.Errorf("ioctl DRAIN failed: %w", err)
	}

	return nil
}

// Pause pauses or resumes a running stream. Not every driver supports it.
func (p *PCM) Pause(enable bool) error {
	var arg uintptr
	if enable {
		arg = 1
	}

	if err := ioctl(p.file.Fd(), ioctlPause, arg); err != nil {
		return fmt.Errorf("ioctl PAUSE failed: %w", err)
	}

	return nil
}

// Delay returns the number of frames between the application pointer and the DAC or ADC.
func (p *PCM) Delay() (int, error) {
	var delay int64
	if err := ioctlPtr(p.file.Fd(), ioctlDelay, unsafe.Pointer(&delay)); err != nil {
		return 0, fmt.Errorf("ioctl DELAY failed: %w", err)
	}

	return int(delay), nil
}

// FramesToDuration converts a frame count to play time at the stream rate.
func (p *PCM) FramesToDuration(frames int) time.Duration {
	if p.config.Rate == 0 {
		return 0
	}

	return time.Duration(frames) * time.Second / time.Duration(p.config.Rate)
}

// State returns the current state of the stream, SNDRV_PCM_STATE_DISCONNECTED if it cannot be read.
func (p *PCM) State() PcmState {
	// APPL and AVAIL_MIN make the kernel report its pointers instead of taking ours.
	if err := p.syncPtr(sndrvPcmSyncPtrHwsync | sndrvPcmSyncPtrAppl | sndrvPcmSyncPtrAvailMin); err != nil {
		return SNDRV_PCM_STATE_DISCONNECTED
	}

	return p.sync.S.State
}

// syncPtr exchanges the application and hardware pointers with the kernel.
func (p *PCM) syncPtr(flags uint32) error {
	p.sync.Flags = flags
	if err := ioctlPtr(p.file.Fd(), ioctlSyncPtr, unsafe.Pointer(&p.sync)); err != nil {
		return fmt.Errorf("ioctl SYNC_PTR failed: %w", err)
	}

	return nil
}

// recoverXrun restarts the stream after an xrun or a suspend. Other errors are returned unchanged.
func (p *PCM) recoverXrun(err error) error {
	if !errors.Is(err, unix.EPIPE) && !errors.Is(err, unix.ESTRPIPE) {
		return err
	}

	p.xruns++

	if prepErr := p.Prepare(); prepErr != nil {
		return fmt.Errorf("recovery failed: could not prepare stream: %w", prepErr)
	}

	if p.stream == Capture {
		return p.Start()
	}

	return nil
}
