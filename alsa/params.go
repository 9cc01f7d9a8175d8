//go:build linux && (amd64 || arm64)

package alsa

import (
	"fmt"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// paramInit opens every mask and interval to the full range.
func paramInit(p *sndPcmHwParams) {
	for n := range p.Masks {
		for i := range p.Masks[n].Bits {
			p.Masks[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Mres {
		for i := range p.Mres[n].Bits {
			p.Mres[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Intervals {
		p.Intervals[n] = sndInterval{MaxVal: ^uint32(0)}
	}

	for n := range p.Ires {
		p.Ires[n] = sndInterval{MaxVal: ^uint32(0)}
	}

	p.Rmask = ^uint32(0)
	p.Info = ^uint32(0)
}

func paramMask(p *sndPcmHwParams, param pcmParam) *sndMask {
	if param < firstMask || param > lastMask {
		return nil
	}

	return &p.Masks[param-firstMask]
}

func paramInterval(p *sndPcmHwParams, param pcmParam) *sndInterval {
	if param < firstInterval || param > lastInterval {
		return nil
	}

	return &p.Intervals[param-firstInterval]
}

// paramSetMask restricts a mask parameter to the single value bit.
func paramSetMask(p *sndPcmHwParams, param pcmParam, bit uint32) {
	mask := paramMask(p, param)
	if mask == nil {
		return
	}

	mask.Bits = [8]uint32{}
	if bit < 256 {
		mask.Bits[bit>>5] |= 1 << (bit & 31)
	}
}

func paramTest(p *sndPcmHwParams, param pcmParam, bit uint32) bool {
	mask := paramMask(p, param)
	if mask == nil || bit >= 256 {
		return false
	}

	return mask.Bits[bit>>5]&(1<<(bit&31)) != 0
}

// paramSetInt pins an interval parameter to val.
func paramSetInt(p *sndPcmHwParams, param pcmParam, val uint32) {
	if iv := paramInterval(p, param); iv != nil {
		*iv = sndInterval{MinVal: val, MaxVal: val, Flags: sndrvPcmIntervalInteger}
	}
}

func paramSetMin(p *sndPcmHwParams, param pcmParam, val uint32) {
	if iv := paramInterval(p, param); iv != nil {
		iv.MinVal = val
	}
}

// paramGetInt returns the lower bound of an interval, which is the value once the driver has fixed it.
func paramGetInt(p *sndPcmHwParams, param pcmParam) uint32 {
	if iv := paramInterval(p, param); iv != nil {
		return iv.MinVal
	}

	return 0
}

func paramGetMax(p *sndPcmHwParams, param pcmParam) uint32 {
	if iv := paramInterval(p, param); iv != nil {
		return iv.MaxVal
	}

	return 0
}

// Range is an inclusive interval of a hardware parameter.
type Range struct {
	Min, Max uint32
}

func (r Range) String() string {
	if r.Min == r.Max {
		return fmt.Sprintf("%d", r.Min)
	}

	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// Capabilities is the configuration space a PCM device accepts, as refined by the driver.
type Capabilities struct {
	Formats     []PcmFormat
	Rates       Range
	Channels    Range
	PeriodBytes Range
	Periods     Range
	BufferBytes Range
}

// Supports reports whether format is among the accepted formats.
func (c Capabilities) Supports(format PcmFormat) bool {
	for _, f := range c.Formats {
		if f == format {
			return true
		}
	}

	return false
}

// String returns a human-readable summary of the capabilities.
func (c Capabilities) String() string {
	var formats []string
	for _, f := range formatNames {
		if c.Supports(f.format) {
			formats = append(formats, f.name)
		}
	}

	return fmt.Sprintf("formats=%s rate=%s channels=%s period_bytes=%s periods=%s buffer_bytes=%s",
		strings.Join(formats, ","), c.Rates, c.Channels, c.PeriodBytes, c.Periods, c.BufferBytes)
}

// Query asks the driver which configurations a PCM device accepts.
// Constraints with a zero value are left open.
func Query(card, device uint, stream Stream, cfg Config) (Capabilities, error) {
	path := devicePath(card, device, stream)

	file, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return Capabilities{}, fmt.Errorf("failed to open PCM device %s for query: %w", path, err)
	}
	defer file.Close()

	hw := &sndPcmHwParams{}
	paramInit(hw)
	paramSetMask(hw, paramAccess, sndrvPcmAccessRwInterleaved)

	if cfg.Format != 0 {
		paramSetMask(hw, paramFormat, uint32(cfg.Format))
	}

	if cfg.Rate != 0 {
		paramSetInt(hw, paramRate, cfg.Rate)
	}

	if cfg.Channels != 0 {
		paramSetInt(hw, paramChannels, cfg.Channels)
	}

	if cfg.PeriodCount != 0 {
		paramSetInt(hw, paramPeriods, cfg.PeriodCount)
	}

	if err := ioctlPtr(file.Fd(), ioctlHwRefine, unsafe.Pointer(hw)); err != nil {
		return Capabilities{}, fmt.Errorf("ioctl HW_REFINE on %s failed: %w", path, err)
	}

	caps := Capabilities{
		Rates:       Range{paramGetInt(hw, paramRate), paramGetMax(hw, paramRate)},
		Channels:    Range{paramGetInt(hw, paramChannels), paramGetMax(hw, paramChannels)},
		PeriodBytes: Range{paramGetInt(hw, paramPeriodBytes), paramGetMax(hw, paramPeriodBytes)},
		Periods:     Range{paramGetInt(hw, paramPeriods), paramGetMax(hw, paramPeriods)},
		BufferBytes: Range{paramGetInt(hw, paramBufferBytes), paramGetMax(hw, paramBufferBytes)},
	}

	for _, f := range formatNames {
		if paramTest(hw, paramFormat, uint32(f.format)) {
			caps.Formats = append(caps.Formats, f.format)
		}
	}

	return caps, nil
}

// MinBufferBytes returns the smallest buffer, in bytes, the device accepts for cfg.
func MinBufferBytes(card, device uint, stream Stream, cfg Config) (int, error) {
	caps, err := Query(card, device, stream, cfg)
	if err != nil {
		return 0, err
	}

	if caps.BufferBytes.Min == 0 {
		return 0, fmt.Errorf("driver reported no minimum buffer size for %s", devicePath(card, device, stream))
	}

	return int(caps.BufferBytes.Min), nil
}
