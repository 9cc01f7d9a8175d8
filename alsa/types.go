//go:build linux && (amd64 || arm64)

package alsa

import (
	"golang.org/x/sys/unix"
)

// Kernel structures for 64-bit Linux (unsigned long and pointers are 8 bytes).

type uframes = uint64

type sndMask struct {
	Bits [8]uint32
}

type sndInterval struct {
	MinVal uint32
	MaxVal uint32
	Flags  uint32
}

type sndPcmInfo struct {
	Device          uint32
	Subdevice       uint32
	Stream          int32
	Card            int32
	ID              [64]byte
	Name            [80]byte
	Subname         [32]byte
	DevClass        int32
	DevSubclass     int32
	SubdevicesCount uint32
	SubdevicesAvail uint32
	Sync            [16]byte
	Reserved        [64]byte
}

type sndPcmHwParams struct {
	Flags     uint32
	Masks     [3]sndMask
	Mres      [5]sndMask
	Intervals [12]sndInterval
	Ires      [9]sndInterval
	Rmask     uint32
	Cmask     uint32
	Info      uint32
	Msbits    uint32
	RateNum   uint32
	RateDen   uint32
	FifoSize  uframes
	Reserved  [64]byte
}

type sndPcmSwParams struct {
	TstampMode       int32
	PeriodStep       uint32
	SleepMin         uint32
	_                [4]byte
	AvailMin         uframes
	XferAlign        uframes
	StartThreshold   uframes
	StopThreshold    uframes
	SilenceThreshold uframes
	SilenceSize      uframes
	Boundary         uframes
	Proto            uint32
	TstampType       uint32
	Reserved         [56]byte
}

type sndPcmMmapStatus struct {
	State          PcmState
	_              int32
	HwPtr          uframes
	Tstamp         unix.Timespec
	SuspendedState PcmState
	_              int32
	AudioTstamp    unix.Timespec
}

type sndPcmMmapControl struct {
	ApplPtr  uframes
	AvailMin uframes
}

// sndPcmSyncPtr carries both unions padded to 64 bytes.
type sndPcmSyncPtr struct {
	Flags uint32
	_     [4]byte
	S     struct {
		sndPcmMmapStatus
		_ [8]byte
	}
	C struct {
		sndPcmMmapControl
		_ [48]byte
	}
}

type sndXferi struct {
	Result int64
	Buf    uintptr
	Frames uframes
}
