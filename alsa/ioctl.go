//go:build linux && (amd64 || arm64)

package alsa

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func ioctl(fd uintptr, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg)
	if errno != 0 {
		return errno
	}

	return nil
}

// ioctlPtr passes a pointer argument. The conversion happens in the Syscall
// call expression so the pointed-to memory stays valid for the whole call.
func ioctlPtr(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}

	return nil
}

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

// ioc builds an ioctl request code the way the _IOC macro does.
func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

var (
	ioctlInfo         = ioc(iocRead, 'A', 0x01, unsafe.Sizeof(sndPcmInfo{}))
	ioctlHwRefine     = ioc(iocRead|iocWrite, 'A', 0x10, unsafe.Sizeof(sndPcmHwParams{}))
	ioctlHwParams     = ioc(iocRead|iocWrite, 'A', 0x11, unsafe.Sizeof(sndPcmHwParams{}))
	ioctlSwParams     = ioc(iocRead|iocWrite, 'A', 0x13, unsafe.Sizeof(sndPcmSwParams{}))
	ioctlDelay        = ioc(iocRead, 'A', 0x21, unsafe.Sizeof(int64(0)))
	ioctlSyncPtr      = ioc(iocRead|iocWrite, 'A', 0x23, unsafe.Sizeof(sndPcmSyncPtr{}))
	ioctlPrepare      = ioc(iocNone, 'A', 0x40, 0)
	ioctlStart        = ioc(iocNone, 'A', 0x42, 0)
	ioctlDrop         = ioc(iocNone, 'A', 0x43, 0)
	ioctlDrain        = ioc(iocNone, 'A', 0x44, 0)
	ioctlPause        = ioc(iocWrite, 'A', 0x45, unsafe.Sizeof(int32(0)))
	ioctlWriteiFrames = ioc(iocWrite, 'A', 0x50, unsafe.Sizeof(sndXferi{}))
	ioctlReadiFrames  = ioc(iocRead, 'A', 0x51, unsafe.Sizeof(sndXferi{}))
)
