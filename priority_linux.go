//go:build linux

package loopback

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// fifoPriority is a real-time priority high enough to preempt normal work
// while staying below the kernel's own threaded IRQ handlers (50).
const fifoPriority = 40

// raisePriority moves the calling OS thread to SCHED_FIFO, falling back to the
// lowest nice value when the process lacks CAP_SYS_NICE or an rtprio limit.
// The caller must have locked its goroutine to the thread.
func raisePriority() error {
	tid := unix.Gettid()

	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: fifoPriority,
	}

	fifoErr := unix.SchedSetAttr(tid, &attr, 0)
	if fifoErr == nil {
		return nil
	}

	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, -20); err != nil {
		return fmt.Errorf("sched_setattr: %v, setpriority: %w", fifoErr, err)
	}

	return nil
}
