//go:build linux

package irq

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// LockThreadPriority pins the calling goroutine to its OS thread and sets
// that thread's nice value. Call it from the dispatcher goroutine before Run.
// Negative values need CAP_SYS_NICE.
func LockThreadPriority(nice int) error {
	runtime.LockOSThread()
	if err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), nice); err != nil {
		return fmt.Errorf("setpriority %d: %w", nice, err)
	}
	return nil
}
