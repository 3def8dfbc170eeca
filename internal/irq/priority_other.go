//go:build !linux

package irq

import "runtime"

// LockThreadPriority pins the calling goroutine to its OS thread. Thread
// priorities are only adjusted on Linux.
func LockThreadPriority(nice int) error {
	runtime.LockOSThread()
	return nil
}
