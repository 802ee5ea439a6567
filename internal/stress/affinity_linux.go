//go:build linux

package stress

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCore locks the calling goroutine to its OS thread and restricts
// that thread to a single core. The caller must unpinThread when done.
func pinToCore(coreID int) error {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(coreID)
	return unix.SchedSetaffinity(0, &set)
}

func unpinThread() {
	runtime.UnlockOSThread()
}
