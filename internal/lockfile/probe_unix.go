//go:build unix

package lockfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// probeAlive reports whether the process exists. Signal 0 performs the
// existence check without delivering anything. EPERM means the process
// exists but belongs to another user, so it counts as alive; reclaiming
// such a lock would steal it from a live holder.
func probeAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
