// Package daemonctl detaches the daemon from its controlling terminal
// and gives the CLI a control surface over a running daemon: launch,
// connect, stop, and force-kill, all keyed off the lock file.
package daemonctl

import (
	"errors"
	"log/slog"
	"os"
)

// detachEnv marks the re-executed child so it does not detach again.
const detachEnv = "FLUME_DETACHED"

// ErrUnsupported is returned on platforms without process detachment.
var ErrUnsupported = errors.New("daemonize is not supported on this platform")

// Detacher moves the current invocation into a background session.
//
// Go cannot fork, so the POSIX double fork maps to a re-exec: the same
// command line is spawned in a new session with stdio on the null
// device and the working directory at the filesystem root, and the
// parent exits without running its deferred cleanups, the analogue of
// clearing inherited exit handlers so they do not run twice.
type Detacher interface {
	// Detach spawns the background child and returns its PID. The
	// caller must exit immediately via os.Exit(0) on success.
	// liveResources names process state (held lock, open store,
	// running scheduler) that will NOT survive into the child; a
	// non-empty list logs the mandatory warning but proceeds anyway.
	Detach(liveResources []string) (childPID int, err error)
}

// Detached reports whether this process is the re-executed background
// child.
func Detached() bool {
	return os.Getenv(detachEnv) == "1"
}

// NewDetacher returns the platform implementation.
func NewDetacher(logger *slog.Logger) Detacher {
	return newPlatformDetacher(logger)
}
