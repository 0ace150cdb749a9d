//go:build unix

package daemonctl

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"flume/internal/logging"
)

type posixDetacher struct {
	logger *slog.Logger
}

func newPlatformDetacher(logger *slog.Logger) Detacher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &posixDetacher{logger: logger}
}

// Detach re-executes the current command line in a new session. The
// child becomes a session leader with no controlling terminal, works
// from the filesystem root, and talks only to the null device.
func (d *posixDetacher) Detach(liveResources []string) (int, error) {
	if Detached() {
		return 0, fmt.Errorf("already detached")
	}
	if len(liveResources) > 0 {
		d.logger.Error("detaching with live process state; it will not survive into the background process",
			logging.String("resources", strings.Join(liveResources, ", ")))
	}

	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open null device: %w", err)
	}
	defer devNull.Close()

	child := exec.Command(executable, os.Args[1:]...)
	child.Env = append(os.Environ(), detachEnv+"=1")
	child.Dir = "/"
	child.Stdin = devNull
	child.Stdout = devNull
	child.Stderr = devNull
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return 0, fmt.Errorf("spawn background process: %w", err)
	}
	pid := child.Process.Pid
	if err := child.Process.Release(); err != nil {
		return pid, fmt.Errorf("release background process: %w", err)
	}
	d.logger.Info("daemon detached", logging.Int("pid", pid))
	return pid, nil
}
