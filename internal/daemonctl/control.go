package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"flume/internal/ipc"
	"flume/internal/lockfile"
)

// ErrNoDaemon means no live daemon advertises a port in the lock file.
var ErrNoDaemon = errors.New("no daemon is running for this configuration")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath   string
	SettingsPath string
	Debug        bool
}

// StopResult captures daemon stop orchestration state.
type StopResult struct {
	// Stopped means the daemon acknowledged and exited within grace.
	Stopped bool
	// Killed means the grace period lapsed and the process was killed.
	Killed bool
	PID    int
}

// Launch starts a detached `flume daemon run` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon", "run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if settingsPath := strings.TrimSpace(opts.SettingsPath); settingsPath != "" {
		args = append(args, "--settings", settingsPath)
	}
	if opts.Debug {
		args = append(args, "--debug")
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// Dial connects to the daemon advertising a port in the lock file.
func Dial(lock *lockfile.Manager, timeout time.Duration) (*ipc.Client, error) {
	info, err := lock.Check()
	if err != nil {
		return nil, err
	}
	if info.State == lockfile.Unlocked || info.Port == 0 {
		return nil, ErrNoDaemon
	}
	client, err := ipc.Dial(info.Port, timeout)
	if err != nil {
		return nil, fmt.Errorf("daemon (pid %d) advertises port %d but refused the connection: %w",
			info.PID, info.Port, err)
	}
	return client, nil
}

// WaitForClient polls until a freshly launched daemon advertises its
// port and accepts a connection.
func WaitForClient(lock *lockfile.Manager, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := Dial(lock, time.Second)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// StopAndTerminate asks the daemon to stop, waits out the grace
// period, and falls back to killing the recorded PID.
func StopAndTerminate(lock *lockfile.Manager, finishQueue bool, gracePeriod time.Duration) (StopResult, error) {
	info, err := lock.Check()
	if err != nil {
		return StopResult{}, err
	}
	if info.State == lockfile.Unlocked {
		return StopResult{}, ErrNoDaemon
	}
	result := StopResult{PID: info.PID}

	if info.Port > 0 {
		if client, dialErr := ipc.Dial(info.Port, 2*time.Second); dialErr == nil {
			_, _ = client.Shutdown(finishQueue)
			_ = client.Close()
		}
	} else if signalErr := signalProcess(info.PID, syscall.SIGTERM); signalErr != nil {
		return result, fmt.Errorf("signal daemon (pid %d): %w", info.PID, signalErr)
	}

	if waitForExit(lock, gracePeriod) {
		result.Stopped = true
		return result, nil
	}

	if err := signalProcess(info.PID, syscall.SIGKILL); err != nil {
		return result, fmt.Errorf("kill daemon (pid %d): %w", info.PID, err)
	}
	result.Killed = true
	// The killed process cannot clean up after itself.
	lock.Release()
	return result, nil
}

// waitForExit reports whether the lock clears before the deadline.
func waitForExit(lock *lockfile.Manager, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		info, err := lock.Check()
		if err == nil && info.State == lockfile.Unlocked {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

func signalProcess(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}
