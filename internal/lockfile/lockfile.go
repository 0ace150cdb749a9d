// Package lockfile provides filesystem-mediated mutual exclusion for a
// configuration scope. One plain-text lock file records the holder PID
// and, for daemons accepting forwarded work, a listening port.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"flume/internal/logging"
)

// State describes who holds the lock for a configuration scope.
type State int

const (
	// Unlocked means no live process holds the lock. A stale file left
	// by a dead process also reports Unlocked.
	Unlocked State = iota
	// HeldBySelf means this process already holds the lock.
	HeldBySelf
	// HeldByOther means another live process holds the lock.
	HeldByOther
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case HeldBySelf:
		return "held-by-self"
	case HeldByOther:
		return "held-by-other"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Info is the result of a lock inspection.
type Info struct {
	State State
	// PID is the recorded holder, zero when Unlocked.
	PID int
	// Port is the holder's delegation port, zero when the holder
	// advertises none.
	Port int
}

// ContentionError reports that another live process holds the lock.
type ContentionError struct {
	PID  int
	Path string
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("another process (%d) is running, will exit", e.PID)
}

// Guidance returns the operator hint printed alongside the error.
func (e *ContentionError) Guidance() string {
	return fmt.Sprintf("If you're sure there is no other instance running, delete %s", e.Path)
}

// ProbeFunc reports whether the process with the given PID is alive.
type ProbeFunc func(pid int) bool

// Manager owns one lock file. Methods are safe for concurrent use
// within the process; cross-process exclusion is what the file is for.
type Manager struct {
	path   string
	pid    int
	probe  ProbeFunc
	logger *slog.Logger

	mu sync.Mutex
	// held is a flat flag shared by nested acquisitions. The release
	// returned by an inner Acquire is a no-op; only the outermost
	// release deletes the file.
	held bool
}

// Option adjusts Manager construction.
type Option func(*Manager)

// WithProbe substitutes the process liveness probe.
func WithProbe(probe ProbeFunc) Option {
	return func(m *Manager) { m.probe = probe }
}

// WithPID overrides the PID recorded on acquisition.
func WithPID(pid int) Option {
	return func(m *Manager) { m.pid = pid }
}

// WithLogger sets the logger for stale-lock recovery notices.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// New builds a Manager for the scope named by the configuration base
// directory and name. The lock file is <base>/.<name>-lock.
func New(configBase, configName string, opts ...Option) *Manager {
	m := &Manager{
		path:   filepath.Join(configBase, "."+configName+"-lock"),
		pid:    os.Getpid(),
		probe:  probeAlive,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the lock file location.
func (m *Manager) Path() string { return m.path }

// Held reports whether this process currently holds the lock.
func (m *Manager) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

// Check inspects the lock file and probes the recorded holder. A file
// whose holder is no longer alive is reported as Unlocked and the
// reclaim decision is logged.
func (m *Manager) Check() (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkLocked()
}

func (m *Manager) checkLocked() (Info, error) {
	record, err := m.readRecord()
	if errors.Is(err, os.ErrNotExist) {
		return Info{State: Unlocked}, nil
	}
	if err != nil {
		return Info{}, err
	}
	if record.PID == m.pid {
		return Info{State: HeldBySelf, PID: record.PID, Port: record.Port}, nil
	}
	if !m.probe(record.PID) {
		m.logger.Info(fmt.Sprintf("PID %d no longer exists, ignoring lock file.", record.PID),
			logging.String("lock_file", m.path))
		return Info{State: Unlocked}, nil
	}
	return Info{State: HeldByOther, PID: record.PID, Port: record.Port}, nil
}

// Acquire takes the lock for this process and returns the matching
// release. When the lock is already held by this process the returned
// release does nothing and the file is left untouched. A live foreign
// holder yields a ContentionError.
func (m *Manager) Acquire() (release func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held {
		return func() {}, nil
	}

	info, err := m.checkLocked()
	if err != nil {
		return nil, fmt.Errorf("%w; if you're sure there is no other instance running, delete %s", err, m.path)
	}
	switch info.State {
	case HeldByOther:
		return nil, &ContentionError{PID: info.PID, Path: m.path}
	case HeldBySelf:
		// The file already records this PID. Refresh it and take the flag.
		if err := os.WriteFile(m.path, []byte(fmt.Sprintf("PID: %d\n", m.pid)), 0o644); err != nil {
			return nil, fmt.Errorf("write lock file: %w", err)
		}
		m.held = true
		return m.releaseOutermost, nil
	case Unlocked:
		// A dead holder's file must go before the exclusive create.
		if removeErr := os.Remove(m.path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock file: %w", removeErr)
		}
	}

	if err := m.createLocked(); err != nil {
		return nil, err
	}
	m.held = true
	return m.releaseOutermost, nil
}

// createLocked writes the lock file with an atomic create-or-fail so
// two racing processes cannot both win.
func (m *Manager) createLocked() error {
	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		// Lost the race. Whoever won is alive by definition.
		if record, readErr := m.readRecord(); readErr == nil {
			return &ContentionError{PID: record.PID, Path: m.path}
		}
		return &ContentionError{Path: m.path}
	}
	if err != nil {
		return fmt.Errorf("create lock file: %w", err)
	}
	_, writeErr := fmt.Fprintf(f, "PID: %d\n", m.pid)
	closeErr := f.Close()
	if writeErr != nil {
		os.Remove(m.path)
		return fmt.Errorf("write lock file: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(m.path)
		return fmt.Errorf("write lock file: %w", closeErr)
	}
	return nil
}

func (m *Manager) releaseOutermost() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held {
		return
	}
	m.held = false
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("failed to remove lock file",
			logging.String("lock_file", m.path),
			logging.Error(err))
	}
}

// Release drops the lock if held. It is the non-scoped form of the
// release returned by Acquire.
func (m *Manager) Release() {
	m.releaseOutermost()
}

// WritePort rewrites the lock file advertising a delegation port.
// Valid only while the lock is held.
func (m *Manager) WritePort(port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held {
		return errors.New("lock not held")
	}
	content := fmt.Sprintf("PID: %d\nPort: %d\n", m.pid, port)
	if err := os.WriteFile(m.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

type record struct {
	PID  int
	Port int
}

func (m *Manager) readRecord() (record, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return record{}, err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return record{}, fmt.Errorf("malformed lock file %s: empty", m.path)
	}
	pid, err := parseField(lines[0], "PID")
	if err != nil {
		return record{}, fmt.Errorf("malformed lock file %s: %w", m.path, err)
	}
	rec := record{PID: pid}
	for _, line := range lines[1:] {
		if port, err := parseField(line, "Port"); err == nil {
			rec.Port = port
		}
	}
	return rec, nil
}

func parseField(line, key string) (int, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), key+":")
	if !ok {
		return 0, fmt.Errorf("expected %q line, got %q", key, line)
	}
	value, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}
