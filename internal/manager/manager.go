package manager

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"flume/internal/configfile"
	"flume/internal/hooks"
	"flume/internal/lockfile"
	"flume/internal/logging"
	"flume/internal/runner"
	"flume/internal/settings"
	"flume/internal/store"
)

// processSlot enforces one live Manager per process. Close releases it.
var processSlot atomic.Bool

// Options configure Manager construction.
type Options struct {
	// ConfigPath is the explicit document location or name; empty means
	// the default search path.
	ConfigPath string
	// Create writes an empty document when none is found.
	Create bool
	// Test isolates the run on a copy of the database.
	Test bool
	// ResetDB drops and recreates the schema on startup.
	ResetDB bool
	// Debug re-raises errors with full diagnostics instead of terse
	// exits.
	Debug bool

	Settings *settings.Settings
	Logger   *slog.Logger
}

// RunnerFactory builds the task runner once the document and store are
// available. Substituted in tests and by the daemon runtime.
type RunnerFactory func(doc *configfile.Document, st *store.Store, logger *slog.Logger) runner.Runner

// Manager coordinates one configuration scope for this process.
type Manager struct {
	opts     Options
	settings *settings.Settings
	logger   *slog.Logger
	registry *hooks.Registry

	newRunner RunnerFactory

	configPath string
	doc        *configfile.Document
	store      *store.Store
	lock       *lockfile.Manager
	dbUpgraded bool

	mu         sync.Mutex
	shutdownDone bool
}

// New builds the coordinator. It fails with ErrAlreadyActive when the
// process already holds one; the entry point constructs it exactly once
// and passes it by reference to every collaborator.
func New(opts Options) (*Manager, error) {
	if !processSlot.CompareAndSwap(false, true) {
		return nil, ErrAlreadyActive
	}
	if opts.Settings == nil {
		defaults := settings.Default()
		opts.Settings = &defaults
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		opts:     opts,
		settings: opts.Settings,
		logger:   logging.NewComponentLogger(logger, "manager"),
		registry: hooks.NewRegistry(logger),
	}
	m.newRunner = func(doc *configfile.Document, st *store.Store, taskLogger *slog.Logger) runner.Runner {
		return runner.New(doc, st, taskLogger)
	}
	return m, nil
}

// SetRunnerFactory substitutes task execution. Call before Initialize.
func (m *Manager) SetRunnerFactory(factory RunnerFactory) {
	if factory != nil {
		m.newRunner = factory
	}
}

// NewRunner builds a task runner from the active factory. Valid after
// Initialize.
func (m *Manager) NewRunner() runner.Runner {
	return m.newRunner(m.doc, m.store, m.logger)
}

// Hooks exposes the lifecycle registry so collaborators can subscribe
// before Initialize fires the startup sequence.
func (m *Manager) Hooks() *hooks.Registry { return m.registry }

// Config returns the loaded document, nil before Initialize.
func (m *Manager) Config() *configfile.Document { return m.doc }

// ConfigPath returns the resolved document location.
func (m *Manager) ConfigPath() string { return m.configPath }

// Store returns the open store, nil before Initialize.
func (m *Manager) Store() *store.Store { return m.store }

// Lock returns the scope's lock manager, nil before Initialize.
func (m *Manager) Lock() *lockfile.Manager { return m.lock }

// Settings returns the process settings.
func (m *Manager) Settings() *settings.Settings { return m.settings }

// Logger returns the manager's logger.
func (m *Manager) Logger() *slog.Logger { return m.logger }

// Debug reports whether full diagnostics were requested.
func (m *Manager) Debug() bool { return m.opts.Debug }

// TestMode reports whether this run operates on an isolated database
// copy.
func (m *Manager) TestMode() bool { return m.opts.Test }

// DBUpgraded reports whether any collaborator migrated schema during
// Initialize.
func (m *Manager) DBUpgraded() bool { return m.dbUpgraded }

// Close releases the process slot so a later construction (tests,
// embedding) can succeed. It does not run shutdown; use Shutdown for
// orderly teardown first.
func (m *Manager) Close() {
	processSlot.Store(false)
}

// scopeFromPath derives the lock/database naming scope from the
// document location.
func scopeFromPath(path string) (base, name string) {
	base = filepath.Dir(path)
	name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return base, name
}
