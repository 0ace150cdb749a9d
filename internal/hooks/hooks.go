// Package hooks is the ordered registry of lifecycle callbacks. Every
// extension point is a typed method pair, one to register and one to
// fire, so collaborators never dispatch on string keys.
package hooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"flume/internal/configfile"
	"flume/internal/logging"
)

// BeforeConfigLoadFunc runs before the configuration document is read.
type BeforeConfigLoadFunc func(ctx context.Context, configPath string) error

// BeforeConfigValidateFunc runs after parsing, before validation.
type BeforeConfigValidateFunc func(ctx context.Context, doc *configfile.Document) error

// UpgradeFunc migrates collaborator-owned schema. It reports whether it
// changed anything.
type UpgradeFunc func(ctx context.Context, db *sql.DB) (upgraded bool, err error)

// DBUpgradedFunc runs once when any upgrade callback reported a change.
type DBUpgradedFunc func(ctx context.Context, db *sql.DB) error

// StartupFunc runs when initialization completes.
type StartupFunc func(ctx context.Context) error

// DBCleanupFunc scrubs collaborator-owned data. All cleanup callbacks
// share one transaction and commit or roll back together.
type DBCleanupFunc func(ctx context.Context, tx *sql.Tx) error

// ShutdownFunc runs during teardown. All shutdown callbacks run even
// when earlier ones fail.
type ShutdownFunc func(ctx context.Context) error

// TasksFunc observes an execute batch by task name.
type TasksFunc func(ctx context.Context, tasks []string) error

// DaemonFunc observes daemon lifecycle edges.
type DaemonFunc func(ctx context.Context) error

type registration[F any] struct {
	owner string
	fn    F
}

// Registry fires callbacks in registration order. Registration is
// expected during process initialization; firing may happen from any
// goroutine afterwards.
type Registry struct {
	logger *slog.Logger

	mu                   sync.Mutex
	beforeConfigLoad     []registration[BeforeConfigLoadFunc]
	beforeConfigValidate []registration[BeforeConfigValidateFunc]
	upgrade              []registration[UpgradeFunc]
	dbUpgraded           []registration[DBUpgradedFunc]
	startup              []registration[StartupFunc]
	dbCleanup            []registration[DBCleanupFunc]
	shutdown             []registration[ShutdownFunc]
	executeStarted       []registration[TasksFunc]
	executeCompleted     []registration[TasksFunc]
	daemonStarted        []registration[DaemonFunc]
	daemonCompleted      []registration[DaemonFunc]
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{logger: logging.NewComponentLogger(logger, "hooks")}
}

// OnBeforeConfigLoad registers fn under the owner label used in logs.
func (r *Registry) OnBeforeConfigLoad(owner string, fn BeforeConfigLoadFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeConfigLoad = append(r.beforeConfigLoad, registration[BeforeConfigLoadFunc]{owner, fn})
}

func (r *Registry) OnBeforeConfigValidate(owner string, fn BeforeConfigValidateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeConfigValidate = append(r.beforeConfigValidate, registration[BeforeConfigValidateFunc]{owner, fn})
}

func (r *Registry) OnUpgrade(owner string, fn UpgradeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upgrade = append(r.upgrade, registration[UpgradeFunc]{owner, fn})
}

func (r *Registry) OnDBUpgraded(owner string, fn DBUpgradedFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dbUpgraded = append(r.dbUpgraded, registration[DBUpgradedFunc]{owner, fn})
}

func (r *Registry) OnStartup(owner string, fn StartupFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startup = append(r.startup, registration[StartupFunc]{owner, fn})
}

func (r *Registry) OnDBCleanup(owner string, fn DBCleanupFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dbCleanup = append(r.dbCleanup, registration[DBCleanupFunc]{owner, fn})
}

func (r *Registry) OnShutdown(owner string, fn ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = append(r.shutdown, registration[ShutdownFunc]{owner, fn})
}

func (r *Registry) OnExecuteStarted(owner string, fn TasksFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executeStarted = append(r.executeStarted, registration[TasksFunc]{owner, fn})
}

func (r *Registry) OnExecuteCompleted(owner string, fn TasksFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executeCompleted = append(r.executeCompleted, registration[TasksFunc]{owner, fn})
}

func (r *Registry) OnDaemonStarted(owner string, fn DaemonFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.daemonStarted = append(r.daemonStarted, registration[DaemonFunc]{owner, fn})
}

func (r *Registry) OnDaemonCompleted(owner string, fn DaemonFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.daemonCompleted = append(r.daemonCompleted, registration[DaemonFunc]{owner, fn})
}

// FireBeforeConfigLoad stops at the first failing callback.
func (r *Registry) FireBeforeConfigLoad(ctx context.Context, configPath string) error {
	for _, reg := range snapshot(r, &r.beforeConfigLoad) {
		if err := reg.fn(ctx, configPath); err != nil {
			return fmt.Errorf("before_config_load (%s): %w", reg.owner, err)
		}
	}
	return nil
}

func (r *Registry) FireBeforeConfigValidate(ctx context.Context, doc *configfile.Document) error {
	for _, reg := range snapshot(r, &r.beforeConfigValidate) {
		if err := reg.fn(ctx, doc); err != nil {
			return fmt.Errorf("before_config_validate (%s): %w", reg.owner, err)
		}
	}
	return nil
}

// FireUpgrade runs every upgrade callback and reports whether any of
// them migrated something.
func (r *Registry) FireUpgrade(ctx context.Context, db *sql.DB) (bool, error) {
	upgraded := false
	for _, reg := range snapshot(r, &r.upgrade) {
		changed, err := reg.fn(ctx, db)
		if err != nil {
			return upgraded, fmt.Errorf("upgrade (%s): %w", reg.owner, err)
		}
		if changed {
			r.logger.Info("schema upgraded", logging.String("owner", reg.owner))
			upgraded = true
		}
	}
	return upgraded, nil
}

func (r *Registry) FireDBUpgraded(ctx context.Context, db *sql.DB) error {
	for _, reg := range snapshot(r, &r.dbUpgraded) {
		if err := reg.fn(ctx, db); err != nil {
			return fmt.Errorf("db_upgraded (%s): %w", reg.owner, err)
		}
	}
	return nil
}

func (r *Registry) FireStartup(ctx context.Context) error {
	for _, reg := range snapshot(r, &r.startup) {
		if err := reg.fn(ctx); err != nil {
			return fmt.Errorf("startup (%s): %w", reg.owner, err)
		}
	}
	return nil
}

// FireDBCleanup runs every cleanup callback inside the caller's
// transaction. The first failure aborts so the caller can roll back.
func (r *Registry) FireDBCleanup(ctx context.Context, tx *sql.Tx) error {
	for _, reg := range snapshot(r, &r.dbCleanup) {
		if err := reg.fn(ctx, tx); err != nil {
			return fmt.Errorf("db_cleanup (%s): %w", reg.owner, err)
		}
	}
	return nil
}

// FireShutdown runs every shutdown callback, joining failures so a
// broken collaborator cannot block the rest of teardown.
func (r *Registry) FireShutdown(ctx context.Context) error {
	var errs []error
	for _, reg := range snapshot(r, &r.shutdown) {
		if err := reg.fn(ctx); err != nil {
			r.logger.Warn("shutdown callback failed",
				logging.String("owner", reg.owner),
				logging.Error(err))
			errs = append(errs, fmt.Errorf("shutdown (%s): %w", reg.owner, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) FireExecuteStarted(ctx context.Context, tasks []string) error {
	for _, reg := range snapshot(r, &r.executeStarted) {
		if err := reg.fn(ctx, tasks); err != nil {
			return fmt.Errorf("execute_started (%s): %w", reg.owner, err)
		}
	}
	return nil
}

func (r *Registry) FireExecuteCompleted(ctx context.Context, tasks []string) error {
	for _, reg := range snapshot(r, &r.executeCompleted) {
		if err := reg.fn(ctx, tasks); err != nil {
			return fmt.Errorf("execute_completed (%s): %w", reg.owner, err)
		}
	}
	return nil
}

func (r *Registry) FireDaemonStarted(ctx context.Context) error {
	for _, reg := range snapshot(r, &r.daemonStarted) {
		if err := reg.fn(ctx); err != nil {
			return fmt.Errorf("daemon_started (%s): %w", reg.owner, err)
		}
	}
	return nil
}

func (r *Registry) FireDaemonCompleted(ctx context.Context) error {
	for _, reg := range snapshot(r, &r.daemonCompleted) {
		if err := reg.fn(ctx); err != nil {
			return fmt.Errorf("daemon_completed (%s): %w", reg.owner, err)
		}
	}
	return nil
}

// snapshot copies a registration list under the registry lock so
// callbacks run without holding it.
func snapshot[F any](r *Registry, list *[]registration[F]) []registration[F] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]registration[F], len(*list))
	copy(out, *list)
	return out
}
