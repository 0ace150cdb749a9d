package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"flume/internal/configfile"
	"flume/internal/deps"
	"flume/internal/logging"
	"flume/internal/store"
)

// Task is one unit of work handed to the scheduler. Options carries the
// per-invocation overrides merged over the task's configured settings.
type Task struct {
	Name     string
	Priority int
	Options  map[string]any
	Trigger  store.Trigger
}

// Runner executes one task to completion or failure.
type Runner interface {
	Run(ctx context.Context, task Task) error
}

// WorkFunc is the substitutable execution body. The default body only
// verifies optional helper binaries; feed fetching and transformation
// live behind this boundary.
type WorkFunc func(ctx context.Context, task Task) error

// TaskRunner is the store-backed Runner. Every run is recorded in the
// run history, and the per-task configuration fingerprint decides
// whether cached state from earlier runs is still usable.
type TaskRunner struct {
	doc    *configfile.Document
	store  *store.Store
	logger *slog.Logger
	work   WorkFunc
}

// Option adjusts TaskRunner construction.
type Option func(*TaskRunner)

// WithWork substitutes the execution body.
func WithWork(work WorkFunc) Option {
	return func(r *TaskRunner) {
		if work != nil {
			r.work = work
		}
	}
}

// New builds a TaskRunner bound to the configuration document and store.
func New(doc *configfile.Document, st *store.Store, logger *slog.Logger, opts ...Option) *TaskRunner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &TaskRunner{
		doc:    doc,
		store:  st,
		logger: logging.NewComponentLogger(logger, "runner"),
	}
	r.work = r.defaultWork
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the task, recording start and outcome. A missing
// optional dependency is logged with guidance and does not fail the
// process; the run is still recorded as failed so history shows it.
func (r *TaskRunner) Run(ctx context.Context, task Task) error {
	logger := r.logger.With(logging.String("task", task.Name))

	run, err := r.store.StartRun(ctx, task.Name, task.Trigger)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}

	fingerprint, fpErr := r.doc.TaskFingerprint(task.Name)
	if fpErr == nil {
		modified, checkErr := r.store.CheckConfigModified(ctx, task.Name, fingerprint)
		if checkErr != nil {
			logger.Warn("config change check failed", logging.Error(checkErr))
		} else if modified {
			logger.Info("Config change detected. Forcing reprocess of all entries.")
		}
	}

	logger.Info("executing task", logging.String("trigger", string(task.Trigger)))
	runErr := r.work(ctx, task)

	// Outcome writes must land even when the task context was canceled
	// by an abort.
	finishCtx := context.WithoutCancel(ctx)

	switch {
	case runErr == nil:
		if fpErr == nil {
			if err := r.store.RecordTaskRun(finishCtx, task.Name, fingerprint, run.StartedAt); err != nil {
				logger.Warn("record task state failed", logging.Error(err))
			}
		}
		if err := r.store.FinishRun(finishCtx, run.RunID, store.OutcomeSuccess, ""); err != nil {
			logger.Warn("record run finish failed", logging.Error(err))
		}
		return nil
	case errors.Is(runErr, context.Canceled):
		if err := r.store.FinishRun(finishCtx, run.RunID, store.OutcomeAborted, runErr.Error()); err != nil {
			logger.Warn("record run finish failed", logging.Error(err))
		}
		logger.Warn("task aborted")
		return runErr
	default:
		if err := r.store.FinishRun(finishCtx, run.RunID, store.OutcomeFailed, runErr.Error()); err != nil {
			logger.Warn("record run finish failed", logging.Error(err))
		}
		var missing *deps.MissingError
		if errors.As(runErr, &missing) {
			// Recoverable: the operator installs the helper and reruns.
			logger.Warn(missing.Error(), logging.String("hint", missing.Guidance()))
			return nil
		}
		logger.Error("task failed", logging.Error(runErr))
		return runErr
	}
}

// defaultWork verifies helper binaries named by the task's `requires`
// option and then honors cancellation. Real feed work replaces this via
// WithWork.
func (r *TaskRunner) defaultWork(ctx context.Context, task Task) error {
	if err := deps.CheckTaskRequirements(task.Options); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// MergedOptions overlays invocation options on top of the configured
// task settings without mutating either map.
func MergedOptions(configured, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(configured)+len(overrides))
	for k, v := range configured {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
