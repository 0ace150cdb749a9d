package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"flume/internal/hooks"
	"flume/internal/logging"
)

// CleanupInterval is how long cleanup stays dormant after a successful
// run.
const CleanupInterval = 7 * 24 * time.Hour

// cleanupWatermarkKey is the persistence key holding the last cleanup
// timestamp.
const cleanupWatermarkKey = "last_cleanup"

// Cleanup scrubs collaborator data through the db_cleanup hook. It runs
// at most once per CleanupInterval unless forced, and an advisory file
// lock keeps coordinators sharing one database from scrubbing
// concurrently. The return reports whether cleanup actually ran.
func (s *Store) Cleanup(ctx context.Context, force bool, registry *hooks.Registry) (bool, error) {
	ctx = ensureContext(ctx)

	guard := flock.New(s.path + ".cleanup")
	locked, err := guard.TryLock()
	if err != nil {
		return false, fmt.Errorf("cleanup advisory lock: %w", err)
	}
	if !locked {
		s.logger.Debug("cleanup already running in another process, skipping")
		return false, nil
	}
	defer func() { _ = guard.Unlock() }()

	if !force {
		last, ok, err := s.GetTime(ctx, cleanupWatermarkKey)
		if err != nil {
			return false, err
		}
		if ok && time.Since(last) < CleanupInterval {
			s.logger.Debug("not running db cleanup",
				logging.String("last_run", last.Format(time.RFC3339)))
			return false, nil
		}
	}

	s.logger.Info("Running database cleanup.")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin cleanup tx: %w", err)
	}
	if registry != nil {
		if err := registry.FireDBCleanup(ctx, tx); err != nil {
			_ = tx.Rollback()
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit cleanup: %w", err)
	}

	// Cleanup may have invalidated cached per-task state, so every task
	// does full work on its next run.
	if _, err := s.MarkAllConfigModified(ctx); err != nil {
		return false, err
	}
	if err := s.SetTime(ctx, cleanupWatermarkKey, time.Now()); err != nil {
		return false, err
	}
	return true, nil
}

// LastCleanup reads the cleanup watermark. Zero time when cleanup has
// never run.
func (s *Store) LastCleanup(ctx context.Context) (time.Time, error) {
	last, _, err := s.GetTime(ctx, cleanupWatermarkKey)
	return last, err
}
