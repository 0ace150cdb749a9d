package manager

import (
	"context"

	"flume/internal/logging"
)

// Shutdown tears the coordinator down: shutdown hooks fire first, then
// the store closes (removing the isolated copy after a test run), then
// the lock is released. finishQueue is accepted for symmetry with the
// scheduler contract; by the time Shutdown runs the session has already
// drained or aborted, so it only affects hooks that care. Safe to call
// more than once.
func (m *Manager) Shutdown(ctx context.Context, finishQueue bool) error {
	m.mu.Lock()
	if m.shutdownDone {
		m.mu.Unlock()
		return nil
	}
	m.shutdownDone = true
	m.mu.Unlock()

	m.logger.Debug("shutting down", logging.Bool("finish_queue", finishQueue))

	var firstErr error
	if err := m.registry.FireShutdown(ctx); err != nil {
		// Already logged per callback; teardown continues.
		firstErr = err
	}

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.logger.Warn("close store", logging.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
		if m.opts.Test {
			if err := m.store.RemoveTestDatabase(); err != nil {
				// The safety rail refused; surface it as fatal so nobody
				// mistakes a kept file for a cleaned one.
				m.logger.Error(err.Error())
				if firstErr == nil {
					firstErr = fatal(err)
				}
			}
		}
	}

	if m.lock != nil {
		m.lock.Release()
	}
	return firstErr
}
