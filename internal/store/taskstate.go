package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TaskState mirrors one row of the task_state table.
type TaskState struct {
	Name           string
	ConfigHash     string
	ConfigModified bool
	LastRunAt      *time.Time
	UpdatedAt      time.Time
}

// EnsureTask creates a state row for a task on first sight. New rows
// start with the modified flag set so the first run does full work.
func (s *Store) EnsureTask(ctx context.Context, name string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(ctx,
		`INSERT INTO task_state (name, config_hash, config_modified, updated_at)
         VALUES (?, '', 1, ?)
         ON CONFLICT(name) DO NOTHING`,
		name, now)
	if err != nil {
		return fmt.Errorf("ensure task %q: %w", name, err)
	}
	return nil
}

// GetTaskState fetches one task's state, nil when unknown.
func (s *Store) GetTaskState(ctx context.Context, name string) (*TaskState, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT name, config_hash, config_modified, last_run_at, updated_at
         FROM task_state WHERE name = ?`, name)
	state, err := scanTaskState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task state %q: %w", name, err)
	}
	return state, nil
}

// ListTaskStates returns every known task's state ordered by name.
func (s *Store) ListTaskStates(ctx context.Context) ([]*TaskState, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, config_hash, config_modified, last_run_at, updated_at
         FROM task_state ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list task states: %w", err)
	}
	defer rows.Close()

	var states []*TaskState
	for rows.Next() {
		state, err := scanTaskState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// CheckConfigModified reports whether the task must do full work: the
// stored hash differs from the current fingerprint or the modified flag
// is set. Unknown tasks always report modified.
func (s *Store) CheckConfigModified(ctx context.Context, name, fingerprint string) (bool, error) {
	state, err := s.GetTaskState(ctx, name)
	if err != nil {
		return false, err
	}
	if state == nil {
		return true, nil
	}
	return state.ConfigModified || state.ConfigHash != fingerprint, nil
}

// RecordTaskRun stores the fingerprint of the configuration the task
// just ran with and clears the modified flag.
func (s *Store) RecordTaskRun(ctx context.Context, name, fingerprint string, ranAt time.Time) error {
	stamp := ranAt.UTC().Format(time.RFC3339Nano)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(ctx,
		`INSERT INTO task_state (name, config_hash, config_modified, last_run_at, updated_at)
         VALUES (?, ?, 0, ?, ?)
         ON CONFLICT(name) DO UPDATE SET
             config_hash = excluded.config_hash,
             config_modified = 0,
             last_run_at = excluded.last_run_at,
             updated_at = excluded.updated_at`,
		name, fingerprint, stamp, now)
	if err != nil {
		return fmt.Errorf("record task run %q: %w", name, err)
	}
	return nil
}

// MarkConfigModified flags one task for full reprocessing.
func (s *Store) MarkConfigModified(ctx context.Context, name string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(ctx,
		`UPDATE task_state SET config_modified = 1, updated_at = ? WHERE name = ?`,
		now, name)
	if err != nil {
		return fmt.Errorf("mark task %q modified: %w", name, err)
	}
	return nil
}

// MarkAllConfigModified flags every known task for full reprocessing.
func (s *Store) MarkAllConfigModified(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE task_state SET config_modified = 1, updated_at = ?`, now)
	if err != nil {
		return 0, fmt.Errorf("mark all tasks modified: %w", err)
	}
	return res.RowsAffected()
}

// PruneTaskStates drops state rows for tasks no longer declared in the
// configuration document.
func (s *Store) PruneTaskStates(ctx context.Context, declared []string) (int64, error) {
	if len(declared) == 0 {
		res, err := s.execWithRetry(ctx, `DELETE FROM task_state`)
		if err != nil {
			return 0, fmt.Errorf("prune task states: %w", err)
		}
		return res.RowsAffected()
	}
	placeholders := makePlaceholders(len(declared))
	args := make([]any, len(declared))
	for i, name := range declared {
		args[i] = name
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM task_state WHERE name NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("prune task states: %w", err)
	}
	return res.RowsAffected()
}

func scanTaskState(scanner interface{ Scan(dest ...any) error }) (*TaskState, error) {
	var (
		name       string
		hash       string
		modified   int
		lastRunRaw sql.NullString
		updatedRaw string
	)
	if err := scanner.Scan(&name, &hash, &modified, &lastRunRaw, &updatedRaw); err != nil {
		return nil, err
	}
	state := &TaskState{
		Name:           name,
		ConfigHash:     hash,
		ConfigModified: modified != 0,
	}
	if lastRunRaw.Valid {
		if lastRun, err := parseTimeString(lastRunRaw.String); err == nil {
			state.LastRunAt = &lastRun
		}
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		state.UpdatedAt = updated
	}
	return state, nil
}
