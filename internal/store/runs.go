package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerDelegated Trigger = "delegated"
)

// Outcome records how a run ended. Empty while in flight.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeAborted Outcome = "aborted"
)

// Run is one execution of one task.
type Run struct {
	ID           int64
	RunID        string
	TaskName     string
	Trigger      Trigger
	StartedAt    time.Time
	FinishedAt   *time.Time
	Outcome      Outcome
	ErrorMessage string
}

// StartRun opens a run record and returns it with a fresh identifier.
func (s *Store) StartRun(ctx context.Context, taskName string, trigger Trigger) (*Run, error) {
	run := &Run{
		RunID:     uuid.NewString(),
		TaskName:  taskName,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO task_runs (run_id, task_name, trigger, started_at)
         VALUES (?, ?, ?, ?)`,
		run.RunID, run.TaskName, string(run.Trigger),
		run.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("start run for %q: %w", taskName, err)
	}
	run.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return run, nil
}

// FinishRun closes a run record with its outcome.
func (s *Store) FinishRun(ctx context.Context, runID string, outcome Outcome, errorMessage string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE task_runs SET finished_at = ?, outcome = ?, error_message = ?
         WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		string(outcome),
		nullableString(errorMessage),
		runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

const runColumns = "id, run_id, task_name, trigger, started_at, finished_at, outcome, error_message"

// RecentRuns returns runs newest first, optionally filtered to one
// task. A limit <= 0 means 50.
func (s *Store) RecentRuns(ctx context.Context, taskName string, limit int) ([]*Run, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if taskName == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM task_runs ORDER BY started_at DESC, id DESC LIMIT ?`,
			limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM task_runs WHERE task_name = ?
             ORDER BY started_at DESC, id DESC LIMIT ?`,
			taskName, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ActiveRuns returns runs that have not finished.
func (s *Store) ActiveRuns(ctx context.Context) ([]*Run, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM task_runs WHERE finished_at IS NULL ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("list active runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PruneRuns deletes finished runs that started before the cutoff.
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM task_runs WHERE finished_at IS NOT NULL AND started_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id          int64
		runID       string
		taskName    string
		trigger     string
		startedRaw  string
		finishedRaw sql.NullString
		outcome     sql.NullString
		errMessage  sql.NullString
	)
	if err := scanner.Scan(&id, &runID, &taskName, &trigger, &startedRaw, &finishedRaw, &outcome, &errMessage); err != nil {
		return nil, err
	}
	run := &Run{
		ID:           id,
		RunID:        runID,
		TaskName:     taskName,
		Trigger:      Trigger(trigger),
		Outcome:      Outcome(outcome.String),
		ErrorMessage: errMessage.String,
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return run, nil
}
