// Package runaccess provides run history and database diagnostics
// regardless of whether a daemon currently holds the scope lock. CLI
// commands dial the daemon first and fall back to opening the store
// directly.
package runaccess

import (
	"context"
	"strconv"

	"flume/internal/ipc"
	"flume/internal/store"
)

// Access reads run records and database health from either backing.
type Access interface {
	History(ctx context.Context, taskName string, limit int) ([]ipc.RunRecord, error)
	Health(ctx context.Context) (ipc.DatabaseHealthResponse, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct database access.
func NewStoreAccess(st *store.Store) Access {
	return &storeAccess{store: st}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) History(_ context.Context, taskName string, limit int) ([]ipc.RunRecord, error) {
	resp, err := a.client.History(taskName, limit)
	if err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (a *ipcAccess) Health(context.Context) (ipc.DatabaseHealthResponse, error) {
	resp, err := a.client.DatabaseHealth()
	if err != nil {
		return ipc.DatabaseHealthResponse{}, err
	}
	return *resp, nil
}

type storeAccess struct {
	store *store.Store
}

func (a *storeAccess) History(ctx context.Context, taskName string, limit int) ([]ipc.RunRecord, error) {
	runs, err := a.store.RecentRuns(ctx, taskName, limit)
	if err != nil {
		return nil, err
	}
	records := make([]ipc.RunRecord, 0, len(runs))
	for _, run := range runs {
		records = append(records, ipc.RunRecord{
			RunID:        run.RunID,
			TaskName:     run.TaskName,
			Trigger:      string(run.Trigger),
			StartedAt:    run.StartedAt,
			FinishedAt:   run.FinishedAt,
			Outcome:      string(run.Outcome),
			ErrorMessage: run.ErrorMessage,
		})
	}
	return records, nil
}

func (a *storeAccess) Health(ctx context.Context) (ipc.DatabaseHealthResponse, error) {
	health, err := a.store.CheckHealth(ctx)
	resp := ipc.DatabaseHealthResponse{
		Path:           health.DBPath,
		Exists:         health.DatabaseExists,
		Readable:       health.DatabaseReadable,
		SchemaVersion:  strconv.Itoa(health.SchemaVersion),
		TablesPresent:  health.TablesPresent,
		MissingTables:  health.MissingTables,
		IntegrityCheck: health.IntegrityCheck,
		Error:          health.Error,
	}
	if err != nil && resp.Error == "" {
		resp.Error = err.Error()
	}
	return resp, nil
}
