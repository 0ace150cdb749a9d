package manager_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"flume/internal/configfile"
	"flume/internal/ipc"
	"flume/internal/lockfile"
	"flume/internal/logging"
	"flume/internal/manager"
	"flume/internal/runner"
	"flume/internal/settings"
	"flume/internal/store"
)

const validConfig = `tasks:
  alpha:
    priority: 30
  beta:
    priority: 10
  gamma: {}
  delta:
    priority: 10
`

func newTestManager(t *testing.T, configYAML string, mutate func(*manager.Options)) *manager.Manager {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	defaults := settings.Default()
	opts := manager.Options{
		ConfigPath: configPath,
		Settings:   &defaults,
		Logger:     logging.NewNop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	mgr, err := manager.New(opts)
	if err != nil {
		t.Fatalf("manager.New: %v", err)
	}
	t.Cleanup(mgr.Close)
	return mgr
}

// captureRunner records executed tasks in order.
type captureRunner struct {
	mu  sync.Mutex
	ran []string
}

func (r *captureRunner) Run(_ context.Context, task runner.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, task.Name)
	return nil
}

func (r *captureRunner) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ran))
	copy(out, r.ran)
	return out
}

func captureFactory(capture *captureRunner) manager.RunnerFactory {
	return func(*configfile.Document, *store.Store, *slog.Logger) runner.Runner {
		return capture
	}
}

func TestSecondManagerInSameProcessFails(t *testing.T) {
	mgr := newTestManager(t, validConfig, nil)
	_ = mgr

	defaults := settings.Default()
	_, err := manager.New(manager.Options{Settings: &defaults, Logger: logging.NewNop()})
	if !errors.Is(err, manager.ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestInitializeLoadsEverything(t *testing.T) {
	mgr := newTestManager(t, validConfig, nil)
	ctx := context.Background()

	var order []string
	mgr.Hooks().OnBeforeConfigLoad("test", func(context.Context, string) error {
		order = append(order, "before_load")
		return nil
	})
	mgr.Hooks().OnStartup("test", func(context.Context) error {
		order = append(order, "startup")
		return nil
	})

	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer func() {
		if err := mgr.Shutdown(ctx, false); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	}()

	if mgr.Config() == nil || len(mgr.Config().TaskOrder) != 4 {
		t.Fatalf("expected four tasks loaded, got %+v", mgr.Config())
	}
	if mgr.Store() == nil {
		t.Fatal("store not opened")
	}
	if mgr.Lock() == nil {
		t.Fatal("lock manager not constructed")
	}
	if len(order) != 2 || order[0] != "before_load" || order[1] != "startup" {
		t.Fatalf("hook order %v", order)
	}
}

func TestInitializeConfigNotFound(t *testing.T) {
	defaults := settings.Default()
	mgr, err := manager.New(manager.Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yml"),
		Settings:   &defaults,
		Logger:     logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("manager.New: %v", err)
	}
	t.Cleanup(mgr.Close)

	err = mgr.Initialize(context.Background())
	if manager.ExitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d (%v)", manager.ExitCode(err), err)
	}
	var notFound *configfile.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestInitializeValidationFailure(t *testing.T) {
	mgr := newTestManager(t, "tasks: {}\nbogus_root: 1\n", nil)
	err := mgr.Initialize(context.Background())
	if manager.ExitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d (%v)", manager.ExitCode(err), err)
	}
}

func TestInitializeParseFailure(t *testing.T) {
	mgr := newTestManager(t, "tasks:\n  broken\n - indent\n", nil)
	err := mgr.Initialize(context.Background())
	if manager.ExitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d (%v)", manager.ExitCode(err), err)
	}
	var parseErr *configfile.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestInitializeUpgradeHookSetsFlag(t *testing.T) {
	mgr := newTestManager(t, validConfig, nil)
	ctx := context.Background()

	upgradedFired := false
	mgr.Hooks().OnUpgrade("test", func(context.Context, *sql.DB) (bool, error) {
		return true, nil
	})
	mgr.Hooks().OnDBUpgraded("test", func(context.Context, *sql.DB) error {
		upgradedFired = true
		return nil
	})

	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer mgr.Shutdown(ctx, false)

	if !mgr.DBUpgraded() {
		t.Fatal("expected dbUpgraded flag")
	}
	if !upgradedFired {
		t.Fatal("db_upgraded hook did not fire")
	}
}

func TestRunExecutePriorityOrderAndLockRelease(t *testing.T) {
	capture := &captureRunner{}
	mgr := newTestManager(t, validConfig, nil)
	mgr.SetRunnerFactory(captureFactory(capture))
	ctx := context.Background()
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := mgr.RunExecute(ctx, manager.ExecuteOptions{}); err != nil {
		t.Fatalf("RunExecute: %v", err)
	}

	want := []string{"beta", "delta", "alpha", "gamma"}
	got := capture.order()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("execution order %v, want %v", got, want)
	}

	if _, err := os.Stat(mgr.Lock().Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("lock file should be gone after the run, stat err %v", err)
	}
}

func TestRunExecuteSelectionGlobs(t *testing.T) {
	capture := &captureRunner{}
	mgr := newTestManager(t, validConfig, nil)
	mgr.SetRunnerFactory(captureFactory(capture))
	ctx := context.Background()
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	err := mgr.RunExecute(ctx, manager.ExecuteOptions{Tasks: []string{"ALPHA", "d*", "nomatch"}})
	if err != nil {
		t.Fatalf("RunExecute: %v", err)
	}
	want := []string{"delta", "alpha"}
	got := capture.order()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("execution order %v, want %v", got, want)
	}
}

type delegationBackend struct {
	mu        sync.Mutex
	submitted []string
}

func (b *delegationBackend) SubmitTask(_ context.Context, name string, _ map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, name)
	return nil
}

func (b *delegationBackend) Status(context.Context) ipc.StatusResponse {
	return ipc.StatusResponse{}
}

func (b *delegationBackend) History(context.Context, string, int) ([]ipc.RunRecord, error) {
	return nil, nil
}

func (b *delegationBackend) DatabaseHealth(context.Context) ipc.DatabaseHealthResponse {
	return ipc.DatabaseHealthResponse{}
}

func (b *delegationBackend) LogTail(context.Context, ipc.LogTailRequest) (ipc.LogTailResponse, error) {
	return ipc.LogTailResponse{}, nil
}

func (b *delegationBackend) RequestShutdown(bool) {}

func TestRunExecuteDelegatesToDaemon(t *testing.T) {
	backend := &delegationBackend{}
	srvCtx, srvCancel := context.WithCancel(context.Background())
	defer srvCancel()
	srv, err := ipc.NewServer(srvCtx, "127.0.0.1:0", backend, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	defer srv.Close()
	srv.Serve()

	capture := &captureRunner{}
	mgr := newTestManager(t, validConfig, nil)
	mgr.SetRunnerFactory(captureFactory(capture))
	ctx := context.Background()
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	// A live foreign holder advertising a port. PID 1 is always alive.
	lockContents := fmt.Sprintf("PID: 1\nPort: %d\n", srv.Port())
	if err := os.WriteFile(mgr.Lock().Path(), []byte(lockContents), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	err = mgr.RunExecute(ctx, manager.ExecuteOptions{Tasks: []string{"alpha", "beta"}})
	if err != nil {
		t.Fatalf("RunExecute: %v", err)
	}

	backend.mu.Lock()
	submitted := append([]string(nil), backend.submitted...)
	backend.mu.Unlock()
	if len(submitted) != 2 {
		t.Fatalf("daemon received %v, want two tasks", submitted)
	}
	if len(capture.order()) != 0 {
		t.Fatalf("nothing may run locally when delegating, ran %v", capture.order())
	}

	// The foreign lock file must be untouched.
	data, err := os.ReadFile(mgr.Lock().Path())
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	if string(data) != lockContents {
		t.Fatalf("lock file mutated during delegation: %q", data)
	}
}

func TestRunExecuteContentionWithoutPort(t *testing.T) {
	mgr := newTestManager(t, validConfig, nil)
	ctx := context.Background()
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer mgr.Shutdown(ctx, false)

	if err := os.WriteFile(mgr.Lock().Path(), []byte("PID: 1\n"), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	err := mgr.RunExecute(ctx, manager.ExecuteOptions{})
	if manager.ExitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d (%v)", manager.ExitCode(err), err)
	}
	var contention *lockfile.ContentionError
	if !errors.As(err, &contention) {
		t.Fatalf("expected ContentionError, got %v", err)
	}
	if contention.PID != 1 {
		t.Fatalf("contention names PID %d, want 1", contention.PID)
	}
}

func TestShutdownTestModeRemovesCopy(t *testing.T) {
	mgr := newTestManager(t, validConfig, func(opts *manager.Options) {
		opts.Test = true
	})
	ctx := context.Background()
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	dbPath := mgr.Store().Path()
	if err := mgr.Shutdown(ctx, false); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := os.Stat(dbPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("test database copy should be removed, stat err %v", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	mgr := newTestManager(t, validConfig, nil)
	ctx := context.Background()
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := mgr.Shutdown(ctx, false); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := mgr.Shutdown(ctx, true); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
