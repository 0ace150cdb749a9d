package daemonctl_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"flume/internal/daemonctl"
	"flume/internal/ipc"
	"flume/internal/lockfile"
	"flume/internal/logging"
)

type stubBackend struct{}

func (stubBackend) SubmitTask(context.Context, string, map[string]any) error { return nil }
func (stubBackend) Status(context.Context) ipc.StatusResponse {
	return ipc.StatusResponse{State: "running"}
}
func (stubBackend) History(context.Context, string, int) ([]ipc.RunRecord, error) { return nil, nil }
func (stubBackend) DatabaseHealth(context.Context) ipc.DatabaseHealthResponse {
	return ipc.DatabaseHealthResponse{}
}
func (stubBackend) LogTail(context.Context, ipc.LogTailRequest) (ipc.LogTailResponse, error) {
	return ipc.LogTailResponse{}, nil
}
func (stubBackend) RequestShutdown(bool) {}

func TestDialRequiresAdvertisedPort(t *testing.T) {
	lock := lockfile.New(t.TempDir(), "config")

	if _, err := daemonctl.Dial(lock, time.Second); !errors.Is(err, daemonctl.ErrNoDaemon) {
		t.Fatalf("expected ErrNoDaemon with no lock file, got %v", err)
	}

	// A holder without a port is not a daemon accepting delegation.
	if err := os.WriteFile(lock.Path(), []byte("PID: 1\n"), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	if _, err := daemonctl.Dial(lock, time.Second); !errors.Is(err, daemonctl.ErrNoDaemon) {
		t.Fatalf("expected ErrNoDaemon without port, got %v", err)
	}
}

func TestDialConnectsToAdvertisedPort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, err := ipc.NewServer(ctx, "127.0.0.1:0", stubBackend{}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()
	srv.Serve()

	lock := lockfile.New(t.TempDir(), "config")
	contents := fmt.Sprintf("PID: 1\nPort: %d\n", srv.Port())
	if err := os.WriteFile(lock.Path(), []byte(contents), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	client, err := daemonctl.Dial(lock, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != "running" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestDetachedReflectsEnvironment(t *testing.T) {
	if daemonctl.Detached() {
		t.Fatal("test process should not start detached")
	}
	t.Setenv("FLUME_DETACHED", "1")
	if !daemonctl.Detached() {
		t.Fatal("marker env should report detached")
	}
}

func TestStopAndTerminateWithoutDaemon(t *testing.T) {
	lock := lockfile.New(t.TempDir(), "config")
	if _, err := daemonctl.StopAndTerminate(lock, false, time.Second); !errors.Is(err, daemonctl.ErrNoDaemon) {
		t.Fatalf("expected ErrNoDaemon, got %v", err)
	}
}
