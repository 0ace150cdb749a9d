package ipc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"flume/internal/ipc"
	"flume/internal/logging"
)

type fakeBackend struct {
	mu        sync.Mutex
	submitted []string
	options   []map[string]any
	shutdowns []bool
}

func (b *fakeBackend) SubmitTask(_ context.Context, name string, options map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, name)
	b.options = append(b.options, options)
	return nil
}

func (b *fakeBackend) Status(context.Context) ipc.StatusResponse {
	return ipc.StatusResponse{PID: 4242, State: "running", QueueLength: 3}
}

func (b *fakeBackend) History(_ context.Context, taskName string, limit int) ([]ipc.RunRecord, error) {
	return []ipc.RunRecord{{RunID: "r1", TaskName: taskName, Outcome: "success"}}, nil
}

func (b *fakeBackend) DatabaseHealth(context.Context) ipc.DatabaseHealthResponse {
	return ipc.DatabaseHealthResponse{Exists: true, IntegrityCheck: true}
}

func (b *fakeBackend) LogTail(_ context.Context, req ipc.LogTailRequest) (ipc.LogTailResponse, error) {
	return ipc.LogTailResponse{Lines: []string{"line"}, Offset: req.Offset + 1}, nil
}

func (b *fakeBackend) RequestShutdown(finishQueue bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdowns = append(b.shutdowns, finishQueue)
}

func startServer(t *testing.T, backend ipc.Backend) *ipc.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv, err := ipc.NewServer(ctx, "127.0.0.1:0", backend, logging.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(srv.Close)
	srv.Serve()
	return srv
}

func TestSubmitTaskRoundTrip(t *testing.T) {
	backend := &fakeBackend{}
	srv := startServer(t, backend)
	if srv.Port() == 0 {
		t.Fatal("expected a bound ephemeral port")
	}

	client, err := ipc.Dial(srv.Port(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	for _, name := range []string{"a", "b"} {
		resp, err := client.SubmitTask(name, map[string]any{"learn": true})
		if err != nil {
			t.Fatalf("SubmitTask %s: %v", name, err)
		}
		if !resp.Accepted {
			t.Fatalf("SubmitTask %s rejected: %s", name, resp.Message)
		}
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.submitted) != 2 || backend.submitted[0] != "a" || backend.submitted[1] != "b" {
		t.Fatalf("backend saw %v, want [a b]", backend.submitted)
	}
	if v, ok := backend.options[0]["learn"].(bool); !ok || !v {
		t.Fatalf("options lost in transit: %#v", backend.options[0])
	}
}

func TestStatusAndShutdown(t *testing.T) {
	backend := &fakeBackend{}
	srv := startServer(t, backend)

	client, err := ipc.Dial(srv.Port(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.PID != 4242 || status.State != "running" || status.QueueLength != 3 {
		t.Fatalf("unexpected status %+v", status)
	}

	resp, err := client.Shutdown(true)
	if err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !resp.Stopping {
		t.Fatal("expected stopping acknowledgement")
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.shutdowns) != 1 || !backend.shutdowns[0] {
		t.Fatalf("backend shutdown calls %v", backend.shutdowns)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	srv := startServer(t, &fakeBackend{})

	client, err := ipc.Dial(srv.Port(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	resp, err := client.History("feed", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(resp.Runs) != 1 || resp.Runs[0].TaskName != "feed" {
		t.Fatalf("unexpected history %+v", resp.Runs)
	}
}

func TestCloseSeversOpenConnections(t *testing.T) {
	backend := &fakeBackend{}
	srv := startServer(t, backend)

	// An idle client holds its connection open across calls; Close must
	// not wait for it to hang up.
	client, err := ipc.Dial(srv.Port(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	if _, err := client.Status(); err != nil {
		t.Fatalf("Status: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		srv.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return while a client connection was open")
	}

	if _, err := client.Status(); err == nil {
		t.Fatal("expected calls on a severed connection to fail")
	}
}

func TestDialRefusedAfterClose(t *testing.T) {
	backend := &fakeBackend{}
	srv := startServer(t, backend)
	port := srv.Port()
	srv.Close()

	if _, err := ipc.Dial(port, 200*time.Millisecond); err == nil {
		t.Fatal("expected dial to a closed server to fail")
	}
}
