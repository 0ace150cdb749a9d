package store_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"flume/internal/hooks"
	"flume/internal/store"
	"flume/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	s := testsupport.NewStore(t)

	health, err := s.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable {
		t.Fatalf("health = %+v, want existing readable database", health)
	}
	if health.SchemaVersion != 1 {
		t.Errorf("schema version = %d, want 1", health.SchemaVersion)
	}
	if len(health.MissingTables) != 0 {
		t.Errorf("missing tables: %v", health.MissingTables)
	}
	if !health.IntegrityCheck {
		t.Error("integrity check failed")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	base := t.TempDir()
	opts := store.Options{ConfigBase: base, ConfigName: "config"}

	first := testsupport.MustOpenStore(t, opts)
	ctx := context.Background()
	if err := first.SetValue(ctx, "seen", "yes"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := testsupport.MustOpenStore(t, opts)
	value, ok, err := second.GetValue(ctx, "seen")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if !ok || value != "yes" {
		t.Fatalf("value = %q ok = %v, want persisted yes", value, ok)
	}
}

func TestSchemaVersionMismatch(t *testing.T) {
	base := t.TempDir()
	opts := store.Options{ConfigBase: base, ConfigName: "config"}

	s, err := store.Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.DB().Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := store.Open(opts); !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("err = %v, want schema mismatch", err)
	}
}

func TestResetDropsData(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()

	s, err := store.Open(store.Options{ConfigBase: base, ConfigName: "config"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetValue(ctx, "keep", "me"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reset := testsupport.MustOpenStore(t, store.Options{ConfigBase: base, ConfigName: "config", Reset: true})
	_, ok, err := reset.GetValue(ctx, "keep")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if ok {
		t.Fatal("value survived reset")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	s := testsupport.NewStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetValue(ctx, "absent"); err != nil || ok {
		t.Fatalf("GetValue absent = ok %v err %v", ok, err)
	}

	if err := s.SetValue(ctx, "key", "first"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := s.SetValue(ctx, "key", "second"); err != nil {
		t.Fatalf("SetValue overwrite: %v", err)
	}
	value, ok, err := s.GetValue(ctx, "key")
	if err != nil || !ok || value != "second" {
		t.Fatalf("GetValue = %q ok %v err %v, want second", value, ok, err)
	}

	stamp := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if err := s.SetTime(ctx, "when", stamp); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	got, ok, err := s.GetTime(ctx, "when")
	if err != nil || !ok {
		t.Fatalf("GetTime: ok %v err %v", ok, err)
	}
	if !got.Equal(stamp) {
		t.Fatalf("GetTime = %v, want %v", got, stamp)
	}

	if err := s.DeleteValue(ctx, "key"); err != nil {
		t.Fatalf("DeleteValue: %v", err)
	}
	if _, ok, _ := s.GetValue(ctx, "key"); ok {
		t.Fatal("value survived delete")
	}
}

func TestTaskStateModificationTracking(t *testing.T) {
	s := testsupport.NewStore(t)
	ctx := context.Background()

	if err := s.EnsureTask(ctx, "feed"); err != nil {
		t.Fatalf("EnsureTask: %v", err)
	}
	modified, err := s.CheckConfigModified(ctx, "feed", "hash-1")
	if err != nil {
		t.Fatalf("CheckConfigModified: %v", err)
	}
	if !modified {
		t.Fatal("new task not reported modified")
	}

	if err := s.RecordTaskRun(ctx, "feed", "hash-1", time.Now()); err != nil {
		t.Fatalf("RecordTaskRun: %v", err)
	}
	modified, err = s.CheckConfigModified(ctx, "feed", "hash-1")
	if err != nil {
		t.Fatalf("CheckConfigModified: %v", err)
	}
	if modified {
		t.Fatal("unchanged fingerprint reported modified")
	}

	modified, err = s.CheckConfigModified(ctx, "feed", "hash-2")
	if err != nil {
		t.Fatalf("CheckConfigModified: %v", err)
	}
	if !modified {
		t.Fatal("changed fingerprint not reported modified")
	}

	if _, err := s.MarkAllConfigModified(ctx); err != nil {
		t.Fatalf("MarkAllConfigModified: %v", err)
	}
	modified, err = s.CheckConfigModified(ctx, "feed", "hash-1")
	if err != nil {
		t.Fatalf("CheckConfigModified: %v", err)
	}
	if !modified {
		t.Fatal("flag not set by MarkAllConfigModified")
	}

	if _, err := s.PruneTaskStates(ctx, []string{"other"}); err != nil {
		t.Fatalf("PruneTaskStates: %v", err)
	}
	state, err := s.GetTaskState(ctx, "feed")
	if err != nil {
		t.Fatalf("GetTaskState: %v", err)
	}
	if state != nil {
		t.Fatal("undeclared task state survived prune")
	}
}

func TestCleanupHonorsInterval(t *testing.T) {
	s := testsupport.NewStore(t)
	ctx := context.Background()

	registry := hooks.NewRegistry(nil)
	runs := 0
	registry.OnDBCleanup("counter", func(context.Context, *sql.Tx) error {
		runs++
		return nil
	})

	ran, err := s.Cleanup(ctx, false, registry)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !ran || runs != 1 {
		t.Fatalf("first cleanup ran=%v runs=%d, want ran once", ran, runs)
	}

	ran, err = s.Cleanup(ctx, false, registry)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if ran || runs != 1 {
		t.Fatalf("second cleanup ran=%v runs=%d, want skipped within interval", ran, runs)
	}

	for i := 0; i < 2; i++ {
		ran, err = s.Cleanup(ctx, true, registry)
		if err != nil {
			t.Fatalf("forced cleanup: %v", err)
		}
		if !ran {
			t.Fatal("forced cleanup skipped")
		}
	}
	if runs != 3 {
		t.Fatalf("runs = %d, want 3 after two forced cleanups", runs)
	}

	last, err := s.LastCleanup(ctx)
	if err != nil {
		t.Fatalf("LastCleanup: %v", err)
	}
	if last.IsZero() {
		t.Fatal("watermark not advanced")
	}
}

func TestCleanupMarksTasksModified(t *testing.T) {
	s := testsupport.NewStore(t)
	ctx := context.Background()

	if err := s.RecordTaskRun(ctx, "feed", "hash-1", time.Now()); err != nil {
		t.Fatalf("RecordTaskRun: %v", err)
	}

	if _, err := s.Cleanup(ctx, true, hooks.NewRegistry(nil)); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	modified, err := s.CheckConfigModified(ctx, "feed", "hash-1")
	if err != nil {
		t.Fatalf("CheckConfigModified: %v", err)
	}
	if !modified {
		t.Fatal("cleanup did not mark tasks modified")
	}
}

func TestCleanupRollsBackOnHookFailure(t *testing.T) {
	s := testsupport.NewStore(t)
	ctx := context.Background()

	registry := hooks.NewRegistry(nil)
	boom := errors.New("scrub failed")
	registry.OnDBCleanup("writer", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO simple_persistence (key, value, updated_at) VALUES ('marker', 'x', 'now')")
		return err
	})
	registry.OnDBCleanup("failing", func(context.Context, *sql.Tx) error { return boom })

	if _, err := s.Cleanup(ctx, true, registry); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want hook failure", err)
	}
	if _, ok, _ := s.GetValue(ctx, "marker"); ok {
		t.Fatal("partial cleanup writes survived rollback")
	}
	last, err := s.LastCleanup(ctx)
	if err != nil {
		t.Fatalf("LastCleanup: %v", err)
	}
	if !last.IsZero() {
		t.Fatal("watermark advanced after failed cleanup")
	}
}

func TestCleanupSkipsWhenAdvisoryLockHeld(t *testing.T) {
	s := testsupport.NewStore(t)
	ctx := context.Background()

	guard := flock.New(s.Path() + ".cleanup")
	locked, err := guard.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-acquire advisory lock: locked=%v err=%v", locked, err)
	}
	defer guard.Unlock()

	registry := hooks.NewRegistry(nil)
	runs := 0
	registry.OnDBCleanup("counter", func(context.Context, *sql.Tx) error {
		runs++
		return nil
	})

	ran, err := s.Cleanup(ctx, true, registry)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if ran || runs != 0 {
		t.Fatalf("cleanup ran under foreign advisory lock: ran=%v runs=%d", ran, runs)
	}
}

func TestTestModeIsolatesProduction(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()
	opts := store.Options{ConfigBase: base, ConfigName: "config"}

	prod, err := store.Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := prod.SetValue(ctx, "shared", "production"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := prod.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	testOpts := opts
	testOpts.Test = true
	isolated, err := store.Open(testOpts)
	if err != nil {
		t.Fatalf("Open test mode: %v", err)
	}
	if !strings.Contains(filepath.Base(isolated.Path()), "test") {
		t.Fatalf("test database path %q lacks marker", isolated.Path())
	}

	value, ok, err := isolated.GetValue(ctx, "shared")
	if err != nil || !ok || value != "production" {
		t.Fatalf("copied value = %q ok %v err %v", value, ok, err)
	}
	if err := isolated.SetValue(ctx, "shared", "scratch"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := isolated.RemoveTestDatabase(); err == nil {
		if err := isolated.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	} else {
		t.Fatalf("RemoveTestDatabase: %v", err)
	}
	if _, err := os.Stat(isolated.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("test copy still present: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, opts)
	value, ok, err = reopened.GetValue(ctx, "shared")
	if err != nil || !ok || value != "production" {
		t.Fatalf("production value = %q ok %v err %v, want untouched", value, ok, err)
	}
}

func TestRunHistory(t *testing.T) {
	s := testsupport.NewStore(t)
	ctx := context.Background()

	run, err := s.StartRun(ctx, "feed", store.TriggerManual)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.RunID == "" {
		t.Fatal("run id empty")
	}

	active, err := s.ActiveRuns(ctx)
	if err != nil {
		t.Fatalf("ActiveRuns: %v", err)
	}
	if len(active) != 1 || active[0].RunID != run.RunID {
		t.Fatalf("active = %+v, want the started run", active)
	}

	if err := s.FinishRun(ctx, run.RunID, store.OutcomeFailed, "fetch failed"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	active, err = s.ActiveRuns(ctx)
	if err != nil {
		t.Fatalf("ActiveRuns: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("active = %+v, want none", active)
	}

	second, err := s.StartRun(ctx, "other", store.TriggerScheduled)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := s.FinishRun(ctx, second.RunID, store.OutcomeSuccess, ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := s.RecentRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}

	feedRuns, err := s.RecentRuns(ctx, "feed", 0)
	if err != nil {
		t.Fatalf("RecentRuns feed: %v", err)
	}
	if len(feedRuns) != 1 || feedRuns[0].Outcome != store.OutcomeFailed {
		t.Fatalf("feed runs = %+v", feedRuns)
	}
	if feedRuns[0].ErrorMessage != "fetch failed" {
		t.Errorf("error message = %q", feedRuns[0].ErrorMessage)
	}

	pruned, err := s.PruneRuns(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneRuns: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("pruned = %d, want 2", pruned)
	}
}
