package store

import (
	"os"
	"path/filepath"
	"testing"

	"flume/internal/logging"
)

// The refusal branch is unreachable through Open, which always derives
// a marked filename, so it is exercised directly here.
func TestRemoveTestDatabaseRefusesUnmarkedFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "production.sqlite")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write database file: %v", err)
	}

	s := &Store{path: path, test: true, logger: logging.NewNop()}
	if err := s.RemoveTestDatabase(); err == nil {
		t.Fatal("expected refusal for a filename without the test marker")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file should survive a refused teardown: %v", err)
	}
}

func TestRemoveTestDatabaseDeletesMarkedFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test-flume.sqlite")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write database file: %v", err)
	}

	s := &Store{path: path, test: true, logger: logging.NewNop()}
	if err := s.RemoveTestDatabase(); err != nil {
		t.Fatalf("RemoveTestDatabase: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("marked database should be removed, stat err: %v", err)
	}
}

func TestRemoveTestDatabaseNoopOutsideTestMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test-flume.sqlite")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write database file: %v", err)
	}

	s := &Store{path: path, test: false, logger: logging.NewNop()}
	if err := s.RemoveTestDatabase(); err != nil {
		t.Fatalf("RemoveTestDatabase: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("non-test store must not delete its database: %v", err)
	}
}
