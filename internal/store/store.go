package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"flume/internal/fileutil"
	"flume/internal/logging"
)

// testMarker must appear in a database filename before teardown will
// delete it.
const testMarker = "test"

// Store manages the persistent state for one configuration scope.
type Store struct {
	db     *sql.DB
	path   string
	test   bool
	logger *slog.Logger
}

// Options configure Open.
type Options struct {
	// ConfigBase and ConfigName scope the derived database filename.
	ConfigBase string
	ConfigName string
	// OverridePath, when set, is used verbatim instead of the derived
	// location.
	OverridePath string
	// Test copies the production database aside and operates on the
	// copy.
	Test bool
	// Reset drops all known tables before recreating the schema.
	Reset bool
	// BusyTimeoutMillis is the SQLite busy handler budget. Zero means
	// 5000.
	BusyTimeoutMillis int
	Logger            *slog.Logger
}

// DatabasePath returns the production database location for a scope.
func DatabasePath(configBase, configName string) string {
	return filepath.Join(configBase, "db-"+configName+".sqlite")
}

// TestDatabasePath returns the isolated test copy location for a scope.
func TestDatabasePath(configBase, configName string) string {
	return filepath.Join(configBase, testMarker+"-"+configName+".sqlite")
}

// Open initializes or connects to the scope's database. In test mode
// the production file is first copied to the test location so the run
// never mutates production data.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "store")

	path := strings.TrimSpace(opts.OverridePath)
	if path != "" {
		expanded, err := fileutil.ExpandPath(path)
		if err != nil {
			return nil, err
		}
		path = expanded
	} else {
		path = DatabasePath(opts.ConfigBase, opts.ConfigName)
	}

	if opts.Test {
		testPath := TestDatabasePath(filepath.Dir(path), opts.ConfigName)
		if _, err := os.Stat(path); err == nil {
			if err := fileutil.CopyFileVerified(path, testPath); err != nil {
				return nil, fmt.Errorf("copy database for test run: %w", err)
			}
			logger.Debug("copied production database for test run",
				logging.String("source", path),
				logging.String("copy", testPath))
		}
		path = testPath
	}

	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, classifyOpenError(path, err)
	}

	logger.Debug("connecting to database", logging.String("path", path))
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// The embedded engine forbids sharing one connection across
	// threads; a single pooled connection keeps every statement on it.
	db.SetMaxOpenConns(1)

	busyTimeout := opts.BusyTimeoutMillis
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout),
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, classifyOpenError(path, fmt.Errorf("apply pragma %q: %w", pragma, execErr))
		}
	}

	s := &Store{db: db, path: path, test: opts.Test, logger: logger}

	ctx := context.Background()
	if opts.Reset {
		if err := s.dropSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("database reset", logging.String("path", path))
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		if errors.Is(err, ErrSchemaMismatch) {
			return nil, err
		}
		return nil, classifyOpenError(path, err)
	}

	return s, nil
}

// classifyOpenError distinguishes a bad database file from a bad
// containing directory so the operator fixes the right permissions.
func classifyOpenError(path string, err error) error {
	if _, statErr := os.Stat(path); statErr == nil {
		return &PermissionError{Path: path, Err: err}
	}
	return &PermissionError{Path: filepath.Dir(path), Directory: true, Err: err}
}

// Path returns the database file backing this store.
func (s *Store) Path() string { return s.path }

// TestMode reports whether this store operates on an isolated copy.
func (s *Store) TestMode() bool { return s.test }

// DB exposes the engine handle for collaborator hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RemoveTestDatabase deletes the isolated test copy after a test run.
// It refuses to touch any filename lacking the test marker.
func (s *Store) RemoveTestDatabase() error {
	if !s.test {
		return nil
	}
	if !strings.Contains(filepath.Base(s.path), testMarker) {
		return fmt.Errorf("refusing to delete %s: filename does not look like a test database", s.path)
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove test database: %w", err)
	}
	s.logger.Info("removed test database", logging.String("path", s.path))
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}
