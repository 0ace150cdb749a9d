package testsupport

import (
	"path/filepath"
	"testing"

	"flume/internal/settings"
)

// SettingsOption customizes the generated test settings.
type SettingsOption func(*settings.Settings)

// NewSettings produces settings seeded with unique temp directories per
// test. Logging goes to a temp dir in JSON format so test output stays
// machine-readable.
func NewSettings(t testing.TB, opts ...SettingsOption) *settings.Settings {
	t.Helper()

	base := t.TempDir()
	s := settings.Default()
	s.Logging.Dir = filepath.Join(base, "logs")
	s.Logging.Format = "json"
	s.Logging.Level = "debug"
	s.Daemon.IPCBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&s)
	}
	return &s
}

// WithDatabasePath points the store at an explicit file.
func WithDatabasePath(path string) SettingsOption {
	return func(s *settings.Settings) {
		s.Database.Path = path
	}
}

// WithHistoryRetentionDays overrides the run history retention window.
func WithHistoryRetentionDays(days int) SettingsOption {
	return func(s *settings.Settings) {
		s.Scheduler.HistoryRetentionDays = days
	}
}
