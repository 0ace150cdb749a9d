package settings

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"flume/internal/fileutil"
)

//go:embed sample_settings.toml
var sampleSettings string

// Logging contains configuration for log output.
type Logging struct {
	Format           string `toml:"format"`
	Level            string `toml:"level"`
	Dir              string `toml:"dir"`
	RotateMaxMB      int    `toml:"rotate_max_mb"`
	RotateMaxBackups int    `toml:"rotate_max_backups"`
	RotateMaxAgeDays int    `toml:"rotate_max_age_days"`
	RotateCompress   bool   `toml:"rotate_compress"`
}

// Daemon contains configuration for the background process.
type Daemon struct {
	// Detach controls whether `flume daemon` leaves the terminal by
	// default; the --daemonize flag overrides it per invocation.
	Detach               bool   `toml:"detach"`
	IPCBind              string `toml:"ipc_bind"`
	ClientTimeoutSeconds int    `toml:"client_timeout_seconds"`
	StopGraceSeconds     int    `toml:"stop_grace_seconds"`
}

// Database contains configuration for the persistent store.
type Database struct {
	// Path overrides the db-<name>.sqlite file derived from the config
	// document location.
	Path              string `toml:"path"`
	BusyTimeoutMillis int    `toml:"busy_timeout_millis"`
}

// Scheduler contains timing knobs for background scheduling.
type Scheduler struct {
	SchedulePollSeconds  int `toml:"schedule_poll_seconds"`
	HistoryRetentionDays int `toml:"history_retention_days"`
}

// Settings encapsulates all process-level configuration values.
type Settings struct {
	Logging   Logging   `toml:"logging"`
	Daemon    Daemon    `toml:"daemon"`
	Database  Database  `toml:"database"`
	Scheduler Scheduler `toml:"scheduler"`
}

// DefaultPath returns the absolute path to the default settings file location.
func DefaultPath() (string, error) {
	return expandPath("~/.config/flume/settings.toml")
}

// Load locates, parses, and validates a settings file. The returned value has
// all path fields expanded and normalized. A missing file is not an error;
// defaults apply.
func Load(path string) (*Settings, string, bool, error) {
	s := Default()

	resolvedPath, exists, err := resolvePath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open settings: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&s); err != nil {
			return nil, "", false, fmt.Errorf("parse settings: %w", err)
		}
	}

	if err := s.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := s.Validate(); err != nil {
		return nil, "", false, err
	}

	return &s, resolvedPath, exists, nil
}

func resolvePath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat settings: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("flume.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories daemon operation needs.
func (s *Settings) EnsureDirectories() error {
	if err := fileutil.EnsureDir(s.Logging.Dir); err != nil {
		return fmt.Errorf("create log directory %q: %w", s.Logging.Dir, err)
	}
	return nil
}

// LogFilePath returns the daemon log file location, or "" when file
// logging is disabled.
func (s *Settings) LogFilePath() string {
	if s.Logging.Dir == "" {
		return ""
	}
	return filepath.Join(s.Logging.Dir, "flume.log")
}

// Rotation converts the logging settings into a rotation policy, or nil
// when rotation is disabled.
func (s *Settings) Rotation() *RotationPolicy {
	if s.Logging.RotateMaxMB <= 0 {
		return nil
	}
	return &RotationPolicy{
		MaxSizeMB:  s.Logging.RotateMaxMB,
		MaxBackups: s.Logging.RotateMaxBackups,
		MaxAgeDays: s.Logging.RotateMaxAgeDays,
		Compress:   s.Logging.RotateCompress,
	}
}

// RotationPolicy mirrors the logging package's rotation knobs without
// importing it.
type RotationPolicy struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	expanded, err := fileutil.ExpandPath(pathValue)
	if err != nil {
		return "", err
	}
	absolute, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", expanded, err)
	}
	return absolute, nil
}

// CreateSample writes a sample settings file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleSettings), 0o644); err != nil {
		return fmt.Errorf("write sample settings: %w", err)
	}
	return nil
}
