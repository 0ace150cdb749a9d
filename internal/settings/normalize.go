package settings

import (
	"fmt"
	"strings"
)

func (s *Settings) normalize() error {
	if err := s.normalizeLogging(); err != nil {
		return err
	}
	s.normalizeDaemon()
	if err := s.normalizeDatabase(); err != nil {
		return err
	}
	s.normalizeScheduler()
	return nil
}

func (s *Settings) normalizeLogging() error {
	s.Logging.Format = strings.ToLower(strings.TrimSpace(s.Logging.Format))
	if s.Logging.Format == "" {
		s.Logging.Format = defaultLogFormat
	}
	s.Logging.Level = strings.ToLower(strings.TrimSpace(s.Logging.Level))
	if s.Logging.Level == "" {
		s.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(s.Logging.Dir) == "" {
		s.Logging.Dir = defaultLogDir
	}
	var err error
	if s.Logging.Dir, err = expandPath(s.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	if s.Logging.RotateMaxBackups < 0 {
		s.Logging.RotateMaxBackups = 0
	}
	if s.Logging.RotateMaxAgeDays < 0 {
		s.Logging.RotateMaxAgeDays = 0
	}
	return nil
}

func (s *Settings) normalizeDaemon() {
	s.Daemon.IPCBind = strings.TrimSpace(s.Daemon.IPCBind)
	if s.Daemon.IPCBind == "" {
		s.Daemon.IPCBind = defaultIPCBind
	}
	if s.Daemon.ClientTimeoutSeconds <= 0 {
		s.Daemon.ClientTimeoutSeconds = defaultClientTimeoutSeconds
	}
	if s.Daemon.StopGraceSeconds <= 0 {
		s.Daemon.StopGraceSeconds = defaultStopGraceSeconds
	}
}

func (s *Settings) normalizeDatabase() error {
	s.Database.Path = strings.TrimSpace(s.Database.Path)
	if s.Database.Path != "" {
		var err error
		if s.Database.Path, err = expandPath(s.Database.Path); err != nil {
			return fmt.Errorf("database.path: %w", err)
		}
	}
	if s.Database.BusyTimeoutMillis <= 0 {
		s.Database.BusyTimeoutMillis = defaultDBBusyTimeoutMillis
	}
	return nil
}

func (s *Settings) normalizeScheduler() {
	if s.Scheduler.SchedulePollSeconds <= 0 {
		s.Scheduler.SchedulePollSeconds = defaultSchedulePollSeconds
	}
	if s.Scheduler.HistoryRetentionDays < 0 {
		s.Scheduler.HistoryRetentionDays = 0
	}
}
