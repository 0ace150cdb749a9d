package settings

import (
	"errors"
	"fmt"
	"net"
)

// Validate ensures the settings are usable.
func (s *Settings) Validate() error {
	if err := s.validateLogging(); err != nil {
		return err
	}
	if err := s.validateDaemon(); err != nil {
		return err
	}
	return nil
}

func (s *Settings) validateLogging() error {
	switch s.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", s.Logging.Format)
	}
	return nil
}

func (s *Settings) validateDaemon() error {
	host, _, err := net.SplitHostPort(s.Daemon.IPCBind)
	if err != nil {
		return fmt.Errorf("daemon.ipc_bind: %w", err)
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return errors.New("daemon.ipc_bind must be a loopback address")
	}
	return nil
}
