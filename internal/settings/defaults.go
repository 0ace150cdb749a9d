package settings

const (
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogDir               = "~/.local/share/flume/logs"
	defaultRotateMaxMB          = 20
	defaultRotateMaxBackups     = 5
	defaultRotateMaxAgeDays     = 30
	defaultIPCBind              = "127.0.0.1:0"
	defaultClientTimeoutSeconds = 5
	defaultStopGraceSeconds     = 20
	defaultDBBusyTimeoutMillis  = 5000
	defaultSchedulePollSeconds  = 5
	defaultHistoryRetentionDays = 90
)

// Default returns Settings populated with repository defaults.
func Default() Settings {
	return Settings{
		Logging: Logging{
			Format:           defaultLogFormat,
			Level:            defaultLogLevel,
			Dir:              defaultLogDir,
			RotateMaxMB:      defaultRotateMaxMB,
			RotateMaxBackups: defaultRotateMaxBackups,
			RotateMaxAgeDays: defaultRotateMaxAgeDays,
		},
		Daemon: Daemon{
			IPCBind:              defaultIPCBind,
			ClientTimeoutSeconds: defaultClientTimeoutSeconds,
			StopGraceSeconds:     defaultStopGraceSeconds,
		},
		Database: Database{
			BusyTimeoutMillis: defaultDBBusyTimeoutMillis,
		},
		Scheduler: Scheduler{
			SchedulePollSeconds:  defaultSchedulePollSeconds,
			HistoryRetentionDays: defaultHistoryRetentionDays,
		},
	}
}
