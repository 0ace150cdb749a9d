package ipc

import "time"

// SubmitTaskRequest forwards one task for execution in the daemon's
// scheduler. Options are the caller's per-invocation overrides.
type SubmitTaskRequest struct {
	Name    string         `json:"name"`
	Options map[string]any `json:"options"`
}

// SubmitTaskResponse reports whether the daemon queued the task.
type SubmitTaskResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse describes the daemon and its scheduler.
type StatusResponse struct {
	PID          int      `json:"pid"`
	State        string   `json:"state"`
	CurrentTask  string   `json:"current_task"`
	QueueLength  int      `json:"queue_length"`
	LockPath     string   `json:"lock_path"`
	DatabasePath string   `json:"database_path"`
	ConfigPath   string   `json:"config_path"`
	LogFile      string   `json:"log_file"`
	StartedAt    string   `json:"started_at"`
	Schedules    int      `json:"schedules"`
	Tasks        []string `json:"tasks"`
}

// ShutdownRequest asks the daemon to stop.
type ShutdownRequest struct {
	// FinishQueue lets queued work complete before stopping.
	FinishQueue bool `json:"finish_queue"`
}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Stopping bool `json:"stopping"`
}

// HistoryRequest fetches recent run records, optionally for one task.
type HistoryRequest struct {
	TaskName string `json:"task_name"`
	Limit    int    `json:"limit"`
}

// RunRecord is one execution history entry on the wire.
type RunRecord struct {
	RunID        string     `json:"run_id"`
	TaskName     string     `json:"task_name"`
	Trigger      string     `json:"trigger"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	Outcome      string     `json:"outcome"`
	ErrorMessage string     `json:"error_message"`
}

// HistoryResponse contains run history entries, newest first.
type HistoryResponse struct {
	Runs []RunRecord `json:"runs"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	Path           string   `json:"path"`
	Exists         bool     `json:"exists"`
	Readable       bool     `json:"readable"`
	SchemaVersion  string   `json:"schema_version"`
	TablesPresent  []string `json:"tables_present"`
	MissingTables  []string `json:"missing_tables"`
	IntegrityCheck bool     `json:"integrity_check"`
	Error          string   `json:"error"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
