package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// DatabaseHealth captures diagnostic information for `flume db status`.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	KnownTasks       int
	TotalRuns        int
	ActiveRuns       int
	LastCleanup      time.Time
	Error            string
}

// CheckHealth returns diagnostic information about the database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true

	rows, err := s.db.QueryContext(connCtx,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	present := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		present[name] = struct{}{}
		health.TablesPresent = append(health.TablesPresent, name)
	}
	if err := rows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate tables: %w", err)
	}

	for _, table := range knownTables {
		if _, ok := present[table]; !ok {
			health.MissingTables = append(health.MissingTables, table)
		}
	}

	if _, ok := present["schema_version"]; ok {
		row := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1")
		if err := row.Scan(&health.SchemaVersion); err != nil && !errors.Is(err, sql.ErrNoRows) {
			health.Error = err.Error()
			return health, fmt.Errorf("read schema version: %w", err)
		}
	}
	if _, ok := present["task_state"]; ok {
		row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM task_state")
		if err := row.Scan(&health.KnownTasks); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count tasks: %w", err)
		}
	}
	if _, ok := present["task_runs"]; ok {
		row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM task_runs")
		if err := row.Scan(&health.TotalRuns); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count runs: %w", err)
		}
		row = s.db.QueryRowContext(connCtx,
			"SELECT COUNT(*) FROM task_runs WHERE finished_at IS NULL")
		if err := row.Scan(&health.ActiveRuns); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count active runs: %w", err)
		}
	}
	if _, ok := present["simple_persistence"]; ok {
		if last, err := s.LastCleanup(connCtx); err == nil {
			health.LastCleanup = last
		}
	}

	row := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
