package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetValue reads a persisted key. The second return is false when the
// key has never been written.
func (s *Store) GetValue(ctx context.Context, key string) (string, bool, error) {
	ctx = ensureContext(ctx)
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM simple_persistence WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get persisted value %q: %w", key, err)
	}
	return value, true, nil
}

// SetValue writes a persisted key.
func (s *Store) SetValue(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(ctx,
		`INSERT INTO simple_persistence (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	if err != nil {
		return fmt.Errorf("set persisted value %q: %w", key, err)
	}
	return nil
}

// DeleteValue removes a persisted key. Missing keys are not an error.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	if _, err := s.execWithRetry(ctx, "DELETE FROM simple_persistence WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete persisted value %q: %w", key, err)
	}
	return nil
}

// GetTime reads a persisted timestamp. Zero time and false when unset.
func (s *Store) GetTime(ctx context.Context, key string) (time.Time, bool, error) {
	raw, ok, err := s.GetValue(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse persisted time %q: %w", key, err)
	}
	return parsed, true, nil
}

// SetTime writes a persisted timestamp.
func (s *Store) SetTime(ctx context.Context, key string, value time.Time) error {
	return s.SetValue(ctx, key, value.UTC().Format(time.RFC3339Nano))
}
