package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSettingNotFound is returned when a settings key has no stored value.
var ErrSettingNotFound = errors.New("setting not found")

// Settings reads and writes runtime-editable key/value settings.
type Settings struct {
	db *sql.DB
}

// NewSettings creates a settings accessor over the given connection.
func NewSettings(db *sql.DB) *Settings {
	return &Settings{db: db}
}

// Get returns the raw value stored for key.
func (s *Settings) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}
