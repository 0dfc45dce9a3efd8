package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Settings are stored as JSON-encoded values keyed by (server_id, key).
// Global settings use an empty server_id. Lookups deliberately never
// surface errors to callers: a missing or unreadable value comes back as
// ok=false so the orchestrator substitutes its default (a settings hiccup
// must never stop the scheduler).

const globalServerID = ""

// GetBool reads a per-server boolean setting.
func (s *Store) GetBool(ctx context.Context, serverID, key string) (bool, bool) {
	var value bool
	ok := s.getSetting(ctx, serverID, key, &value)
	return value, ok
}

// GetInt reads a per-server integer setting.
func (s *Store) GetInt(ctx context.Context, serverID, key string) (int, bool) {
	var value int
	ok := s.getSetting(ctx, serverID, key, &value)
	return value, ok
}

// GetString reads a per-server string setting.
func (s *Store) GetString(ctx context.Context, serverID, key string) (string, bool) {
	var value string
	ok := s.getSetting(ctx, serverID, key, &value)
	return value, ok
}

// GetGlobalBool reads a process-wide boolean setting.
func (s *Store) GetGlobalBool(ctx context.Context, key string) (bool, bool) {
	return s.GetBool(ctx, globalServerID, key)
}

// SetSetting writes a setting value. An empty serverID targets the global
// scope.
func (s *Store) SetSetting(ctx context.Context, serverID, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO settings (server_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(server_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, serverID, key, string(encoded), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// SettingEntry is one row of the settings listing surface.
type SettingEntry struct {
	ServerID  string
	Key       string
	Value     json.RawMessage
	UpdatedAt time.Time
}

// ListSettings returns all settings for a server (or the global scope).
func (s *Store) ListSettings(ctx context.Context, serverID string) ([]SettingEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT server_id, key, value, updated_at
		FROM settings
		WHERE server_id = ?
		ORDER BY key
	`, serverID)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()
	var entries []SettingEntry
	for rows.Next() {
		var entry SettingEntry
		var value, updatedAt string
		if err := rows.Scan(&entry.ServerID, &entry.Key, &value, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		entry.Value = json.RawMessage(value)
		entry.UpdatedAt = mustParseTime(updatedAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) getSetting(ctx context.Context, serverID, key string, out any) bool {
	var raw string
	err := s.DB.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE server_id = ? AND key = ?
	`, serverID, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		s.logger.Warn("setting lookup failed, using default",
			"server_id", serverID, "key", key, "err", err)
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.logger.Warn("setting value unreadable, using default",
			"server_id", serverID, "key", key, "err", err)
		return false
	}
	return true
}
