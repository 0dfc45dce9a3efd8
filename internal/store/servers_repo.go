package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
)

var ErrServerNotFound = errors.New("server not found")

// UpsertServer inserts or updates a registry row.
func (s *Store) UpsertServer(ctx context.Context, server core.ServerInfo) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO servers (id, code, name, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, server.ID, server.Code, server.Name, boolToInt(server.Active), now, now)
	if err != nil {
		return fmt.Errorf("upsert server: %w", err)
	}
	return nil
}

// SetServerActive flips the active flag for a server.
func (s *Store) SetServerActive(ctx context.Context, id string, active bool) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE servers SET active = ?, updated_at = ? WHERE id = ?
	`, boolToInt(active), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("set server active: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrServerNotFound
	}
	return nil
}

// GetServer loads one registry row.
func (s *Store) GetServer(ctx context.Context, id string) (core.ServerInfo, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, code, name, active FROM servers WHERE id = ?
	`, id)
	server, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ServerInfo{}, ErrServerNotFound
	}
	return server, err
}

// ListServers returns all registry rows, active or not.
func (s *Store) ListServers(ctx context.Context) ([]core.ServerInfo, error) {
	return s.queryServers(ctx, `SELECT id, code, name, active FROM servers ORDER BY id`)
}

// GetActiveServers implements the orchestrator's server-registry contract.
func (s *Store) GetActiveServers(ctx context.Context) ([]core.ServerInfo, error) {
	return s.queryServers(ctx, `SELECT id, code, name, active FROM servers WHERE active = 1 ORDER BY id`)
}

func (s *Store) queryServers(ctx context.Context, query string) ([]core.ServerInfo, error) {
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()
	var servers []core.ServerInfo
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

func scanServer(scanner interface {
	Scan(dest ...any) error
}) (core.ServerInfo, error) {
	var server core.ServerInfo
	var active int
	if err := scanner.Scan(&server.ID, &server.Code, &server.Name, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ServerInfo{}, err
		}
		return core.ServerInfo{}, fmt.Errorf("scan server: %w", err)
	}
	server.Active = active != 0
	return server, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
