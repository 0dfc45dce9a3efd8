package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
)

var ErrExecutionNotFound = errors.New("execution not found")

// Execution is one persisted start/end/outcome record.
type Execution struct {
	ID          string
	ServerID    string
	VillageID   *string
	Title       string
	Description *string
	Status      string
	StartedAt   time.Time
	EndedAt     *time.Time
	CreatedAt   time.Time
}

// LogExecution opens an execution record and returns its id. Implements
// the orchestrator's execution-log contract; the record stays in status
// "running" until UpdateExecutionLog closes it.
func (s *Store) LogExecution(ctx context.Context, rec core.ExecutionRecord) (string, error) {
	id := core.NewID()
	now := time.Now().UTC()
	var villageID *string
	if rec.VillageID != "" {
		villageID = &rec.VillageID
	}
	var description *string
	if rec.Description != "" {
		description = &rec.Description
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO execution_logs (id, server_id, village_id, title, description, status, started_at, ended_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?)
	`, id, rec.ServerID, nullableString(villageID), rec.Title, nullableString(description),
		"running", rec.StartedAt.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert execution log: %w", err)
	}
	return id, nil
}

// UpdateExecutionLog closes an execution record with its outcome.
func (s *Store) UpdateExecutionLog(ctx context.Context, id string, endedAt time.Time, status core.ExecutionStatus, description string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE execution_logs
		SET ended_at = ?, status = ?, description = ?
		WHERE id = ?
	`, endedAt.UTC().Format(time.RFC3339Nano), string(status), description, id)
	if err != nil {
		return fmt.Errorf("update execution log: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrExecutionNotFound
	}
	return nil
}

// GetExecution loads one execution record.
func (s *Store) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, server_id, village_id, title, description, status, started_at, ended_at, created_at
		FROM execution_logs WHERE id = ?
	`, id)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}
	return exec, nil
}

// ListExecutions returns recent execution records, optionally filtered by
// server, newest first.
func (s *Store) ListExecutions(ctx context.Context, serverID string, limit, offset int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows *sql.Rows
	var err error
	if serverID != "" {
		rows, err = s.DB.QueryContext(ctx, `
			SELECT id, server_id, village_id, title, description, status, started_at, ended_at, created_at
			FROM execution_logs
			WHERE server_id = ?
			ORDER BY created_at DESC
			LIMIT ? OFFSET ?
		`, serverID, limit, offset)
	} else {
		rows, err = s.DB.QueryContext(ctx, `
			SELECT id, server_id, village_id, title, description, status, started_at, ended_at, created_at
			FROM execution_logs
			ORDER BY created_at DESC
			LIMIT ? OFFSET ?
		`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()
	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*Execution, error) {
	var (
		id          string
		serverID    string
		villageID   sql.NullString
		title       string
		description sql.NullString
		status      string
		startedAt   string
		endedAt     sql.NullString
		createdAt   string
	)
	if err := scanner.Scan(&id, &serverID, &villageID, &title, &description, &status, &startedAt, &endedAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	exec := &Execution{
		ID:        id,
		ServerID:  serverID,
		Title:     title,
		Status:    status,
		StartedAt: mustParseTime(startedAt),
		CreatedAt: mustParseTime(createdAt),
	}
	if villageID.Valid {
		exec.VillageID = &villageID.String
	}
	if description.Valid {
		exec.Description = &description.String
	}
	if endedAt.Valid {
		t := mustParseTime(endedAt.String)
		exec.EndedAt = &t
	}
	return exec, nil
}
