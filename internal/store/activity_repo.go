package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
)

// Activity is one best-effort per-event notice tied to an execution.
type Activity struct {
	ID          string
	ExecutionID *string
	ServerID    string
	Event       string
	Message     *string
	CreatedAt   time.Time
}

// LogActivity implements the orchestrator's activity-log contract.
// Callers treat failures as non-fatal; this method only reports them.
func (s *Store) LogActivity(ctx context.Context, executionID, serverID string, event core.ActivityEvent, message string) error {
	var execID *string
	if executionID != "" {
		execID = &executionID
	}
	var msg *string
	if message != "" {
		msg = &message
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO activity_logs (id, execution_id, server_id, event, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, core.NewID(), nullableString(execID), serverID, string(event), nullableString(msg),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

// ListActivities returns recent activity notices for a server, newest
// first.
func (s *Store) ListActivities(ctx context.Context, serverID string, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, execution_id, server_id, event, message, created_at
		FROM activity_logs
		WHERE server_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()
	var activities []*Activity
	for rows.Next() {
		var (
			activity    Activity
			executionID sql.NullString
			message     sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&activity.ID, &executionID, &activity.ServerID, &activity.Event, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if executionID.Valid {
			activity.ExecutionID = &executionID.String
		}
		if message.Valid {
			activity.Message = &message.String
		}
		activity.CreatedAt = mustParseTime(createdAt)
		activities = append(activities, &activity)
	}
	return activities, rows.Err()
}
