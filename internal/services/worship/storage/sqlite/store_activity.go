package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
)

// AppendActivity inserts one activity entry and returns its id.
func (s *Store) AppendActivity(ctx context.Context, entry domain.ActivityEntry) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if strings.TrimSpace(entry.SessionID) == "" {
		return 0, fmt.Errorf("session id is required")
	}
	if !entry.ActionType.Valid() {
		return 0, fmt.Errorf("action type %q is invalid", entry.ActionType)
	}
	data := entry.ActionData
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal action data: %w", err)
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO activity_log (session_id, user_id, action_type, action_data, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.UserID,
		string(entry.ActionType),
		string(payload),
		toMillis(entry.Timestamp),
	)
	if err != nil {
		return 0, fmt.Errorf("append activity: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("activity id: %w", err)
	}
	return id, nil
}

// ListActivity returns up to limit most recent entries, oldest first.
func (s *Store) ListActivity(ctx context.Context, sessionID string, limit int) ([]domain.ActivityEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, session_id, user_id, action_type, action_data, timestamp FROM (
		   SELECT id, session_id, user_id, action_type, action_data, timestamp
		   FROM activity_log
		   WHERE session_id = ?
		   ORDER BY id DESC
		   LIMIT ?
		 ) ORDER BY id`,
		strings.TrimSpace(sessionID),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ActivityEntry, 0)
	for rows.Next() {
		var (
			entry     domain.ActivityEntry
			action    string
			payload   string
			timestamp int64
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.UserID, &action, &payload, &timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		entry.ActionType = domain.ActionType(action)
		entry.Timestamp = fromMillis(timestamp)
		if err := json.Unmarshal([]byte(payload), &entry.ActionData); err != nil {
			return nil, fmt.Errorf("unmarshal action data: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return entries, nil
}
