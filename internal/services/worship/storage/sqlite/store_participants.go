package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
	"github.com/louisbranch/hymnal.space/internal/services/worship/storage"
)

const participantColumns = `id, session_id, user_id, device_name, device_type,
	is_co_leader, is_following_leader, connection_status, joined_at, last_seen`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanParticipant(row rowScanner) (domain.Participant, error) {
	var (
		participant domain.Participant
		isCoLeader  int
		isFollowing int
		status      string
		joinedAt    int64
		lastSeen    int64
	)
	if err := row.Scan(
		&participant.ID,
		&participant.SessionID,
		&participant.UserID,
		&participant.DeviceName,
		&participant.DeviceType,
		&isCoLeader,
		&isFollowing,
		&status,
		&joinedAt,
		&lastSeen,
	); err != nil {
		return domain.Participant{}, err
	}
	participant.IsCoLeader = isCoLeader != 0
	participant.IsFollowingLeader = isFollowing != 0
	participant.ConnectionStatus = domain.ConnectionStatus(status)
	participant.JoinedAt = fromMillis(joinedAt)
	participant.LastSeen = fromMillis(lastSeen)
	return participant, nil
}

func insertParticipant(ctx context.Context, db execer, participant domain.Participant) error {
	if strings.TrimSpace(participant.ID) == "" {
		return fmt.Errorf("participant id is required")
	}
	if strings.TrimSpace(participant.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	status := participant.ConnectionStatus
	if status == "" {
		status = domain.StatusConnecting
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO participants (`+participantColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		participant.ID,
		participant.SessionID,
		participant.UserID,
		participant.DeviceName,
		participant.DeviceType,
		boolToInt(participant.IsCoLeader),
		boolToInt(participant.IsFollowingLeader),
		string(status),
		toMillis(participant.JoinedAt),
		toMillis(participant.LastSeen),
	)
	if err != nil {
		if isUniqueViolation(err, "participants.user_id") {
			return storage.ErrParticipantExists
		}
		if strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed") {
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// AddParticipant inserts a participant row.
func (s *Store) AddParticipant(ctx context.Context, participant domain.Participant) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return insertParticipant(ctx, s.sqlDB, participant)
}

// GetParticipant returns a participant by id.
func (s *Store) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Participant{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = ?`,
		strings.TrimSpace(participantID),
	)
	participant, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Participant{}, storage.ErrNotFound
		}
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return participant, nil
}

// GetParticipantByUser returns the row a signed-in user holds in a session.
func (s *Store) GetParticipantByUser(ctx context.Context, sessionID, userID string) (domain.Participant, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Participant{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Participant{}, storage.ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = ? AND user_id = ?`,
		strings.TrimSpace(sessionID),
		userID,
	)
	participant, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Participant{}, storage.ErrNotFound
		}
		return domain.Participant{}, fmt.Errorf("get participant by user: %w", err)
	}
	return participant, nil
}

// ListParticipants returns the session's participants in join order.
func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE session_id = ?
		 ORDER BY joined_at, id`,
		strings.TrimSpace(sessionID),
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	participants := make([]domain.Participant, 0)
	for rows.Next() {
		participant, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, participant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}

// DeleteParticipant removes a participant row and reports whether it existed.
func (s *Store) DeleteParticipant(ctx context.Context, participantID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, strings.TrimSpace(participantID))
	if err != nil {
		return false, fmt.Errorf("delete participant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete participant rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetCoLeader sets the co-leader flag.
func (s *Store) SetCoLeader(ctx context.Context, participantID string, coLeader bool) (domain.Participant, error) {
	return s.updateParticipant(ctx, participantID, "set co-leader", "is_co_leader = ?", boolToInt(coLeader))
}

// SetFollowingLeader sets the follow-mode flag.
func (s *Store) SetFollowingLeader(ctx context.Context, participantID string, following bool) (domain.Participant, error) {
	return s.updateParticipant(ctx, participantID, "set following", "is_following_leader = ?", boolToInt(following))
}

// TouchParticipant records a heartbeat.
func (s *Store) TouchParticipant(ctx context.Context, participantID string, status domain.ConnectionStatus, seenAt time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("connection status %q is invalid", status)
	}
	_, err := s.updateParticipant(ctx, participantID, "touch participant",
		"connection_status = ?, last_seen = ?", string(status), toMillis(seenAt))
	return err
}

func (s *Store) updateParticipant(ctx context.Context, participantID, op, assignment string, args ...any) (domain.Participant, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Participant{}, err
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return domain.Participant{}, fmt.Errorf("participant id is required")
	}
	args = append(args, participantID)
	row := s.sqlDB.QueryRowContext(ctx,
		`UPDATE participants SET `+assignment+` WHERE id = ? RETURNING `+participantColumns,
		args...,
	)
	participant, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Participant{}, storage.ErrNotFound
		}
		return domain.Participant{}, fmt.Errorf("%s: %w", op, err)
	}
	return participant, nil
}
