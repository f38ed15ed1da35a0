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

const sessionColumns = `id, code, leader_id, title, description, password_digest,
	scheduled_start, scheduled_end, current_hymn_id, current_verse,
	is_playing, is_active, revision, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		session        domain.Session
		scheduledStart sql.NullInt64
		scheduledEnd   sql.NullInt64
		isPlaying      int
		isActive       int
		createdAt      int64
		updatedAt      int64
	)
	if err := row.Scan(
		&session.ID,
		&session.Code,
		&session.LeaderID,
		&session.Title,
		&session.Description,
		&session.PasswordDigest,
		&scheduledStart,
		&scheduledEnd,
		&session.CurrentHymnID,
		&session.CurrentVerse,
		&isPlaying,
		&isActive,
		&session.Revision,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Session{}, err
	}
	session.ScheduledStart = fromNullMillis(scheduledStart)
	session.ScheduledEnd = fromNullMillis(scheduledEnd)
	session.IsPlaying = isPlaying != 0
	session.IsActive = isActive != 0
	session.CreatedAt = fromMillis(createdAt)
	session.UpdatedAt = fromMillis(updatedAt)
	return session, nil
}

// CreateSession inserts the session and its leader participant atomically.
func (s *Store) CreateSession(ctx context.Context, session domain.Session, leader domain.Participant) (err error) {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if leader.SessionID != session.ID {
		return fmt.Errorf("leader participant must belong to session %s", session.ID)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.Code,
		session.LeaderID,
		session.Title,
		session.Description,
		session.PasswordDigest,
		toNullMillis(session.ScheduledStart),
		toNullMillis(session.ScheduledEnd),
		session.CurrentHymnID,
		session.CurrentVerse,
		boolToInt(session.IsPlaying),
		boolToInt(session.IsActive),
		session.Revision,
		toMillis(session.CreatedAt),
		toMillis(session.UpdatedAt),
	); err != nil {
		if isUniqueViolation(err, "sessions.code") {
			return storage.ErrCodeTaken
		}
		return fmt.Errorf("insert session: %w", err)
	}
	if err := insertParticipant(ctx, tx, leader); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	return nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Session{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, fmt.Errorf("session id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, storage.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// GetActiveSessionByCode returns the active session holding code.
func (s *Store) GetActiveSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Session{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE code = ? AND is_active = 1`,
		strings.TrimSpace(code),
	)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, storage.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("get session by code: %w", err)
	}
	return session, nil
}

// SetHymn sets the current hymn and resets the verse in one statement.
func (s *Store) SetHymn(ctx context.Context, sessionID, hymnID string, now time.Time) (domain.Session, error) {
	return s.updateSession(ctx, sessionID, now, "set hymn",
		[]string{"current_hymn_id = ?", "current_verse = 0"}, hymnID)
}

// SetVerse sets the current verse.
func (s *Store) SetVerse(ctx context.Context, sessionID string, verse int, now time.Time) (domain.Session, error) {
	if verse < 0 {
		return domain.Session{}, fmt.Errorf("verse must not be negative")
	}
	return s.updateSession(ctx, sessionID, now, "set verse",
		[]string{"current_verse = ?"}, verse)
}

// SetPlaying sets the playback flag.
func (s *Store) SetPlaying(ctx context.Context, sessionID string, playing bool, now time.Time) (domain.Session, error) {
	return s.updateSession(ctx, sessionID, now, "set playing",
		[]string{"is_playing = ?"}, boolToInt(playing))
}

// UpdateSettings writes the fields present in update.
func (s *Store) UpdateSettings(ctx context.Context, sessionID string, update domain.SettingsUpdate, now time.Time) (domain.Session, error) {
	var (
		assignments []string
		args        []any
	)
	if update.Title != nil {
		assignments = append(assignments, "title = ?")
		args = append(args, *update.Title)
	}
	if update.Description != nil {
		assignments = append(assignments, "description = ?")
		args = append(args, *update.Description)
	}
	if update.PasswordSet {
		assignments = append(assignments, "password_digest = ?")
		args = append(args, update.Digest)
	}
	if update.ScheduleSet {
		assignments = append(assignments, "scheduled_start = ?", "scheduled_end = ?")
		args = append(args, toNullMillis(update.ScheduledStart), toNullMillis(update.ScheduledEnd))
	}
	return s.updateSession(ctx, sessionID, now, "update settings", assignments, args...)
}

// Deactivate marks the session inactive, releasing its code.
func (s *Store) Deactivate(ctx context.Context, sessionID string, now time.Time) (domain.Session, error) {
	return s.updateSession(ctx, sessionID, now, "deactivate session",
		[]string{"is_active = 0", "is_playing = 0"})
}

// updateSession applies assignments to one row, bumps its revision, and
// returns the committed row. Each call is a single statement, so concurrent
// writers resolve last-write-wins per column set.
func (s *Store) updateSession(ctx context.Context, sessionID string, now time.Time, op string, assignments []string, args ...any) (domain.Session, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Session{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, fmt.Errorf("session id is required")
	}
	assignments = append(assignments, "revision = revision + 1", "updated_at = ?")
	args = append(args, toMillis(now), sessionID)

	row := s.sqlDB.QueryRowContext(ctx,
		`UPDATE sessions SET `+strings.Join(assignments, ", ")+`
		 WHERE id = ?
		 RETURNING `+sessionColumns,
		args...,
	)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, storage.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("%s: %w", op, err)
	}
	return session, nil
}
