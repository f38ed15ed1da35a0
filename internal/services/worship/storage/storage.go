// Package storage defines persistence contracts for worship session state.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
)

// ErrNotFound indicates a requested session or participant record is missing.
var ErrNotFound = errors.New("record not found")

// ErrCodeTaken indicates another active session already holds the join code.
var ErrCodeTaken = errors.New("session code already in use")

// ErrParticipantExists indicates the user already has a row in the session.
var ErrParticipantExists = errors.New("participant already exists")

// SessionStore persists the canonical session row. Every mutation bumps the
// revision and returns the row as committed.
type SessionStore interface {
	// CreateSession inserts the session and its leader participant in one
	// transaction. Returns ErrCodeTaken when the code collides.
	CreateSession(ctx context.Context, session domain.Session, leader domain.Participant) error
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	GetActiveSessionByCode(ctx context.Context, code string) (domain.Session, error)
	// SetHymn sets the hymn and resets the verse to zero.
	SetHymn(ctx context.Context, sessionID, hymnID string, now time.Time) (domain.Session, error)
	SetVerse(ctx context.Context, sessionID string, verse int, now time.Time) (domain.Session, error)
	SetPlaying(ctx context.Context, sessionID string, playing bool, now time.Time) (domain.Session, error)
	UpdateSettings(ctx context.Context, sessionID string, update domain.SettingsUpdate, now time.Time) (domain.Session, error)
	Deactivate(ctx context.Context, sessionID string, now time.Time) (domain.Session, error)
}

// ParticipantStore persists participant rows.
type ParticipantStore interface {
	// AddParticipant returns ErrParticipantExists when a signed-in user
	// already holds a row in the session.
	AddParticipant(ctx context.Context, participant domain.Participant) error
	GetParticipant(ctx context.Context, participantID string) (domain.Participant, error)
	GetParticipantByUser(ctx context.Context, sessionID, userID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	// DeleteParticipant removes the row. Missing rows are not an error.
	DeleteParticipant(ctx context.Context, participantID string) (bool, error)
	SetCoLeader(ctx context.Context, participantID string, coLeader bool) (domain.Participant, error)
	SetFollowingLeader(ctx context.Context, participantID string, following bool) (domain.Participant, error)
	TouchParticipant(ctx context.Context, participantID string, status domain.ConnectionStatus, seenAt time.Time) error
}

// ActivityStore persists the append-only activity log.
type ActivityStore interface {
	AppendActivity(ctx context.Context, entry domain.ActivityEntry) (int64, error)
	// ListActivity returns up to limit most recent entries, oldest first.
	ListActivity(ctx context.Context, sessionID string, limit int) ([]domain.ActivityEntry, error)
}

// Store is the full worship persistence surface.
type Store interface {
	SessionStore
	ParticipantStore
	ActivityStore
	Close() error
}
