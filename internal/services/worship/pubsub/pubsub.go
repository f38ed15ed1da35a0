// Package pubsub fans session updates out to every subscriber of a session.
package pubsub

import (
	"context"
	"errors"

	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
)

// ErrClosed is returned when publishing to or subscribing on a closed bus.
var ErrClosed = errors.New("pubsub: bus closed")

// Kind separates the two independent update streams of a session.
type Kind string

const (
	// KindSession carries the full session row after a commit.
	KindSession Kind = "session"
	// KindParticipants carries the participant list after membership changes.
	KindParticipants Kind = "participants"
)

// Update is one message on a session channel. Session is set for
// KindSession, Participants for KindParticipants.
type Update struct {
	Kind         Kind
	SessionID    string
	Session      *domain.Session
	Participants []domain.Participant
}

// SessionUpdate wraps a committed session row.
func SessionUpdate(session domain.Session) Update {
	return Update{Kind: KindSession, SessionID: session.ID, Session: &session}
}

// ParticipantsUpdate wraps a participant list.
func ParticipantsUpdate(sessionID string, participants []domain.Participant) Update {
	return Update{Kind: KindParticipants, SessionID: sessionID, Participants: participants}
}

// Subscription delivers updates for one session until closed.
type Subscription interface {
	// Updates is closed when the subscription ends.
	Updates() <-chan Update
	Close() error
}

// Bus publishes updates keyed by session id.
type Bus interface {
	Publish(ctx context.Context, update Update) error
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
	Close() error
}

// enqueue sends update on ch, which must have no other sender. A full
// channel gives up its oldest update of the same kind, or its oldest update
// when none matches, so the newest snapshot of each kind stays queued.
func enqueue(ch chan Update, update Update) (dropped Update, ok bool) {
	for {
		select {
		case ch <- update:
			return dropped, ok
		default:
		}
		pending := drain(ch)
		if len(pending) == 0 {
			continue
		}
		victim := 0
		for i, queued := range pending {
			if queued.Kind == update.Kind {
				victim = i
				break
			}
		}
		dropped, ok = pending[victim], true
		for i, queued := range pending {
			if i != victim {
				ch <- queued
			}
		}
	}
}

func drain(ch chan Update) []Update {
	var pending []Update
	for {
		select {
		case queued := <-ch:
			pending = append(pending, queued)
		default:
			return pending
		}
	}
}
