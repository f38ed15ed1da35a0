package session

import (
	"context"

	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
	"go.opentelemetry.io/otel/attribute"
)

// BroadcastHymnChange sets the session's current hymn and resets the verse
// to 0 in the same commit.
func (s *Service) BroadcastHymnChange(ctx context.Context, actorID, hymnID string) (session domain.Session, err error) {
	ctx, span := s.startSpan(ctx, "BroadcastHymnChange", attribute.String("worship.participant_id", actorID))
	defer func() { endSpan(span, err) }()

	hymnID, err = domain.ValidateHymnID(hymnID)
	if err != nil {
		return domain.Session{}, err
	}
	a, err := s.authorize(ctx, actorID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := requireBroadcast(a); err != nil {
		return domain.Session{}, err
	}
	session, err = s.store.SetHymn(ctx, a.session.ID, hymnID, s.now())
	if err != nil {
		return domain.Session{}, storageError(err, apperrors.CodeSessionNotFound, "set hymn")
	}

	s.record(session.ID, a.participant.UserID, domain.ActionHymnChanged, map[string]any{
		"hymn_id":       hymnID,
		"previous_hymn": a.session.CurrentHymnID,
	})
	s.publishSession(ctx, session)
	return session, nil
}

// BroadcastVerseChange sets the session's current verse.
func (s *Service) BroadcastVerseChange(ctx context.Context, actorID string, verse int) (session domain.Session, err error) {
	ctx, span := s.startSpan(ctx, "BroadcastVerseChange",
		attribute.String("worship.participant_id", actorID),
		attribute.Int("worship.verse", verse))
	defer func() { endSpan(span, err) }()

	if err := domain.ValidateVerse(verse); err != nil {
		return domain.Session{}, err
	}
	a, err := s.authorize(ctx, actorID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := requireBroadcast(a); err != nil {
		return domain.Session{}, err
	}
	session, err = s.store.SetVerse(ctx, a.session.ID, verse, s.now())
	if err != nil {
		return domain.Session{}, storageError(err, apperrors.CodeSessionNotFound, "set verse")
	}

	s.record(session.ID, a.participant.UserID, domain.ActionVerseChanged, map[string]any{
		"verse":          verse,
		"previous_verse": a.session.CurrentVerse,
	})
	s.publishSession(ctx, session)
	return session, nil
}

// BroadcastPlayState sets whether the session is playing.
func (s *Service) BroadcastPlayState(ctx context.Context, actorID string, playing bool) (session domain.Session, err error) {
	ctx, span := s.startSpan(ctx, "BroadcastPlayState",
		attribute.String("worship.participant_id", actorID),
		attribute.Bool("worship.playing", playing))
	defer func() { endSpan(span, err) }()

	a, err := s.authorize(ctx, actorID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := requireBroadcast(a); err != nil {
		return domain.Session{}, err
	}
	session, err = s.store.SetPlaying(ctx, a.session.ID, playing, s.now())
	if err != nil {
		return domain.Session{}, storageError(err, apperrors.CodeSessionNotFound, "set play state")
	}

	s.record(session.ID, a.participant.UserID, domain.ActionPlayStateChanged, map[string]any{
		"is_playing": playing,
	})
	s.publishSession(ctx, session)
	return session, nil
}
