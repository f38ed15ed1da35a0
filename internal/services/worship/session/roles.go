package session

import (
	"context"

	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
	"go.opentelemetry.io/otel/attribute"
)

// loadTarget returns the target participant of a management operation. The
// target must belong to the actor's session and must not be the leader.
func (s *Service) loadTarget(ctx context.Context, a actor, targetID string) (domain.Participant, error) {
	if targetID == "" {
		return domain.Participant{}, apperrors.New(apperrors.CodeParticipantIDEmpty, "target participant id is required")
	}
	target, err := s.store.GetParticipant(ctx, targetID)
	if err != nil {
		return domain.Participant{}, storageError(err, apperrors.CodeParticipantNotFound, "load participant "+targetID)
	}
	if target.SessionID != a.session.ID {
		return domain.Participant{}, apperrors.New(apperrors.CodeParticipantNotFound, "participant "+targetID+" is not in this session")
	}
	if domain.RoleOf(a.session, target) == domain.RoleLeader {
		return domain.Participant{}, apperrors.New(apperrors.CodeParticipantLeaderProtected, "the session leader cannot be changed")
	}
	return target, nil
}

// PromoteToCoLeader grants co-leader rights. Promoting a co-leader again
// returns the row without logging.
func (s *Service) PromoteToCoLeader(ctx context.Context, actorID, targetID string) (participant domain.Participant, err error) {
	ctx, span := s.startSpan(ctx, "PromoteToCoLeader",
		attribute.String("worship.participant_id", actorID),
		attribute.String("worship.target_id", targetID))
	defer func() { endSpan(span, err) }()

	a, err := s.authorize(ctx, actorID)
	if err != nil {
		return domain.Participant{}, err
	}
	if err := requireLeader(a); err != nil {
		return domain.Participant{}, err
	}
	target, err := s.loadTarget(ctx, a, targetID)
	if err != nil {
		return domain.Participant{}, err
	}
	if target.IsCoLeader {
		return target, nil
	}
	participant, err = s.store.SetCoLeader(ctx, target.ID, true)
	if err != nil {
		return domain.Participant{}, storageError(err, apperrors.CodeParticipantNotFound, "promote participant")
	}

	s.record(a.session.ID, a.participant.UserID, domain.ActionParticipantPromoted, map[string]any{
		"participant_id": participant.ID,
		"user_id":        participant.UserID,
	})
	s.publishParticipants(ctx, a.session.ID)
	return participant, nil
}

// RemoveParticipant deletes another participant's row. The removed device
// learns of it from the next participant list.
func (s *Service) RemoveParticipant(ctx context.Context, actorID, targetID string) (err error) {
	ctx, span := s.startSpan(ctx, "RemoveParticipant",
		attribute.String("worship.participant_id", actorID),
		attribute.String("worship.target_id", targetID))
	defer func() { endSpan(span, err) }()

	a, err := s.authorize(ctx, actorID)
	if err != nil {
		return err
	}
	if err := requireLeader(a); err != nil {
		return err
	}
	target, err := s.loadTarget(ctx, a, targetID)
	if err != nil {
		return err
	}
	existed, err := s.store.DeleteParticipant(ctx, target.ID)
	if err != nil {
		return storageError(err, apperrors.CodeParticipantNotFound, "remove participant")
	}
	if !existed {
		return apperrors.New(apperrors.CodeParticipantNotFound, "participant "+targetID+" already left")
	}

	s.record(a.session.ID, a.participant.UserID, domain.ActionParticipantRemoved, map[string]any{
		"participant_id": target.ID,
		"user_id":        target.UserID,
	})
	s.publishParticipants(ctx, a.session.ID)
	return nil
}

// ToggleFollowLeader flips the caller's follow mode and returns the new
// value. Leaders and co-leaders have no follow mode.
func (s *Service) ToggleFollowLeader(ctx context.Context, actorID string) (following bool, err error) {
	ctx, span := s.startSpan(ctx, "ToggleFollowLeader", attribute.String("worship.participant_id", actorID))
	defer func() { endSpan(span, err) }()

	a, err := s.authorize(ctx, actorID)
	if err != nil {
		return false, err
	}
	if !a.role.CanToggleFollow() {
		return false, apperrors.New(apperrors.CodeParticipantFollowUnavailable, "leaders and co-leaders always drive the display")
	}
	if err := requireActive(a.session); err != nil {
		return false, err
	}
	participant, err := s.store.SetFollowingLeader(ctx, a.participant.ID, !a.participant.IsFollowingLeader)
	if err != nil {
		return false, storageError(err, apperrors.CodeParticipantNotFound, "toggle follow mode")
	}

	s.record(a.session.ID, a.participant.UserID, domain.ActionFollowLeaderToggled, map[string]any{
		"is_following": participant.IsFollowingLeader,
	})
	s.publishParticipants(ctx, a.session.ID)
	return participant.IsFollowingLeader, nil
}
