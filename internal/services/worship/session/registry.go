package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
	"github.com/louisbranch/hymnal.space/internal/services/worship/storage"
	"go.opentelemetry.io/otel/attribute"
)

const joinRejectedMessage = "invalid session code or password"

// JoinSessionInput identifies the session to join and the joining device.
type JoinSessionInput struct {
	Code     string
	Password string
	// UserID is empty for guests.
	UserID string
	Device domain.Device
}

// CreateSession creates an active session with a fresh join code and makes
// the caller its leader participant.
func (s *Service) CreateSession(ctx context.Context, input domain.CreateSessionInput) (session domain.Session, leader domain.Participant, err error) {
	ctx, span := s.startSpan(ctx, "CreateSession")
	defer func() { endSpan(span, err) }()

	normalized, err := domain.NormalizeCreateSessionInput(input)
	if err != nil {
		return domain.Session{}, domain.Participant{}, err
	}
	digest := ""
	if input.Password != "" {
		if digest, err = s.hashPassword(input.Password); err != nil {
			return domain.Session{}, domain.Participant{}, err
		}
	}
	device := domain.Device{Name: normalized.DeviceName, Type: normalized.DeviceType}

	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		code, err := domain.GenerateCode(s.codeSource)
		if err != nil {
			return domain.Session{}, domain.Participant{}, err
		}
		session, err = domain.NewSession(normalized, code, digest, s.now, s.idGenerator)
		if err != nil {
			return domain.Session{}, domain.Participant{}, err
		}
		leader, err = domain.NewParticipant(session.ID, session.LeaderID, device, s.now, s.idGenerator)
		if err != nil {
			return domain.Session{}, domain.Participant{}, err
		}
		err = s.store.CreateSession(ctx, session, leader)
		if errors.Is(err, storage.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Session{}, domain.Participant{}, storageError(err, apperrors.CodeSessionNotFound, "create session")
		}

		span.SetAttributes(attribute.String("worship.session_id", session.ID))
		s.record(session.ID, session.LeaderID, domain.ActionSessionCreated, map[string]any{
			"title":        session.Title,
			"code":         session.Code,
			"has_password": session.HasPassword(),
		})
		return session, leader, nil
	}
	return domain.Session{}, domain.Participant{}, apperrors.New(apperrors.CodeSessionCodeExhausted,
		fmt.Sprintf("no free session code after %d attempts", s.codeAttempts))
}

// JoinSession admits a device into the active session holding code. Unknown
// codes, ended sessions, and wrong passwords are indistinguishable to the
// caller. A signed-in user who already has a row gets that row back.
func (s *Service) JoinSession(ctx context.Context, input JoinSessionInput) (session domain.Session, participant domain.Participant, err error) {
	ctx, span := s.startSpan(ctx, "JoinSession")
	defer func() { endSpan(span, err) }()

	code, err := domain.NormalizeCode(input.Code)
	if err != nil {
		return domain.Session{}, domain.Participant{}, err
	}
	session, err = s.store.GetActiveSessionByCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Session{}, domain.Participant{}, apperrors.New(apperrors.CodeSessionJoinRejected, joinRejectedMessage)
		}
		return domain.Session{}, domain.Participant{}, storageError(err, apperrors.CodeSessionJoinRejected, "find session by code")
	}
	if !domain.PasswordMatches(session.PasswordDigest, input.Password) {
		return domain.Session{}, domain.Participant{}, apperrors.New(apperrors.CodeSessionJoinRejected, joinRejectedMessage)
	}
	span.SetAttributes(attribute.String("worship.session_id", session.ID))

	userID := strings.TrimSpace(input.UserID)
	rejoined := false
	if userID != "" {
		existing, err := s.store.GetParticipantByUser(ctx, session.ID, userID)
		switch {
		case err == nil:
			participant, rejoined = existing, true
		case !errors.Is(err, storage.ErrNotFound):
			return domain.Session{}, domain.Participant{}, storageError(err, apperrors.CodeParticipantNotFound, "find participant by user")
		}
	}
	if !rejoined {
		participant, err = domain.NewParticipant(session.ID, userID, input.Device, s.now, s.idGenerator)
		if err != nil {
			return domain.Session{}, domain.Participant{}, err
		}
		err = s.store.AddParticipant(ctx, participant)
		switch {
		case errors.Is(err, storage.ErrParticipantExists):
			participant, err = s.store.GetParticipantByUser(ctx, session.ID, userID)
			if err != nil {
				return domain.Session{}, domain.Participant{}, storageError(err, apperrors.CodeParticipantNotFound, "find participant by user")
			}
			rejoined = true
		case errors.Is(err, storage.ErrNotFound):
			return domain.Session{}, domain.Participant{}, apperrors.New(apperrors.CodeSessionJoinRejected, joinRejectedMessage)
		case err != nil:
			return domain.Session{}, domain.Participant{}, storageError(err, apperrors.CodeSessionNotFound, "add participant")
		}
	}

	s.record(session.ID, participant.UserID, domain.ActionParticipantJoined, map[string]any{
		"participant_id": participant.ID,
		"device_name":    participant.DeviceName,
		"device_type":    participant.DeviceType,
		"rejoined":       rejoined,
	})
	s.publishParticipants(ctx, session.ID)
	return session, participant, nil
}

// LeaveSession deletes the participant row. Leaving twice is a no-op. The
// leader leaving does not end the session.
func (s *Service) LeaveSession(ctx context.Context, participantID string) (err error) {
	ctx, span := s.startSpan(ctx, "LeaveSession", attribute.String("worship.participant_id", participantID))
	defer func() { endSpan(span, err) }()

	participant, err := s.store.GetParticipant(ctx, participantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storageError(err, apperrors.CodeParticipantNotFound, "load participant")
	}
	existed, err := s.store.DeleteParticipant(ctx, participantID)
	if err != nil {
		return storageError(err, apperrors.CodeParticipantNotFound, "delete participant")
	}
	if !existed {
		return nil
	}
	s.record(participant.SessionID, participant.UserID, domain.ActionParticipantLeft, map[string]any{
		"participant_id": participant.ID,
	})
	s.publishParticipants(ctx, participant.SessionID)
	return nil
}

// UpdateSessionSettings applies patch for a leader or co-leader.
func (s *Service) UpdateSessionSettings(ctx context.Context, actorID string, patch domain.SettingsPatch) (session domain.Session, err error) {
	ctx, span := s.startSpan(ctx, "UpdateSessionSettings", attribute.String("worship.participant_id", actorID))
	defer func() { endSpan(span, err) }()

	a, err := s.authorize(ctx, actorID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := requireBroadcast(a); err != nil {
		return domain.Session{}, err
	}
	if patch.Empty() {
		return a.session, nil
	}
	update, err := domain.PrepareSettings(a.session, patch, s.hashPassword)
	if err != nil {
		return domain.Session{}, err
	}
	session, err = s.store.UpdateSettings(ctx, a.session.ID, update, s.now())
	if err != nil {
		return domain.Session{}, storageError(err, apperrors.CodeSessionNotFound, "update settings")
	}

	s.record(session.ID, a.participant.UserID, domain.ActionSessionUpdated, settingsActivity(update))
	s.publishSession(ctx, session)
	return session, nil
}

func settingsActivity(update domain.SettingsUpdate) map[string]any {
	data := map[string]any{}
	if update.Title != nil {
		data["title"] = *update.Title
	}
	if update.Description != nil {
		data["description"] = *update.Description
	}
	if update.PasswordSet {
		data["password_changed"] = true
		data["has_password"] = update.Digest != ""
	}
	if update.ScheduleSet {
		data["schedule_changed"] = true
	}
	return data
}

// EndSession deactivates the session. Only the leader may end it; ending an
// ended session returns it unchanged.
func (s *Service) EndSession(ctx context.Context, actorID string) (session domain.Session, err error) {
	ctx, span := s.startSpan(ctx, "EndSession", attribute.String("worship.participant_id", actorID))
	defer func() { endSpan(span, err) }()

	a, err := s.authorize(ctx, actorID)
	if err != nil {
		return domain.Session{}, err
	}
	if !a.role.CanManage() {
		return domain.Session{}, apperrors.New(apperrors.CodeSessionLeaderOnly, "only the session leader may end it")
	}
	if !a.session.IsActive {
		return a.session, nil
	}
	session, err = s.store.Deactivate(ctx, a.session.ID, s.now())
	if err != nil {
		return domain.Session{}, storageError(err, apperrors.CodeSessionNotFound, "end session")
	}
	s.record(session.ID, a.participant.UserID, domain.ActionSessionUpdated, map[string]any{"is_active": false})
	s.publishSession(ctx, session)
	return session, nil
}

// GetSession returns the canonical session row.
func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, storageError(err, apperrors.CodeSessionNotFound, "load session "+sessionID)
	}
	return session, nil
}

// GetParticipant returns one participant row with its effective status.
func (s *Service) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	participant, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return domain.Participant{}, storageError(err, apperrors.CodeParticipantNotFound, "load participant "+participantID)
	}
	participant.ConnectionStatus = domain.EffectiveStatus(participant, s.now(), s.staleAfter)
	return participant, nil
}

// ListParticipants returns the session's participants in join order with
// stale rows reported as disconnected.
func (s *Service) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	return s.listParticipants(ctx, sessionID)
}

// Heartbeat marks the participant connected and seen now.
func (s *Service) Heartbeat(ctx context.Context, participantID string) error {
	if err := s.store.TouchParticipant(ctx, participantID, domain.StatusConnected, s.now()); err != nil {
		return storageError(err, apperrors.CodeParticipantNotFound, "heartbeat "+participantID)
	}
	return nil
}
