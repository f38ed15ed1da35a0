package server

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
	"github.com/louisbranch/hymnal.space/internal/platform/errors/i18n"
	"github.com/louisbranch/hymnal.space/internal/platform/requestctx"
	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
	"github.com/louisbranch/hymnal.space/internal/services/worship/membership"
)

var (
	errRateLimited = apperrors.New(apperrors.CodeFrameRateLimited, "rate limit exceeded")
	errNotJoined   = apperrors.New(apperrors.CodeMembershipNotJoined, "not in a session")
)

type createPayload struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Password       string `json:"password"`
	ScheduledStart string `json:"scheduled_start"`
	ScheduledEnd   string `json:"scheduled_end"`
	DeviceName     string `json:"device_name"`
	DeviceType     string `json:"device_type"`
}

type joinPayload struct {
	Code       string `json:"code"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
}

type updatePayload struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	Password       *string `json:"password"`
	ScheduledStart *string `json:"scheduled_start"`
	ScheduledEnd   *string `json:"scheduled_end"`
	ClearSchedule  bool    `json:"clear_schedule"`
}

type hymnPayload struct {
	HymnID string `json:"hymn_id"`
}

type versePayload struct {
	Verse int `json:"verse"`
}

type playPayload struct {
	IsPlaying bool `json:"is_playing"`
}

type participantPayload struct {
	ParticipantID string `json:"participant_id"`
}

type navigatePayload struct {
	HymnID    string `json:"hymn_id"`
	Verse     int    `json:"verse"`
	IsPlaying bool   `json:"is_playing"`
}

// wsSession is one websocket connection. Frames are handled one at a time
// on the read loop; membership events are forwarded by a separate goroutine.
type wsSession struct {
	ctx    context.Context
	cfg    HandlerConfig
	peer   *wsPeer
	userID string
	locale string

	mu        sync.Mutex
	member    *membership.Membership
	forwarded chan struct{}
}

func newWSSession(ctx context.Context, cfg HandlerConfig, peer *wsPeer) *wsSession {
	return &wsSession{
		ctx:    ctx,
		cfg:    cfg,
		peer:   peer,
		userID: requestctx.UserIDFromContext(ctx),
		locale: requestctx.LocaleFromContext(ctx, i18n.BaseLocale),
	}
}

// membershipFor returns the joined membership or replaces an idle one with a
// membership for device.
func (s *wsSession) membershipFor(device domain.Device) *membership.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.member != nil && s.member.Joined() {
		return s.member
	}
	s.retireLocked()
	s.member = membership.New(s.cfg.Backend, s.cfg.Bus, membership.Config{
		UserID:            s.userID,
		Device:            device,
		HeartbeatInterval: s.cfg.HeartbeatInterval,
	})
	s.forwarded = make(chan struct{})
	go s.forward(s.member, s.forwarded)
	return s.member
}

func (s *wsSession) current() (*membership.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.member == nil {
		return nil, errNotJoined
	}
	return s.member, nil
}

// retireLocked closes the held membership and waits for its forwarder.
func (s *wsSession) retireLocked() {
	if s.member == nil {
		return
	}
	ctx, cancel := shutdownContext()
	defer cancel()
	if err := s.member.Close(ctx); err != nil {
		log.Printf("worship: close membership for user %q: %v", s.userID, err)
	}
	<-s.forwarded
	s.member = nil
	s.forwarded = nil
}

func (s *wsSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retireLocked()
}

// forward writes membership events until the membership is closed.
func (s *wsSession) forward(m *membership.Membership, done chan struct{}) {
	defer close(done)
	for event := range m.Events() {
		switch event.Kind {
		case membership.EventState:
			_ = s.peer.write(frameState, "", statePayload{
				Session: newSessionView(event.Session),
				Display: newDisplayView(event.Display),
				Applied: event.Applied,
			})
		case membership.EventParticipants:
			_ = s.peer.write(frameParticipants, "", participantsPayload{
				SessionID:    event.Session.ID,
				Participants: newParticipantViews(event.Session, event.Participants),
			})
		case membership.EventRemoved:
			_ = s.peer.write(frameRemoved, "", removedPayload{SessionID: event.Session.ID})
		case membership.EventEnded:
			_ = s.peer.write(frameEnded, "", statePayload{
				Session: newSessionView(event.Session),
				Display: newDisplayView(event.Display),
			})
		}
	}
}

func (s *wsSession) dispatch(frame wsFrame) {
	var err error
	switch frame.Type {
	case "session.create":
		err = s.handleCreate(frame)
	case "session.join":
		err = s.handleJoin(frame)
	case "session.leave":
		err = s.withMember(frame, func(ctx context.Context, m *membership.Membership) (ackResult, error) {
			return ackResult{}, m.LeaveSession(ctx)
		})
	case "session.update":
		err = s.handleUpdate(frame)
	case "session.end":
		err = s.withMember(frame, func(ctx context.Context, m *membership.Membership) (ackResult, error) {
			return ackResult{}, m.EndSession(ctx)
		})
	case "hymn.change":
		var payload hymnPayload
		err = s.withPayload(frame, &payload, func(ctx context.Context, m *membership.Membership) (ackResult, error) {
			return ackResult{}, m.BroadcastHymnChange(ctx, payload.HymnID)
		})
	case "verse.change":
		var payload versePayload
		err = s.withPayload(frame, &payload, func(ctx context.Context, m *membership.Membership) (ackResult, error) {
			return ackResult{}, m.BroadcastVerseChange(ctx, payload.Verse)
		})
	case "play.change":
		var payload playPayload
		err = s.withPayload(frame, &payload, func(ctx context.Context, m *membership.Membership) (ackResult, error) {
			return ackResult{}, m.BroadcastPlayState(ctx, payload.IsPlaying)
		})
	case "participant.promote":
		var payload participantPayload
		err = s.withPayload(frame, &payload, func(ctx context.Context, m *membership.Membership) (ackResult, error) {
			return ackResult{}, m.PromoteToCoLeader(ctx, strings.TrimSpace(payload.ParticipantID))
		})
	case "participant.remove":
		var payload participantPayload
		err = s.withPayload(frame, &payload, func(ctx context.Context, m *membership.Membership) (ackResult, error) {
			return ackResult{}, m.RemoveParticipant(ctx, strings.TrimSpace(payload.ParticipantID))
		})
	case "follow.toggle":
		err = s.withMember(frame, func(ctx context.Context, m *membership.Membership) (ackResult, error) {
			following, err := m.ToggleFollowLeader(ctx)
			return ackResult{IsFollowing: &following}, err
		})
	case "participants.list":
		err = s.handleParticipants(frame)
	case "display.navigate":
		var payload navigatePayload
		err = s.withPayload(frame, &payload, func(_ context.Context, m *membership.Membership) (ackResult, error) {
			display, err := m.Navigate(domain.PlaybackState{
				HymnID:  strings.TrimSpace(payload.HymnID),
				Verse:   payload.Verse,
				Playing: payload.IsPlaying,
			})
			view := newDisplayView(display)
			return ackResult{Display: &view}, err
		})
	case "display.sync":
		err = s.withMember(frame, func(_ context.Context, m *membership.Membership) (ackResult, error) {
			display, err := m.SyncToLeader()
			view := newDisplayView(display)
			return ackResult{Display: &view}, err
		})
	default:
		_ = s.peer.writeInvalid(frame.RequestID, s.locale, "unsupported frame type")
		return
	}
	if err != nil {
		_ = s.peer.writeError(frame.RequestID, s.locale, err)
	}
}

func (s *wsSession) withMember(frame wsFrame, op func(context.Context, *membership.Membership) (ackResult, error)) error {
	m, err := s.current()
	if err != nil {
		return err
	}
	result, err := op(s.ctx, m)
	if err != nil {
		return err
	}
	return s.peer.ack(frame.RequestID, result)
}

func (s *wsSession) withPayload(frame wsFrame, payload any, op func(context.Context, *membership.Membership) (ackResult, error)) error {
	if err := decodePayload(frame, payload); err != nil {
		return err
	}
	return s.withMember(frame, op)
}

func decodePayload(frame wsFrame, payload any) error {
	if len(frame.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(frame.Payload, payload); err != nil {
		return apperrors.Wrap(apperrors.CodeFrameInvalid, "invalid "+frame.Type+" payload", err)
	}
	return nil
}

func (s *wsSession) handleCreate(frame wsFrame) error {
	var payload createPayload
	if err := decodePayload(frame, &payload); err != nil {
		return err
	}
	start, err := parseOptionalTime(payload.ScheduledStart)
	if err != nil {
		return err
	}
	end, err := parseOptionalTime(payload.ScheduledEnd)
	if err != nil {
		return err
	}

	m := s.membershipFor(domain.Device{Name: payload.DeviceName, Type: payload.DeviceType})
	code, err := m.CreateSession(s.ctx, membership.CreateInput{
		Title:          payload.Title,
		Description:    payload.Description,
		Password:       payload.Password,
		ScheduledStart: start,
		ScheduledEnd:   end,
	})
	if err != nil {
		return err
	}
	if err := s.peer.ack(frame.RequestID, ackResult{Code: code}); err != nil {
		return err
	}
	return s.writeSnapshot(m, frame.RequestID)
}

func (s *wsSession) handleJoin(frame wsFrame) error {
	var payload joinPayload
	if err := decodePayload(frame, &payload); err != nil {
		return err
	}
	m := s.membershipFor(domain.Device{Name: payload.DeviceName, Type: payload.DeviceType})
	if err := m.JoinSession(s.ctx, payload.Code, payload.Password); err != nil {
		return err
	}
	joined, err := m.Session()
	if err != nil {
		return err
	}
	if err := s.peer.ack(frame.RequestID, ackResult{Code: joined.Code}); err != nil {
		return err
	}
	return s.writeSnapshot(m, frame.RequestID)
}

// writeSnapshot sends the state and participant list right after joining;
// later changes arrive as events.
func (s *wsSession) writeSnapshot(m *membership.Membership, requestID string) error {
	if err := m.Refresh(s.ctx); err != nil {
		return err
	}
	current, err := m.Session()
	if err != nil {
		return err
	}
	display, err := m.Display()
	if err != nil {
		return err
	}
	if err := s.peer.write(frameState, requestID, statePayload{
		Session: newSessionView(current),
		Display: newDisplayView(display),
		Applied: true,
	}); err != nil {
		return err
	}
	participants, err := m.Participants()
	if err != nil {
		return err
	}
	return s.peer.write(frameParticipants, requestID, participantsPayload{
		SessionID:    current.ID,
		Participants: newParticipantViews(current, participants),
	})
}

func (s *wsSession) handleUpdate(frame wsFrame) error {
	var payload updatePayload
	if err := decodePayload(frame, &payload); err != nil {
		return err
	}
	patch := domain.SettingsPatch{
		Title:         payload.Title,
		Description:   payload.Description,
		Password:      payload.Password,
		ClearSchedule: payload.ClearSchedule,
	}
	if payload.ScheduledStart != nil {
		start, err := parseOptionalTime(*payload.ScheduledStart)
		if err != nil {
			return err
		}
		patch.ScheduledStart = start
	}
	if payload.ScheduledEnd != nil {
		end, err := parseOptionalTime(*payload.ScheduledEnd)
		if err != nil {
			return err
		}
		patch.ScheduledEnd = end
	}
	return s.withMember(frame, func(ctx context.Context, m *membership.Membership) (ackResult, error) {
		return ackResult{}, m.UpdateSessionSettings(ctx, patch)
	})
}

func (s *wsSession) handleParticipants(frame wsFrame) error {
	m, err := s.current()
	if err != nil {
		return err
	}
	if err := m.Refresh(s.ctx); err != nil {
		return err
	}
	current, err := m.Session()
	if err != nil {
		return err
	}
	participants, err := m.Participants()
	if err != nil {
		return err
	}
	return s.peer.write(frameParticipants, frame.RequestID, participantsPayload{
		SessionID:    current.ID,
		Participants: newParticipantViews(current, participants),
	})
}

func parseOptionalTime(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSessionScheduleInvalid, "schedule must be RFC 3339", err)
	}
	return &parsed, nil
}
