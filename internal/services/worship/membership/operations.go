package membership

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
	"github.com/louisbranch/hymnal.space/internal/services/worship/session"
)

// CreateInput describes a session created from this device.
type CreateInput struct {
	Title          string
	Description    string
	Password       string
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
}

// CreateSession creates a session led by this device's user, joins it, and
// returns the join code.
func (m *Membership) CreateSession(ctx context.Context, input CreateInput) (string, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if err := m.requireIdle(); err != nil {
		return "", err
	}
	if m.cfg.UserID == "" {
		return "", apperrors.New(apperrors.CodeIdentityRequired, "sign in to create a session")
	}
	created, leader, err := m.backend.CreateSession(ctx, domain.CreateSessionInput{
		LeaderID:       m.cfg.UserID,
		Title:          input.Title,
		Description:    input.Description,
		Password:       input.Password,
		ScheduledStart: input.ScheduledStart,
		ScheduledEnd:   input.ScheduledEnd,
		DeviceName:     m.cfg.Device.Name,
		DeviceType:     m.cfg.Device.Type,
	})
	if err != nil {
		return "", err
	}
	m.start(created, leader)
	return created.Code, nil
}

// JoinSession joins the active session holding code.
func (m *Membership) JoinSession(ctx context.Context, code, password string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if err := m.requireIdle(); err != nil {
		return err
	}
	joined, self, err := m.backend.JoinSession(ctx, session.JoinSessionInput{
		Code:     code,
		Password: password,
		UserID:   m.cfg.UserID,
		Device:   m.cfg.Device,
	})
	if err != nil {
		return err
	}
	m.start(joined, self)
	return nil
}

// requireIdle rejects a second session and reaps tasks left by a removal or
// session end.
func (m *Membership) requireIdle() error {
	m.mu.Lock()
	joined := m.joined
	m.mu.Unlock()
	if joined {
		return apperrors.New(apperrors.CodeMembershipAlreadyActive, "already in a session")
	}
	m.stop()
	return nil
}

// LeaveSession stops the session tasks and then deletes this device's row.
func (m *Membership) LeaveSession(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.leave(ctx)
}

func (m *Membership) leave(ctx context.Context) error {
	self, err := m.Self()
	if err != nil {
		return err
	}
	m.stop()
	m.mu.Lock()
	m.joined = false
	m.mu.Unlock()

	return m.backend.LeaveSession(ctx, self.ID)
}

// Close leaves any held session and closes the event channel.
func (m *Membership) Close(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	var err error
	if m.Joined() {
		err = m.leave(ctx)
	}
	m.stop()

	m.eventsMu.Lock()
	if !m.eventsClosed {
		m.eventsClosed = true
		close(m.events)
	}
	m.eventsMu.Unlock()
	return err
}

// UpdateSessionSettings changes the session settings.
func (m *Membership) UpdateSessionSettings(ctx context.Context, patch domain.SettingsPatch) error {
	return m.mutateSession(ctx, func(ctx context.Context, actorID string) (domain.Session, error) {
		return m.backend.UpdateSessionSettings(ctx, actorID, patch)
	})
}

// EndSession ends the session for everyone and stops the session tasks.
func (m *Membership) EndSession(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if err := m.mutateSession(ctx, m.backend.EndSession); err != nil {
		return err
	}
	m.stop()
	return nil
}

// BroadcastHymnChange moves every following device to hymnID.
func (m *Membership) BroadcastHymnChange(ctx context.Context, hymnID string) error {
	return m.mutateSession(ctx, func(ctx context.Context, actorID string) (domain.Session, error) {
		return m.backend.BroadcastHymnChange(ctx, actorID, hymnID)
	})
}

// BroadcastVerseChange moves every following device to verse.
func (m *Membership) BroadcastVerseChange(ctx context.Context, verse int) error {
	return m.mutateSession(ctx, func(ctx context.Context, actorID string) (domain.Session, error) {
		return m.backend.BroadcastVerseChange(ctx, actorID, verse)
	})
}

// BroadcastPlayState starts or stops playback for every following device.
func (m *Membership) BroadcastPlayState(ctx context.Context, playing bool) error {
	return m.mutateSession(ctx, func(ctx context.Context, actorID string) (domain.Session, error) {
		return m.backend.BroadcastPlayState(ctx, actorID, playing)
	})
}

// mutateSession runs op as this device and mirrors the committed row without
// waiting for its publication.
func (m *Membership) mutateSession(ctx context.Context, op func(context.Context, string) (domain.Session, error)) error {
	self, err := m.Self()
	if err != nil {
		return err
	}
	row, err := op(ctx, self.ID)
	if err != nil {
		return err
	}
	m.applySession(nil, row)
	return nil
}

// PromoteToCoLeader grants co-leader rights to participantID.
func (m *Membership) PromoteToCoLeader(ctx context.Context, participantID string) error {
	self, err := m.Self()
	if err != nil {
		return err
	}
	promoted, err := m.backend.PromoteToCoLeader(ctx, self.ID, participantID)
	if err != nil {
		return err
	}
	m.replaceParticipant(promoted)
	return nil
}

// RemoveParticipant removes participantID from the session.
func (m *Membership) RemoveParticipant(ctx context.Context, participantID string) error {
	self, err := m.Self()
	if err != nil {
		return err
	}
	if err := m.backend.RemoveParticipant(ctx, self.ID, participantID); err != nil {
		return err
	}
	m.mu.Lock()
	kept := m.participants[:0:0]
	for _, p := range m.participants {
		if p.ID != participantID {
			kept = append(kept, p)
		}
	}
	m.participants = kept
	m.mu.Unlock()
	return nil
}

// ToggleFollowLeader flips follow mode and returns the new value. Turning
// follow mode back on does not move the display; SyncToLeader does.
func (m *Membership) ToggleFollowLeader(ctx context.Context) (bool, error) {
	self, err := m.Self()
	if err != nil {
		return false, err
	}
	following, err := m.backend.ToggleFollowLeader(ctx, self.ID)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	if m.joined && m.self.ID == self.ID {
		m.self.IsFollowingLeader = following
		for i := range m.participants {
			if m.participants[i].ID == self.ID {
				m.participants[i].IsFollowingLeader = following
			}
		}
	}
	m.mu.Unlock()
	return following, nil
}

// Navigate moves the local display of a device that is not following.
// Leaders and co-leaders move everyone with the broadcast operations.
func (m *Membership) Navigate(state domain.PlaybackState) (domain.PlaybackState, error) {
	if err := domain.ValidateVerse(state.Verse); err != nil {
		return domain.PlaybackState{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.joined {
		return domain.PlaybackState{}, errNotJoined()
	}
	if domain.AppliesBroadcast(domain.RoleOf(m.session, m.self), m.self.IsFollowingLeader) {
		return domain.PlaybackState{}, apperrors.New(apperrors.CodeDisplayLocked,
			"turn off follow mode to navigate on this device")
	}
	m.display = state
	return m.display, nil
}

// SyncToLeader copies the mirrored session playback into the display.
func (m *Membership) SyncToLeader() (domain.PlaybackState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.joined {
		return domain.PlaybackState{}, errNotJoined()
	}
	m.display = m.session.Playback()
	return m.display, nil
}

// Refresh refetches the session row and participant list immediately.
func (m *Membership) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if !m.joined {
		m.mu.Unlock()
		return errNotJoined()
	}
	sessionID := m.session.ID
	m.mu.Unlock()

	row, err := m.backend.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	m.applySession(nil, row)
	participants, err := m.backend.ListParticipants(ctx, sessionID)
	if err != nil {
		return err
	}
	m.applyParticipants(ctx, nil, participants)
	return nil
}

func (m *Membership) replaceParticipant(updated domain.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.participants {
		if m.participants[i].ID == updated.ID {
			m.participants[i] = updated
			return
		}
	}
}
