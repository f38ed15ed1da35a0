package pubsub

import (
	"time"

	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
)

// updateWire is the broker encoding of an Update. Password digests stay
// off the wire; subscribers only learn whether a password is set.
type updateWire struct {
	Kind         Kind              `json:"kind"`
	SessionID    string            `json:"session_id"`
	Session      *sessionWire      `json:"session,omitempty"`
	Participants []participantWire `json:"participants,omitempty"`
}

type sessionWire struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	LeaderID       string     `json:"leader_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	HasPassword    bool       `json:"has_password"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
	CurrentHymnID  string     `json:"current_hymn_id"`
	CurrentVerse   int        `json:"current_verse"`
	IsPlaying      bool       `json:"is_playing"`
	IsActive       bool       `json:"is_active"`
	Revision       int64      `json:"revision"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type participantWire struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id,omitempty"`
	DeviceName        string    `json:"device_name"`
	DeviceType        string    `json:"device_type"`
	IsCoLeader        bool      `json:"is_co_leader"`
	IsFollowingLeader bool      `json:"is_following_leader"`
	ConnectionStatus  string    `json:"connection_status"`
	JoinedAt          time.Time `json:"joined_at"`
	LastSeen          time.Time `json:"last_seen"`
}

func newUpdateWire(update Update) updateWire {
	wire := updateWire{Kind: update.Kind, SessionID: update.SessionID}
	if s := update.Session; s != nil {
		wire.Session = &sessionWire{
			ID:             s.ID,
			Code:           s.Code,
			LeaderID:       s.LeaderID,
			Title:          s.Title,
			Description:    s.Description,
			HasPassword:    s.HasPassword(),
			ScheduledStart: s.ScheduledStart,
			ScheduledEnd:   s.ScheduledEnd,
			CurrentHymnID:  s.CurrentHymnID,
			CurrentVerse:   s.CurrentVerse,
			IsPlaying:      s.IsPlaying,
			IsActive:       s.IsActive,
			Revision:       s.Revision,
			CreatedAt:      s.CreatedAt,
			UpdatedAt:      s.UpdatedAt,
		}
	}
	for _, p := range update.Participants {
		wire.Participants = append(wire.Participants, participantWire{
			ID:                p.ID,
			SessionID:         p.SessionID,
			UserID:            p.UserID,
			DeviceName:        p.DeviceName,
			DeviceType:        p.DeviceType,
			IsCoLeader:        p.IsCoLeader,
			IsFollowingLeader: p.IsFollowingLeader,
			ConnectionStatus:  string(p.ConnectionStatus),
			JoinedAt:          p.JoinedAt,
			LastSeen:          p.LastSeen,
		})
	}
	return wire
}

func (w updateWire) update() Update {
	update := Update{Kind: w.Kind, SessionID: w.SessionID}
	if s := w.Session; s != nil {
		update.Session = &domain.Session{
			ID:               s.ID,
			Code:             s.Code,
			LeaderID:         s.LeaderID,
			Title:            s.Title,
			Description:      s.Description,
			PasswordRequired: s.HasPassword,
			ScheduledStart:   s.ScheduledStart,
			ScheduledEnd:     s.ScheduledEnd,
			CurrentHymnID:    s.CurrentHymnID,
			CurrentVerse:     s.CurrentVerse,
			IsPlaying:        s.IsPlaying,
			IsActive:         s.IsActive,
			Revision:         s.Revision,
			CreatedAt:        s.CreatedAt,
			UpdatedAt:        s.UpdatedAt,
		}
	}
	for _, p := range w.Participants {
		update.Participants = append(update.Participants, domain.Participant{
			ID:                p.ID,
			SessionID:         p.SessionID,
			UserID:            p.UserID,
			DeviceName:        p.DeviceName,
			DeviceType:        p.DeviceType,
			IsCoLeader:        p.IsCoLeader,
			IsFollowingLeader: p.IsFollowingLeader,
			ConnectionStatus:  domain.ConnectionStatus(p.ConnectionStatus),
			JoinedAt:          p.JoinedAt,
			LastSeen:          p.LastSeen,
		})
	}
	return update
}
