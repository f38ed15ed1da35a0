package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/hymnal.space/internal/platform/id"
)

// ConnectionStatus is the stored liveness label of a participant row.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// Valid reports whether the status is one of the known labels.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusConnecting, StatusConnected, StatusDisconnected:
		return true
	default:
		return false
	}
}

// Participant is one device's membership in a session.
type Participant struct {
	ID                string
	SessionID         string
	UserID            string
	DeviceName        string
	DeviceType        string
	IsCoLeader        bool
	IsFollowingLeader bool
	ConnectionStatus  ConnectionStatus
	JoinedAt          time.Time
	LastSeen          time.Time
}

// IsGuest reports whether the participant joined without a user identity.
func (p Participant) IsGuest() bool {
	return p.UserID == ""
}

// Device describes the joining device.
type Device struct {
	Name string
	Type string
}

// NewParticipant builds a connecting, following, non-co-leader row.
func NewParticipant(sessionID, userID string, device Device, now func() time.Time, idGenerator func() (string, error)) (Participant, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	participantID, err := idGenerator()
	if err != nil {
		return Participant{}, fmt.Errorf("generate participant id: %w", err)
	}
	joinedAt := now().UTC()
	return Participant{
		ID:                participantID,
		SessionID:         sessionID,
		UserID:            strings.TrimSpace(userID),
		DeviceName:        strings.TrimSpace(device.Name),
		DeviceType:        strings.TrimSpace(device.Type),
		IsFollowingLeader: true,
		ConnectionStatus:  StatusConnecting,
		JoinedAt:          joinedAt,
		LastSeen:          joinedAt,
	}, nil
}

// EffectiveStatus reports the status readers should see. A row not seen
// within staleAfter reads as disconnected whatever its stored status.
func EffectiveStatus(p Participant, now time.Time, staleAfter time.Duration) ConnectionStatus {
	if staleAfter > 0 && now.Sub(p.LastSeen) > staleAfter {
		return StatusDisconnected
	}
	if !p.ConnectionStatus.Valid() {
		return StatusDisconnected
	}
	return p.ConnectionStatus
}
