package domain

import "time"

// ActionType names an entry in the session activity log.
type ActionType string

const (
	ActionSessionCreated      ActionType = "session_created"
	ActionParticipantJoined   ActionType = "participant_joined"
	ActionParticipantLeft     ActionType = "participant_left"
	ActionHymnChanged         ActionType = "hymn_changed"
	ActionVerseChanged        ActionType = "verse_changed"
	ActionPlayStateChanged    ActionType = "play_state_changed"
	ActionParticipantPromoted ActionType = "participant_promoted"
	ActionParticipantRemoved  ActionType = "participant_removed"
	ActionFollowLeaderToggled ActionType = "follow_leader_toggled"
	ActionSessionUpdated      ActionType = "session_updated"
)

// ActionTypes lists every recognised action type.
var ActionTypes = []ActionType{
	ActionSessionCreated,
	ActionParticipantJoined,
	ActionParticipantLeft,
	ActionHymnChanged,
	ActionVerseChanged,
	ActionPlayStateChanged,
	ActionParticipantPromoted,
	ActionParticipantRemoved,
	ActionFollowLeaderToggled,
	ActionSessionUpdated,
}

// Valid reports whether a is one of ActionTypes.
func (a ActionType) Valid() bool {
	for _, known := range ActionTypes {
		if a == known {
			return true
		}
	}
	return false
}

// ActivityEntry is one append-only audit record.
type ActivityEntry struct {
	ID         int64
	SessionID  string
	UserID     string
	ActionType ActionType
	ActionData map[string]any
	Timestamp  time.Time
}
