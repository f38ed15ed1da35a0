package domain

// Role is derived from a participant row and its session; it is never stored.
type Role int

const (
	RoleParticipant Role = iota
	RoleCoLeader
	RoleLeader
)

// String returns the wire label for the role.
func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleCoLeader:
		return "co_leader"
	default:
		return "participant"
	}
}

// RoleOf derives p's role in session. The leader is the participant whose
// user id matches the session's leader id.
func RoleOf(session Session, p Participant) Role {
	if p.UserID != "" && p.UserID == session.LeaderID {
		return RoleLeader
	}
	if p.IsCoLeader {
		return RoleCoLeader
	}
	return RoleParticipant
}

// CanBroadcast reports whether the role may change hymn, verse, playback,
// and session settings.
func (r Role) CanBroadcast() bool {
	return r == RoleLeader || r == RoleCoLeader
}

// CanManage reports whether the role may promote or remove participants and
// end the session.
func (r Role) CanManage() bool {
	return r == RoleLeader
}

// CanToggleFollow reports whether the role has a follow mode to toggle.
func (r Role) CanToggleFollow() bool {
	return r == RoleParticipant
}

// AppliesBroadcast reports whether a device in role should move its display
// to an incoming session update.
func AppliesBroadcast(r Role, following bool) bool {
	return r.CanBroadcast() || following
}
