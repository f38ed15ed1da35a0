package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown                      = "UNKNOWN"
	CodeSessionTitleEmpty            = "SESSION_TITLE_EMPTY"
	CodeSessionCodeInvalid           = "SESSION_CODE_INVALID"
	CodeSessionVerseInvalid          = "SESSION_VERSE_INVALID"
	CodeSessionHymnEmpty             = "SESSION_HYMN_EMPTY"
	CodeSessionScheduleInvalid       = "SESSION_SCHEDULE_INVALID"
	CodeSessionLeaderMissing         = "SESSION_LEADER_MISSING"
	CodeParticipantIDEmpty           = "PARTICIPANT_ID_EMPTY"
	CodeSessionPasswordRejected      = "SESSION_PASSWORD_UNUSABLE"
	CodeFrameInvalid                 = "FRAME_INVALID"
	CodeSessionNotFound              = "SESSION_NOT_FOUND"
	CodeParticipantNotFound          = "PARTICIPANT_NOT_FOUND"
	CodeMembershipNotJoined          = "MEMBERSHIP_NOT_JOINED"
	CodeSessionJoinRejected          = "SESSION_JOIN_REJECTED"
	CodeSessionBroadcastForbidden    = "SESSION_BROADCAST_FORBIDDEN"
	CodeSessionLeaderOnly            = "SESSION_LEADER_ONLY"
	CodeParticipantLeaderProtected   = "PARTICIPANT_LEADER_PROTECTED"
	CodeParticipantFollowUnavailable = "PARTICIPANT_FOLLOW_UNAVAILABLE"
	CodeIdentityRequired             = "IDENTITY_REQUIRED"
	CodeSessionCodeExhausted         = "SESSION_CODE_EXHAUSTED"
	CodeMembershipAlreadyActive      = "MEMBERSHIP_ALREADY_ACTIVE"
	CodeSessionInactive              = "SESSION_INACTIVE"
	CodeDisplayLocked                = "DISPLAY_LOCKED"
	CodeTransportUnavailable         = "TRANSPORT_UNAVAILABLE"
	CodeStorageUnavailable           = "STORAGE_UNAVAILABLE"
	CodeFrameRateLimited             = "FRAME_RATE_LIMITED"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		CodeUnknown: "Something went wrong",

		CodeSessionTitleEmpty:       "Session title cannot be empty",
		CodeSessionCodeInvalid:      "Session code must be 4 digits",
		CodeSessionVerseInvalid:     "Verse {{.Verse}} is not valid",
		CodeSessionHymnEmpty:        "Choose a hymn before broadcasting",
		CodeSessionScheduleInvalid:  "Scheduled end must be after the scheduled start",
		CodeSessionLeaderMissing:    "A signed-in leader is required to create a session",
		CodeParticipantIDEmpty:      "Participant ID is required",
		CodeSessionPasswordRejected: "Session password cannot be used",
		CodeFrameInvalid:            "The request could not be read",

		CodeSessionNotFound:     "Session not found",
		CodeParticipantNotFound: "Participant not found in this session",
		CodeMembershipNotJoined: "Join a session first",

		CodeSessionJoinRejected:          "Invalid session code or password",
		CodeSessionBroadcastForbidden:    "Only the leader or a co-leader can change the session",
		CodeSessionLeaderOnly:            "Only the session leader can do that",
		CodeParticipantLeaderProtected:   "The session leader cannot be changed or removed",
		CodeParticipantFollowUnavailable: "Leaders and co-leaders have no follow mode",
		CodeIdentityRequired:             "Sign in to continue",

		CodeSessionCodeExhausted:    "Could not allocate a session code, try again",
		CodeMembershipAlreadyActive: "Already in a session, leave it first",
		CodeSessionInactive:         "This session has ended",
		CodeDisplayLocked:           "Turn off follow mode to navigate on your own",

		CodeTransportUnavailable: "Connection to the session was interrupted",
		CodeStorageUnavailable:   "The session service is temporarily unavailable",
		CodeFrameRateLimited:     "Too many requests, slow down",
	},
}
