// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

// Kind groups codes by how callers should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation marks malformed input; retrying unchanged input fails again.
	KindValidation
	// KindNotFound marks a missing session, participant, or membership.
	KindNotFound
	// KindAuthorization marks a caller whose role does not allow the operation.
	KindAuthorization
	// KindConflict marks a uniqueness or lifecycle clash.
	KindConflict
	// KindTransient marks a backend or transport failure that may clear on retry.
	KindTransient
)

// String returns the lowercase kind name used in logs and wire payloads.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session validation
	CodeSessionTitleEmpty       Code = "SESSION_TITLE_EMPTY"
	CodeSessionCodeInvalid      Code = "SESSION_CODE_INVALID"
	CodeSessionVerseInvalid     Code = "SESSION_VERSE_INVALID"
	CodeSessionHymnEmpty        Code = "SESSION_HYMN_EMPTY"
	CodeSessionScheduleInvalid  Code = "SESSION_SCHEDULE_INVALID"
	CodeSessionLeaderMissing    Code = "SESSION_LEADER_MISSING"
	CodeParticipantIDEmpty      Code = "PARTICIPANT_ID_EMPTY"
	CodeSessionPasswordRejected Code = "SESSION_PASSWORD_UNUSABLE"
	CodeFrameInvalid            Code = "FRAME_INVALID"

	// Lookups
	CodeSessionNotFound     Code = "SESSION_NOT_FOUND"
	CodeParticipantNotFound Code = "PARTICIPANT_NOT_FOUND"
	CodeMembershipNotJoined Code = "MEMBERSHIP_NOT_JOINED"

	// Authorization
	CodeSessionJoinRejected          Code = "SESSION_JOIN_REJECTED"
	CodeSessionBroadcastForbidden    Code = "SESSION_BROADCAST_FORBIDDEN"
	CodeSessionLeaderOnly            Code = "SESSION_LEADER_ONLY"
	CodeParticipantLeaderProtected   Code = "PARTICIPANT_LEADER_PROTECTED"
	CodeParticipantFollowUnavailable Code = "PARTICIPANT_FOLLOW_UNAVAILABLE"
	CodeIdentityRequired             Code = "IDENTITY_REQUIRED"

	// Conflicts
	CodeSessionCodeExhausted    Code = "SESSION_CODE_EXHAUSTED"
	CodeMembershipAlreadyActive Code = "MEMBERSHIP_ALREADY_ACTIVE"
	CodeSessionInactive         Code = "SESSION_INACTIVE"
	CodeDisplayLocked           Code = "DISPLAY_LOCKED"

	// Transport and storage
	CodeTransportUnavailable Code = "TRANSPORT_UNAVAILABLE"
	CodeStorageUnavailable   Code = "STORAGE_UNAVAILABLE"
	CodeFrameRateLimited     Code = "FRAME_RATE_LIMITED"
)

// Kind returns the class a code belongs to.
func (c Code) Kind() Kind {
	switch c {
	case CodeSessionTitleEmpty,
		CodeSessionCodeInvalid,
		CodeSessionVerseInvalid,
		CodeSessionHymnEmpty,
		CodeSessionScheduleInvalid,
		CodeSessionLeaderMissing,
		CodeParticipantIDEmpty,
		CodeSessionPasswordRejected,
		CodeFrameInvalid:
		return KindValidation

	case CodeSessionNotFound,
		CodeParticipantNotFound,
		CodeMembershipNotJoined:
		return KindNotFound

	case CodeSessionJoinRejected,
		CodeSessionBroadcastForbidden,
		CodeSessionLeaderOnly,
		CodeParticipantLeaderProtected,
		CodeParticipantFollowUnavailable,
		CodeIdentityRequired:
		return KindAuthorization

	case CodeSessionCodeExhausted,
		CodeMembershipAlreadyActive,
		CodeSessionInactive,
		CodeDisplayLocked:
		return KindConflict

	case CodeTransportUnavailable,
		CodeStorageUnavailable,
		CodeFrameRateLimited:
		return KindTransient

	default:
		return KindUnknown
	}
}

// Retryable reports whether the same call may succeed later.
func (c Code) Retryable() bool {
	return c.Kind() == KindTransient
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeSessionInactive, CodeDisplayLocked:
		return codes.FailedPrecondition
	case CodeFrameRateLimited:
		return codes.ResourceExhausted
	}
	switch c.Kind() {
	case KindValidation:
		return codes.InvalidArgument
	case KindNotFound:
		return codes.NotFound
	case KindAuthorization:
		if c == CodeIdentityRequired {
			return codes.Unauthenticated
		}
		return codes.PermissionDenied
	case KindConflict:
		return codes.AlreadyExists
	case KindTransient:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
