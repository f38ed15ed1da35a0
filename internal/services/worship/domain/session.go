package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
	"github.com/louisbranch/hymnal.space/internal/platform/id"
)

// Session is the canonical shared state of one worship session.
type Session struct {
	ID             string
	Code           string
	LeaderID       string
	Title          string
	Description    string
	PasswordDigest string
	// PasswordRequired marks snapshots received without the digest.
	PasswordRequired bool
	ScheduledStart   *time.Time
	ScheduledEnd     *time.Time
	CurrentHymnID    string
	CurrentVerse     int
	IsPlaying        bool
	IsActive         bool
	// Revision counts commits to this row. Subscribers use it to discard
	// snapshots older than the one they already hold.
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword reports whether joining requires a password.
func (s Session) HasPassword() bool {
	return s.PasswordDigest != "" || s.PasswordRequired
}

// Playback returns the hymn, verse, and play flag carried by the session.
func (s Session) Playback() PlaybackState {
	return PlaybackState{HymnID: s.CurrentHymnID, Verse: s.CurrentVerse, Playing: s.IsPlaying}
}

// PlaybackState is what a participant display shows.
type PlaybackState struct {
	HymnID  string
	Verse   int
	Playing bool
}

// CreateSessionInput describes a new session and the leader's device.
type CreateSessionInput struct {
	LeaderID       string
	Title          string
	Description    string
	Password       string
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	DeviceName     string
	DeviceType     string
}

// NormalizeCreateSessionInput trims and validates session input.
func NormalizeCreateSessionInput(input CreateSessionInput) (CreateSessionInput, error) {
	input.LeaderID = strings.TrimSpace(input.LeaderID)
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.DeviceName = strings.TrimSpace(input.DeviceName)
	input.DeviceType = strings.TrimSpace(input.DeviceType)
	if input.LeaderID == "" {
		return CreateSessionInput{}, apperrors.New(apperrors.CodeSessionLeaderMissing, "leader id is required")
	}
	if input.Title == "" {
		return CreateSessionInput{}, apperrors.New(apperrors.CodeSessionTitleEmpty, "session title is required")
	}
	if err := ValidateSchedule(input.ScheduledStart, input.ScheduledEnd); err != nil {
		return CreateSessionInput{}, err
	}
	return input, nil
}

// NewSession builds an active session owned by input.LeaderID. The caller
// supplies the join code and the password digest.
func NewSession(input CreateSessionInput, code, passwordDigest string, now func() time.Time, idGenerator func() (string, error)) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	normalized, err := NormalizeCreateSessionInput(input)
	if err != nil {
		return Session{}, err
	}
	if err := ValidateCode(code); err != nil {
		return Session{}, err
	}
	sessionID, err := idGenerator()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}

	createdAt := now().UTC()
	return Session{
		ID:             sessionID,
		Code:           code,
		LeaderID:       normalized.LeaderID,
		Title:          normalized.Title,
		Description:    normalized.Description,
		PasswordDigest: passwordDigest,
		ScheduledStart: utcPtr(normalized.ScheduledStart),
		ScheduledEnd:   utcPtr(normalized.ScheduledEnd),
		IsActive:       true,
		Revision:       1,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// SettingsPatch carries a partial settings update. Nil fields are left as
// they are. A non-nil empty Password clears the password.
type SettingsPatch struct {
	Title          *string
	Description    *string
	Password       *string
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	ClearSchedule  bool
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Password == nil &&
		p.ScheduledStart == nil && p.ScheduledEnd == nil && !p.ClearSchedule
}

// SettingsUpdate is a validated patch ready for storage. Digest holds the
// new password digest when PasswordSet is true.
type SettingsUpdate struct {
	Title          *string
	Description    *string
	PasswordSet    bool
	Digest         string
	ScheduleSet    bool
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
}

// PrepareSettings validates patch against the current session and resolves
// the password digest with hash.
func PrepareSettings(current Session, patch SettingsPatch, hash func(string) (string, error)) (SettingsUpdate, error) {
	var update SettingsUpdate
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return SettingsUpdate{}, apperrors.New(apperrors.CodeSessionTitleEmpty, "session title is required")
		}
		update.Title = &title
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		update.Description = &description
	}
	if patch.Password != nil {
		update.PasswordSet = true
		if *patch.Password != "" {
			if hash == nil {
				hash = HashPassword
			}
			digest, err := hash(*patch.Password)
			if err != nil {
				return SettingsUpdate{}, err
			}
			update.Digest = digest
		}
	}
	switch {
	case patch.ClearSchedule:
		update.ScheduleSet = true
	case patch.ScheduledStart != nil || patch.ScheduledEnd != nil:
		start, end := current.ScheduledStart, current.ScheduledEnd
		if patch.ScheduledStart != nil {
			start = patch.ScheduledStart
		}
		if patch.ScheduledEnd != nil {
			end = patch.ScheduledEnd
		}
		if err := ValidateSchedule(start, end); err != nil {
			return SettingsUpdate{}, err
		}
		update.ScheduleSet = true
		update.ScheduledStart = utcPtr(start)
		update.ScheduledEnd = utcPtr(end)
	}
	return update, nil
}

// ValidateSchedule rejects an end that is not after the start.
func ValidateSchedule(start, end *time.Time) error {
	if start != nil && end != nil && !end.After(*start) {
		return apperrors.New(apperrors.CodeSessionScheduleInvalid, "scheduled end must be after scheduled start")
	}
	return nil
}

// ValidateHymnID rejects an empty hymn reference.
func ValidateHymnID(hymnID string) (string, error) {
	hymnID = strings.TrimSpace(hymnID)
	if hymnID == "" {
		return "", apperrors.New(apperrors.CodeSessionHymnEmpty, "hymn id is required")
	}
	return hymnID, nil
}

// ValidateVerse rejects negative verse indexes. Verse counts belong to the
// hymn catalog, so there is no upper bound here.
func ValidateVerse(verse int) error {
	if verse < 0 {
		return apperrors.WithMetadata(apperrors.CodeSessionVerseInvalid,
			fmt.Sprintf("verse %d is negative", verse),
			map[string]string{"Verse": fmt.Sprint(verse)})
	}
	return nil
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
