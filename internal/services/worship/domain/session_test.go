package domain

import (
	"testing"
	"time"

	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
}

func fixedID(value string) func() (string, error) {
	return func() (string, error) { return value, nil }
}

func TestNewSessionDefaults(t *testing.T) {
	session, err := NewSession(CreateSessionInput{
		LeaderID:    " user-1 ",
		Title:       "  Sunday Service ",
		Description: "Evening hymns",
	}, "0427", "", fixedNow, fixedID("s-1"))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if session.ID != "s-1" || session.Code != "0427" {
		t.Fatalf("session = %+v", session)
	}
	if session.LeaderID != "user-1" || session.Title != "Sunday Service" {
		t.Fatalf("expected trimmed fields, got %+v", session)
	}
	if !session.IsActive || session.IsPlaying || session.CurrentVerse != 0 || session.CurrentHymnID != "" {
		t.Fatalf("unexpected initial playback state: %+v", session)
	}
	if session.Revision != 1 {
		t.Fatalf("revision = %d, want 1", session.Revision)
	}
	if !session.CreatedAt.Equal(fixedNow()) {
		t.Fatalf("created at = %v", session.CreatedAt)
	}
}

func TestNewSessionValidation(t *testing.T) {
	start := fixedNow()
	end := start.Add(-time.Hour)
	tests := []struct {
		name  string
		input CreateSessionInput
		code  string
		want  apperrors.Code
	}{
		{name: "missing leader", input: CreateSessionInput{Title: "x"}, code: "1234", want: apperrors.CodeSessionLeaderMissing},
		{name: "blank title", input: CreateSessionInput{LeaderID: "u", Title: "   "}, code: "1234", want: apperrors.CodeSessionTitleEmpty},
		{name: "end before start", input: CreateSessionInput{LeaderID: "u", Title: "x", ScheduledStart: &start, ScheduledEnd: &end}, code: "1234", want: apperrors.CodeSessionScheduleInvalid},
		{name: "bad code", input: CreateSessionInput{LeaderID: "u", Title: "x"}, code: "12a4", want: apperrors.CodeSessionCodeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(tt.input, tt.code, "", fixedNow, fixedID("s-1"))
			if got := apperrors.CodeOf(err); got != tt.want {
				t.Fatalf("code = %q, want %q (err %v)", got, tt.want, err)
			}
			if apperrors.KindOf(err) != apperrors.KindValidation {
				t.Fatalf("kind = %v, want validation", apperrors.KindOf(err))
			}
		})
	}
}

func TestPrepareSettingsMergesSchedule(t *testing.T) {
	start := fixedNow()
	end := start.Add(2 * time.Hour)
	current := Session{ScheduledStart: &start, ScheduledEnd: &end}

	earlyEnd := start.Add(-time.Minute)
	if _, err := PrepareSettings(current, SettingsPatch{ScheduledEnd: &earlyEnd}, nil); apperrors.CodeOf(err) != apperrors.CodeSessionScheduleInvalid {
		t.Fatalf("expected schedule error, got %v", err)
	}

	later := start.Add(3 * time.Hour)
	update, err := PrepareSettings(current, SettingsPatch{ScheduledEnd: &later}, nil)
	if err != nil {
		t.Fatalf("prepare settings: %v", err)
	}
	if !update.ScheduleSet || !update.ScheduledStart.Equal(start) || !update.ScheduledEnd.Equal(later) {
		t.Fatalf("update = %+v", update)
	}

	cleared, err := PrepareSettings(current, SettingsPatch{ClearSchedule: true}, nil)
	if err != nil {
		t.Fatalf("clear schedule: %v", err)
	}
	if !cleared.ScheduleSet || cleared.ScheduledStart != nil || cleared.ScheduledEnd != nil {
		t.Fatalf("expected cleared schedule, got %+v", cleared)
	}
}

func TestPrepareSettingsPassword(t *testing.T) {
	hash := func(value string) (string, error) { return "digest:" + value, nil }
	secret := "psalm"
	update, err := PrepareSettings(Session{}, SettingsPatch{Password: &secret}, hash)
	if err != nil {
		t.Fatalf("prepare settings: %v", err)
	}
	if !update.PasswordSet || update.Digest != "digest:psalm" {
		t.Fatalf("update = %+v", update)
	}

	empty := ""
	update, err = PrepareSettings(Session{PasswordDigest: "old"}, SettingsPatch{Password: &empty}, hash)
	if err != nil {
		t.Fatalf("prepare settings: %v", err)
	}
	if !update.PasswordSet || update.Digest != "" {
		t.Fatalf("expected password to be cleared, got %+v", update)
	}
}

func TestPrepareSettingsRejectsBlankTitle(t *testing.T) {
	blank := " "
	_, err := PrepareSettings(Session{}, SettingsPatch{Title: &blank}, nil)
	if apperrors.CodeOf(err) != apperrors.CodeSessionTitleEmpty {
		t.Fatalf("expected title error, got %v", err)
	}
}

func TestSettingsPatchEmpty(t *testing.T) {
	if !(SettingsPatch{}).Empty() {
		t.Fatal("zero patch should be empty")
	}
	title := "x"
	if (SettingsPatch{Title: &title}).Empty() {
		t.Fatal("patch with title should not be empty")
	}
}

func TestValidateVerseAndHymn(t *testing.T) {
	if err := ValidateVerse(0); err != nil {
		t.Fatalf("verse 0: %v", err)
	}
	if err := ValidateVerse(99); err != nil {
		t.Fatalf("verse 99 should be accepted: %v", err)
	}
	if apperrors.CodeOf(ValidateVerse(-1)) != apperrors.CodeSessionVerseInvalid {
		t.Fatal("expected negative verse error")
	}
	if _, err := ValidateHymnID("  "); apperrors.CodeOf(err) != apperrors.CodeSessionHymnEmpty {
		t.Fatalf("expected hymn error, got %v", err)
	}
	if got, err := ValidateHymnID(" h-12 "); err != nil || got != "h-12" {
		t.Fatalf("ValidateHymnID = %q, %v", got, err)
	}
}
