package domain

import (
	"strings"
	"testing"

	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	digest, err := HashPassword("amazing grace")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if digest == "amazing grace" || !strings.HasPrefix(digest, "$2") {
		t.Fatalf("digest = %q, want bcrypt digest", digest)
	}
	if !PasswordMatches(digest, "amazing grace") {
		t.Fatal("expected password to match")
	}
	if PasswordMatches(digest, "amazing") {
		t.Fatal("expected wrong password to fail")
	}
	if PasswordMatches(digest, "") {
		t.Fatal("expected empty password to fail")
	}
}

func TestPasswordMatchesWithoutDigest(t *testing.T) {
	if !PasswordMatches("", "") || !PasswordMatches("", "anything") {
		t.Fatal("sessions without a password accept any value")
	}
}

func TestHashPasswordTooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("x", 100))
	if apperrors.CodeOf(err) != apperrors.CodeSessionPasswordRejected {
		t.Fatalf("expected unusable password error, got %v", err)
	}
}
