package domain

import (
	"errors"

	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt digest of password.
func HashPassword(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperrors.Wrap(apperrors.CodeSessionPasswordRejected, "session password is too long", err)
		}
		return "", err
	}
	return string(digest), nil
}

// PasswordMatches reports whether supplied satisfies the session password.
// Sessions without a password accept any value, including empty.
func PasswordMatches(digest, supplied string) bool {
	if digest == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(supplied)) == nil
}
