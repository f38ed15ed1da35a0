package domain

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	apperrors "github.com/louisbranch/hymnal.space/internal/platform/errors"
)

// CodeLength is the number of digits in a session join code.
const CodeLength = 4

var codeSpace = big.NewInt(10_000)

// GenerateCode returns a uniformly random 4-digit code read from source, or
// from crypto/rand when source is nil.
func GenerateCode(source io.Reader) (string, error) {
	if source == nil {
		source = rand.Reader
	}
	n, err := rand.Int(source, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate session code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// NormalizeCode trims code and checks that it is exactly four ASCII digits.
func NormalizeCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if err := ValidateCode(code); err != nil {
		return "", err
	}
	return code, nil
}

// ValidateCode checks that code is exactly four ASCII digits.
func ValidateCode(code string) error {
	if len(code) != CodeLength {
		return apperrors.New(apperrors.CodeSessionCodeInvalid, "session code must be 4 digits")
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return apperrors.New(apperrors.CodeSessionCodeInvalid, "session code must be 4 digits")
		}
	}
	return nil
}
