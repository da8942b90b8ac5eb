package utils

import (
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/mindwell/internal/apperr"
)

const (
	MinPasswordLen = 8
	// bcrypt ignores everything past 72 bytes, so longer input is refused
	// rather than silently truncated.
	MaxPasswordBytes = 72
)

// CheckPasswordPolicy reports why plain is not an acceptable account
// password, as a validation error.
func CheckPasswordPolicy(plain string) error {
	switch {
	case utf8.RuneCountInString(plain) < MinPasswordLen:
		return apperr.Validation("password must be at least %d characters", MinPasswordLen)
	case len(plain) > MaxPasswordBytes:
		return apperr.Validation("password must be at most %d bytes", MaxPasswordBytes)
	}
	return nil
}

// HashPassword enforces the password policy and returns the bcrypt hash
// at the configured cost.
func HashPassword(plain string, cost int) (string, error) {
	if err := CheckPasswordPolicy(plain); err != nil {
		return "", err
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares a stored hash with a login attempt.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
