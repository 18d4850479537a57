// Package secrets hashes and verifies shared secrets such as callback Basic
// Auth passwords.
package secrets

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	dErrors "idverify/pkg/domain-errors"
)

// Hash creates a bcrypt hash of the provided secret for storage in a
// configuration.
func Hash(secret string) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "secret is too long")
		}
		return "", fmt.Errorf("could not hash secret: %w", err)
	}
	return string(hashed), nil
}

// IsHash reports whether stored looks like a bcrypt hash.
func IsHash(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}

// Verify checks a presented secret against the stored value, which is either
// a bcrypt hash or a plaintext secret compared in constant time.
func Verify(presented, stored string) error {
	if stored == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	if !IsHash(stored) {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) != 1 {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return fmt.Errorf("could not verify secret: %w", err)
	}
	return nil
}
