// Package auth answers one question: is this caller an operator.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks operator tokens against a bcrypt hash.
// A zero Verifier trusts nobody.
type Verifier struct {
	hash []byte
}

// NewVerifier wraps a bcrypt hash. An empty hash yields a Verifier that
// rejects every token.
func NewVerifier(hash string) (*Verifier, error) {
	if hash == "" {
		return &Verifier{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("operator token hash: %w", err)
	}
	return &Verifier{hash: []byte(hash)}, nil
}

// IsPrivileged reports whether token is the operator token.
func (v *Verifier) IsPrivileged(token string) bool {
	if v == nil || len(v.hash) == 0 || token == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword(v.hash, []byte(token))
	return err == nil
}

// Enabled reports whether any token can pass.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

// HashToken produces the value to put in OPERATOR_TOKEN_HASH.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token is empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(b), nil
}
