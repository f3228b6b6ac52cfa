package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken is returned when a presented API token does not match.
var ErrInvalidToken = errors.New("invalid api token")

// Verifier checks bearer tokens against a bcrypt hash. A Verifier without a
// hash accepts every request, which is the default for a localhost daemon.
type Verifier struct {
	hash []byte
}

// NewVerifier validates hash and builds a Verifier. An empty hash disables
// token checks.
func NewVerifier(hash string) (*Verifier, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return &Verifier{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("parse api token hash: %w", err)
	}
	return &Verifier{hash: []byte(hash)}, nil
}

// Enabled reports whether tokens are required.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

// Verify returns nil when token matches the configured hash.
func (v *Verifier) Verify(token string) error {
	if !v.Enabled() {
		return nil
	}
	if token == "" {
		return ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// HashToken produces the value expected in API_TOKEN_HASH.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
