// Package guard protects the mutating and polling APIs: per-session CSRF
// tokens and sliding-window rate limiting keyed by identity.
package guard

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.io/infrasutra/bharatmail/internal/session"
)

var ErrInvalidCSRFToken = errors.New("invalid csrf token")

// EnsureCSRF returns the session's CSRF token, generating one lazily on
// first use. The token stays stable until the session is reset.
func EnsureCSRF(state *session.State) (string, error) {
	if state.CSRFToken != "" {
		return state.CSRFToken, nil
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	state.CSRFToken = base64.RawURLEncoding.EncodeToString(raw)
	return state.CSRFToken, nil
}

// VerifyCSRF compares the submitted token against the session token in
// constant time. An absent or mismatched token fails with
// ErrInvalidCSRFToken.
func VerifyCSRF(state *session.State, submitted string) error {
	if state.CSRFToken == "" || submitted == "" {
		return ErrInvalidCSRFToken
	}
	if !hmac.Equal([]byte(state.CSRFToken), []byte(submitted)) {
		return ErrInvalidCSRFToken
	}
	return nil
}
