// Package auth signs and verifies the session cookie. The cookie value is
// the JSON session state, base64-encoded and HMAC-SHA256 signed; expiry is
// sliding, measured from the state's last-activity instant.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.io/infrasutra/bharatmail/internal/session"
)

const cookieName = "bharatmail_session"

var (
	ErrInvalidToken   = errors.New("invalid session token")
	ErrSessionExpired = errors.New("session expired")
)

type Manager struct {
	secret []byte
	maxAge time.Duration
}

func New(secret string, maxAge time.Duration) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		generated := make([]byte, 32)
		if _, err := rand.Read(generated); err != nil {
			return nil, fmt.Errorf("generate auth secret: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(generated)
	}
	return &Manager{secret: []byte(secret), maxAge: maxAge}, nil
}

func (m *Manager) CookieName() string {
	return cookieName
}

func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue stamps the state with now as its last activity and encodes it as a
// signed token. Re-issuing on every request is what makes expiry sliding.
func (m *Manager) Issue(state session.State, now time.Time) (string, error) {
	state.LastActivity = now
	encoded, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(encoded)
	return payload + "." + m.sign(payload), nil
}

// Parse verifies the token signature and sliding expiry and returns the
// session state it carries.
func (m *Manager) Parse(token string, now time.Time) (session.State, error) {
	if token == "" {
		return session.State{}, ErrInvalidToken
	}
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || !m.verify(payload, signature) {
		return session.State{}, ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return session.State{}, ErrInvalidToken
	}
	var state session.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return session.State{}, ErrInvalidToken
	}
	if now.Sub(state.LastActivity) > m.maxAge {
		return session.State{}, ErrSessionExpired
	}
	return state, nil
}

// NormalizeEmail lower-cases and validates an address.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(email))
	if trimmed == "" {
		return "", errors.New("email is required")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", errors.New("email must be valid")
	}
	return strings.ToLower(addr.Address), nil
}

func (m *Manager) sign(payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *Manager) verify(payload, signature string) bool {
	expected := m.sign(payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
