package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.io/infrasutra/bharatmail/internal/session"
)

func TestIssueParseRoundTrip(t *testing.T) {
	manager, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	state := session.State{
		Active:    "alice@bharatmail.in",
		Accounts:  []string{"alice@bharatmail.in", "bob@bharatmail.in"},
		CSRFToken: "token",
	}
	token, err := manager.Issue(state, now)
	require.NoError(t, err)

	parsed, err := manager.Parse(token, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, state.Active, parsed.Active)
	assert.Equal(t, state.Accounts, parsed.Accounts)
	assert.Equal(t, state.CSRFToken, parsed.CSRFToken)
	assert.True(t, parsed.LastActivity.Equal(now))
}

func TestParseExpired(t *testing.T) {
	manager, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	token, err := manager.Issue(session.State{Active: "alice@bharatmail.in"}, now)
	require.NoError(t, err)

	_, err = manager.Parse(token, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSlidingExpiry(t *testing.T) {
	manager, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	token, err := manager.Issue(session.State{Active: "alice@bharatmail.in"}, now)
	require.NoError(t, err)

	// Re-issuing 50 minutes in extends the window past the original expiry.
	state, err := manager.Parse(token, now.Add(50*time.Minute))
	require.NoError(t, err)
	token, err = manager.Issue(state, now.Add(50*time.Minute))
	require.NoError(t, err)

	_, err = manager.Parse(token, now.Add(100*time.Minute))
	assert.NoError(t, err)
}

func TestParseRejectsTampering(t *testing.T) {
	manager, err := New("test-secret", time.Hour)
	require.NoError(t, err)

	now := time.Now()
	token, err := manager.Issue(session.State{Active: "alice@bharatmail.in"}, now)
	require.NoError(t, err)

	payload, signature, ok := strings.Cut(token, ".")
	require.True(t, ok)
	_, err = manager.Parse(payload+"x."+signature, now)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = manager.Parse("", now)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := New("other-secret", time.Hour)
	require.NoError(t, err)
	_, err = other.Parse(token, now)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail("  Alice@BharatMail.IN ")
	require.NoError(t, err)
	assert.Equal(t, "alice@bharatmail.in", email)

	_, err = NormalizeEmail("")
	assert.Error(t, err)
	_, err = NormalizeEmail("not-an-address")
	assert.Error(t, err)
}
