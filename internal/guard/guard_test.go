package guard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.io/infrasutra/bharatmail/internal/session"
)

func TestEnsureCSRFLazyAndStable(t *testing.T) {
	state := session.State{}
	first, err := EnsureCSRF(&state)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := EnsureCSRF(&state)
	require.NoError(t, err)
	assert.Equal(t, first, second, "token stays stable until the session resets")
}

func TestVerifyCSRF(t *testing.T) {
	state := session.State{}
	token, err := EnsureCSRF(&state)
	require.NoError(t, err)

	assert.NoError(t, VerifyCSRF(&state, token))
	assert.ErrorIs(t, VerifyCSRF(&state, "forged"), ErrInvalidCSRFToken)
	assert.ErrorIs(t, VerifyCSRF(&state, ""), ErrInvalidCSRFToken)

	empty := session.State{}
	assert.ErrorIs(t, VerifyCSRF(&empty, token), ErrInvalidCSRFToken)
}

func TestLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	limiter := NewLimiter(3, time.Minute)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("alice@bharatmail.in"), "call %d within ceiling", i+1)
		now = now.Add(time.Second)
	}
	assert.False(t, limiter.Allow("alice@bharatmail.in"), "4th call within the window is rejected")

	now = now.Add(2 * time.Minute)
	assert.True(t, limiter.Allow("alice@bharatmail.in"), "a new call succeeds once the window elapses")
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	limiter := NewLimiter(1, time.Minute)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("alice@bharatmail.in"))
	assert.False(t, limiter.Allow("alice@bharatmail.in"))
	assert.True(t, limiter.Allow("bob@bharatmail.in"), "one identity's ceiling must not affect another")
	assert.True(t, limiter.Allow("203.0.113.7"), "anonymous origin keys count separately")
}

func TestLimiterConcurrentAccess(t *testing.T) {
	limiter := NewLimiter(1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				limiter.Allow("shared@bharatmail.in")
				limiter.Allow("other@bharatmail.in")
			}
		}()
	}
	wg.Wait()

	assert.True(t, limiter.Allow("shared@bharatmail.in"))
}
