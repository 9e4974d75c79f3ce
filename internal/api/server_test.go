package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.io/infrasutra/bharatmail/internal/auth"
	"github.io/infrasutra/bharatmail/internal/config"
	"github.io/infrasutra/bharatmail/internal/docstore"
	"github.io/infrasutra/bharatmail/internal/guard"
	"github.io/infrasutra/bharatmail/internal/mailbox"
	"github.io/infrasutra/bharatmail/internal/notify"
	"github.io/infrasutra/bharatmail/internal/sse"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	store, err := docstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Config{
		EmailSuffix:   "@bharatmail.in",
		SessionMaxAge: time.Hour,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	authManager, err := auth.New("test-secret", cfg.SessionMaxAge)
	require.NoError(t, err)

	hub := sse.NewHub()
	dispatcher := notify.NewDispatcher(store, hub, logger, 100, 100)
	mailService := mailbox.NewService(store, dispatcher, logger, cfg.EmailSuffix)
	pollLimiter := guard.NewLimiter(30, time.Minute)
	refreshLimiter := guard.NewLimiter(2, time.Minute)

	return NewServer(cfg, mailService, dispatcher, authManager, hub, pollLimiter, refreshLimiter, logger)
}

// client drives the server the way a browser would: it carries the session
// cookie and CSRF token across requests.
type client struct {
	t      *testing.T
	server *Server
	cookie *http.Cookie
	csrf   string
}

func (c *client) do(method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "203.0.113.7:51234"
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	if c.csrf != "" {
		req.Header.Set(csrfHeader, c.csrf)
	}
	recorder := httptest.NewRecorder()
	c.server.ServeHTTP(recorder, req)

	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == c.server.auth.CookieName() {
			c.cookie = cookie
		}
	}
	decoded := map[string]any{}
	if recorder.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		_ = json.Unmarshal(recorder.Body.Bytes(), &decoded)
	}
	return recorder, decoded
}

func (c *client) register(first, last, username string) {
	c.t.Helper()
	recorder, body := c.do(http.MethodPost, "/api/register", map[string]string{
		"first_name": first,
		"last_name":  last,
		"username":   username,
		"password":   "secret",
	})
	require.Equal(c.t, http.StatusOK, recorder.Code)
	require.Equal(c.t, true, body["ok"], "register failed: %v", body)
}

func (c *client) login(email string, addMode bool) map[string]any {
	c.t.Helper()
	target := "/api/login"
	if addMode {
		target += "?add=1"
	}
	recorder, body := c.do(http.MethodPost, target, map[string]string{
		"email":    email,
		"password": "secret",
	})
	require.Equal(c.t, http.StatusOK, recorder.Code)
	require.Equal(c.t, true, body["ok"], "login failed: %v", body)
	c.csrf, _ = body["csrf"].(string)
	require.NotEmpty(c.t, c.csrf)
	return body
}

func TestFeedRequiresSession(t *testing.T) {
	server := newTestServer(t)
	c := &client{t: t, server: server}

	recorder, body := c.do(http.MethodGet, "/api/feed", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, false, body["ok"])
}

func TestSendAndCategorizedFeed(t *testing.T) {
	server := newTestServer(t)
	alice := &client{t: t, server: server}
	alice.register("Alice", "Kumar", "alice")
	alice.register("Bob", "Singh", "bob")
	alice.login("alice", false)

	recorder, body := alice.do(http.MethodPost, "/api/send", map[string]any{
		"to":      "bob",
		"subject": "50% OFF SALE",
		"message": "everything must go",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, true, body["ok"], "send failed: %v", body)

	bob := &client{t: t, server: server}
	bob.login("bob", false)
	recorder, body = bob.do(http.MethodGet, "/api/feed", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	view, ok := body["feed"].(map[string]any)
	require.True(t, ok, "feed missing: %v", body)
	promotions, _ := view["Promotions"].([]any)
	require.Len(t, promotions, 1, "sale mail must land in Promotions")
	inbox, _ := view["Inbox"].([]any)
	assert.Empty(t, inbox)
}

func TestSendRejectsBadCSRF(t *testing.T) {
	server := newTestServer(t)
	c := &client{t: t, server: server}
	c.register("Alice", "Kumar", "alice")
	c.login("alice", false)

	c.csrf = "forged"
	recorder, body := c.do(http.MethodPost, "/api/send", map[string]any{"to": "alice", "subject": "x"})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, false, body["ok"])
}

func TestRefreshRateLimited(t *testing.T) {
	server := newTestServer(t)
	c := &client{t: t, server: server}
	c.register("Alice", "Kumar", "alice")
	c.login("alice", false)

	for i := 0; i < 2; i++ {
		recorder, _ := c.do(http.MethodGet, "/api/refresh", nil)
		require.Equal(t, http.StatusOK, recorder.Code, "call %d should pass", i+1)
	}
	recorder, body := c.do(http.MethodGet, "/api/refresh", nil)
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, false, body["ok"])
}

func TestAddAccountAndSwitch(t *testing.T) {
	server := newTestServer(t)
	c := &client{t: t, server: server}
	c.register("Alice", "Kumar", "alice")
	c.register("Bob", "Singh", "bob")

	c.login("alice", false)
	body := c.login("bob", true)
	assert.Equal(t, "bob@bharatmail.in", body["email"])
	accounts, _ := body["accounts"].([]any)
	assert.Equal(t, []any{"alice@bharatmail.in", "bob@bharatmail.in"}, accounts)

	recorder, body := c.do(http.MethodPost, "/api/switch", map[string]string{"email": "alice@bharatmail.in"})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "alice@bharatmail.in", body["email"])

	// Switching to an account that never logged in is a visible failure.
	recorder, body = c.do(http.MethodPost, "/api/switch", map[string]string{"email": "carol@bharatmail.in"})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, false, body["ok"])

	recorder, body = c.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "alice@bharatmail.in", body["email"], "failed switch leaves the active account unchanged")
}

func TestLogoutOneFallsBack(t *testing.T) {
	server := newTestServer(t)
	c := &client{t: t, server: server}
	c.register("Alice", "Kumar", "alice")
	c.register("Bob", "Singh", "bob")
	c.login("alice", false)
	c.login("bob", true)

	recorder, body := c.do(http.MethodPost, "/api/logout/bob@bharatmail.in", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "alice@bharatmail.in", body["email"])

	recorder, body = c.do(http.MethodPost, "/api/logout/alice@bharatmail.in", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "", body["email"])

	recorder, _ = c.do(http.MethodGet, "/api/feed", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestCheckNewAdvancesMarker(t *testing.T) {
	server := newTestServer(t)
	alice := &client{t: t, server: server}
	alice.register("Alice", "Kumar", "alice")
	alice.register("Bob", "Singh", "bob")
	alice.login("alice", false)

	recorder, body := alice.do(http.MethodPost, "/api/send", map[string]any{
		"to": "bob", "subject": "hello", "message": "hi",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, true, body["ok"])

	bob := &client{t: t, server: server}
	bob.login("bob", false)

	recorder, body = bob.do(http.MethodGet, "/api/check-new", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, float64(1), body["count"])

	recorder, body = bob.do(http.MethodGet, "/api/check-new", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, float64(0), body["count"], "the last-check marker advanced")
}

func TestDeleteMailsEndpoint(t *testing.T) {
	server := newTestServer(t)
	c := &client{t: t, server: server}
	c.register("Alice", "Kumar", "alice")
	c.login("alice", false)

	recorder, body := c.do(http.MethodPost, "/api/draft", map[string]any{
		"draft_id": "x1", "subject": "only a draft",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, true, body["ok"])

	recorder, body = c.do(http.MethodPost, "/api/mails/delete", map[string]any{
		"ids": []string{"x1", "x2"},
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, float64(1), body["deleted_count"])
}

func TestNotificationLifecycle(t *testing.T) {
	server := newTestServer(t)
	c := &client{t: t, server: server}
	c.register("Alice", "Kumar", "alice")
	c.login("alice", false)

	recorder, body := c.do(http.MethodGet, "/api/notifications/status", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, false, body["enabled"])

	recorder, body = c.do(http.MethodPost, "/api/notifications/subscribe", map[string]any{
		"subscription": map[string]string{"endpoint": "https://push.example/abc"},
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, true, body["enabled"])

	recorder, body = c.do(http.MethodPost, "/api/notifications/unsubscribe", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, false, body["enabled"])

	recorder, body = c.do(http.MethodGet, "/api/notifications/status", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, false, body["enabled"])
	assert.Equal(t, true, body["subscribed"])
}

func TestHealthEndpoints(t *testing.T) {
	server := newTestServer(t)
	c := &client{t: t, server: server}

	recorder, _ := c.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	recorder, _ = c.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}
