// Package api wires the HTTP surface: session middleware, CSRF and
// rate-limit enforcement, the JSON mail APIs and the live event stream.
//
// Status conventions: 401 when the session has no active address, 403 on a
// CSRF failure, 429 on a rate-limit rejection, otherwise 200 with a JSON
// body carrying ok plus either the result or a user-visible error message.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.io/infrasutra/bharatmail/internal/auth"
	"github.io/infrasutra/bharatmail/internal/config"
	"github.io/infrasutra/bharatmail/internal/guard"
	"github.io/infrasutra/bharatmail/internal/mailbox"
	"github.io/infrasutra/bharatmail/internal/notify"
	"github.io/infrasutra/bharatmail/internal/session"
	"github.io/infrasutra/bharatmail/internal/sse"
	webassets "github.io/infrasutra/bharatmail/web"
)

const (
	csrfHeader    = "X-CSRF-Token"
	csrfFormField = "csrf_token"
)

type Server struct {
	cfg            config.Config
	mail           *mailbox.Service
	dispatcher     *notify.Dispatcher
	auth           *auth.Manager
	hub            *sse.Hub
	pollLimiter    *guard.Limiter
	refreshLimiter *guard.Limiter
	logger         *slog.Logger
	mux            *http.ServeMux
	staticFS       fs.FS
	staticOK       bool
	now            func() time.Time
}

func NewServer(
	cfg config.Config,
	mail *mailbox.Service,
	dispatcher *notify.Dispatcher,
	authManager *auth.Manager,
	hub *sse.Hub,
	pollLimiter, refreshLimiter *guard.Limiter,
	logger *slog.Logger,
) *Server {
	staticFS, err := webassets.Static()
	staticOK := err == nil
	if err != nil {
		logger.Warn("static assets not embedded", "error", err)
	}
	server := &Server{
		cfg:            cfg,
		mail:           mail,
		dispatcher:     dispatcher,
		auth:           authManager,
		hub:            hub,
		pollLimiter:    pollLimiter,
		refreshLimiter: refreshLimiter,
		logger:         logger,
		staticFS:       staticFS,
		staticOK:       staticOK,
		now:            time.Now,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", server.handleRegister)
	mux.HandleFunc("/api/login", server.handleLogin)
	mux.HandleFunc("/api/me", server.handleMe)
	mux.HandleFunc("/api/switch", server.handleSwitch)
	mux.HandleFunc("/api/logout", server.handleLogoutAll)
	mux.HandleFunc("/api/logout/", server.handleLogoutOne)
	mux.HandleFunc("/api/feed", server.handleFeed)
	mux.HandleFunc("/api/refresh", server.handleRefresh)
	mux.HandleFunc("/api/check-new", server.handleCheckNew)
	mux.HandleFunc("/api/send", server.handleSend)
	mux.HandleFunc("/api/draft", server.handleDraft)
	mux.HandleFunc("/api/mail/", server.handleMail)
	mux.HandleFunc("/api/mails/delete", server.handleDeleteMails)
	mux.HandleFunc("/api/users", server.handleUsers)
	mux.HandleFunc("/api/notifications/subscribe", server.handleSubscribe)
	mux.HandleFunc("/api/notifications/unsubscribe", server.handleUnsubscribe)
	mux.HandleFunc("/api/notifications/status", server.handleNotifyStatus)
	mux.HandleFunc("/api/profile", server.handleProfile)
	mux.HandleFunc("/api/account/delete", server.handleDeleteAccount)
	mux.HandleFunc("/api/stream", server.handleStream)
	server.mux = mux
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.mux.ServeHTTP(w, r)
		return
	}
	switch r.URL.Path {
	case "/health":
		s.respondText(w, http.StatusOK, "ok")
		return
	case "/ready":
		s.respondText(w, http.StatusOK, "ready")
		return
	}
	s.serveStatic(w, r)
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if !s.staticOK {
		http.NotFound(w, r)
		return
	}
	cleaned := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if cleaned == "" {
		cleaned = "index.html"
	}
	file, err := s.staticFS.Open(cleaned)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	if seeker, ok := file.(io.ReadSeeker); ok {
		http.ServeContent(w, r, info.Name(), info.ModTime(), seeker)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), bytes.NewReader(data))
}

// loadSession parses the cookie into a session state; any parse failure
// (missing, tampered, expired) yields a fresh empty session.
func (s *Server) loadSession(r *http.Request) session.State {
	cookie, err := r.Cookie(s.auth.CookieName())
	if err != nil {
		return session.State{}
	}
	state, err := s.auth.Parse(cookie.Value, s.now())
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			s.logger.Info("session rejected", "error", err)
		}
		return session.State{}
	}
	return state
}

// saveSession re-issues the signed cookie with a fresh activity stamp. Every
// authenticated response goes through here, which is what keeps expiry
// sliding.
func (s *Server) saveSession(w http.ResponseWriter, state session.State) {
	now := s.now()
	token, err := s.auth.Issue(state, now)
	if err != nil {
		s.logger.Error("issue session token", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.auth.CookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.auth.MaxAge().Seconds()),
		Expires:  now.Add(s.auth.MaxAge()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.auth.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireActive loads the session and rejects with 401 when no account is
// active.
func (s *Server) requireActive(w http.ResponseWriter, r *http.Request) (session.State, bool) {
	state := s.loadSession(r)
	if !state.Authenticated() {
		s.respondError(w, http.StatusUnauthorized, "not authenticated")
		return session.State{}, false
	}
	return state, true
}

// requireCSRF validates the submitted token (header or form field) against
// the session token, rejecting with 403 on mismatch or absence.
func (s *Server) requireCSRF(w http.ResponseWriter, r *http.Request, state *session.State) bool {
	submitted := r.Header.Get(csrfHeader)
	if submitted == "" {
		submitted = r.FormValue(csrfFormField)
	}
	if err := guard.VerifyCSRF(state, submitted); err != nil {
		s.respondError(w, http.StatusForbidden, "invalid csrf token")
		return false
	}
	return true
}

// allowRate applies a limiter keyed by the active account, falling back to
// the network origin for anonymous callers. Rejection responds 429.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, state session.State, limiter *guard.Limiter) bool {
	key := state.Active
	if key == "" {
		key = clientKey(r)
	}
	if !limiter.Allow(key) {
		s.respondError(w, http.StatusTooManyRequests, "too many requests, slow down")
		return false
	}
	return true
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondOK(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"ok": true}
	for key, value := range fields {
		body[key] = value
	}
	s.respondJSON(w, http.StatusOK, body)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]any{"ok": false, "error": message})
}

// respondFailure is for user-visible, non-fatal errors that keep the 200
// convention.
func (s *Server) respondFailure(w http.ResponseWriter, message string) {
	s.respondJSON(w, http.StatusOK, map[string]any{"ok": false, "error": message})
}

func (s *Server) respondText(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}
