package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.io/infrasutra/bharatmail/internal/guard"
	"github.io/infrasutra/bharatmail/internal/mailbox"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var payload struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Username  string `json:"username"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	user, err := s.mail.Register(r.Context(), payload.FirstName, payload.LastName, payload.Username, payload.Password)
	switch {
	case errors.Is(err, mailbox.ErrInvalidUsername):
		s.respondFailure(w, "Email can contain only letters and numbers. No symbols or spaces!")
		return
	case errors.Is(err, mailbox.ErrEmailTaken):
		suggested := s.mail.SuggestEmail(strings.ToLower(strings.TrimSpace(payload.Username)))
		s.respondJSON(w, http.StatusOK, map[string]any{
			"ok":        false,
			"error":     "Email already taken!",
			"suggested": suggested,
		})
		return
	case err != nil:
		s.logger.Error("register", "error", err)
		s.respondError(w, http.StatusInternalServerError, "unable to register")
		return
	}
	s.respondOK(w, map[string]any{"email": user.Email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	addMode := r.URL.Query().Get("add") == "1"

	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	user, err := s.mail.Authenticate(r.Context(), payload.Email, payload.Password)
	switch {
	case errors.Is(err, mailbox.ErrUserNotFound):
		s.respondFailure(w, "User '"+s.mail.Qualify(payload.Email)+"' not found!")
		return
	case errors.Is(err, mailbox.ErrWrongPassword):
		s.respondFailure(w, "Incorrect password! Try again.")
		return
	case err != nil:
		s.logger.Error("login", "error", err)
		s.respondError(w, http.StatusInternalServerError, "unable to log in")
		return
	}

	state := s.loadSession(r)
	state.Login(user.Email, addMode)
	csrf, err := guard.EnsureCSRF(&state)
	if err != nil {
		s.logger.Error("csrf token", "error", err)
		s.respondError(w, http.StatusInternalServerError, "unable to create session")
		return
	}
	s.saveSession(w, state)
	s.respondOK(w, map[string]any{
		"email":    state.Active,
		"accounts": state.Accounts,
		"csrf":     csrf,
		"name":     user.DisplayName(),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	csrf, err := guard.EnsureCSRF(&state)
	if err != nil {
		s.logger.Error("csrf token", "error", err)
		s.respondError(w, http.StatusInternalServerError, "unable to refresh session")
		return
	}

	user, _, err := s.mail.Lookup(r.Context(), state.Active)
	if err != nil {
		s.logger.Error("lookup active user", "error", err)
		s.respondError(w, http.StatusInternalServerError, "something went wrong, try again")
		return
	}

	others := make([]map[string]string, 0, len(state.Accounts))
	for _, account := range state.Accounts {
		if account == state.Active {
			continue
		}
		entry := map[string]string{"email": account}
		if other, found, err := s.mail.Lookup(r.Context(), account); err == nil && found {
			entry["name"] = other.DisplayName()
		}
		others = append(others, entry)
	}

	s.saveSession(w, state)
	s.respondOK(w, map[string]any{
		"email":          state.Active,
		"accounts":       state.Accounts,
		"other_accounts": others,
		"csrf":           csrf,
		"name":           user.DisplayName(),
		"first_name":     user.FirstName,
		"last_name":      user.LastName,
		"phone":          user.Phone,
		"profile_pic":    user.ProfilePic,
	})
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	if !s.requireCSRF(w, r, &state) {
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := state.SwitchActive(payload.Email); err != nil {
		// The old account stays active; the caller must see the failure.
		s.saveSession(w, state)
		s.respondFailure(w, "Account "+payload.Email+" is not logged in to this session")
		return
	}
	s.saveSession(w, state)
	s.respondOK(w, map[string]any{"email": state.Active, "accounts": state.Accounts})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	s.clearSession(w)
	s.respondOK(w, nil)
}

func (s *Server) handleLogoutOne(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	if !s.requireCSRF(w, r, &state) {
		return
	}
	email := strings.TrimPrefix(r.URL.Path, "/api/logout/")
	if email == "" {
		http.NotFound(w, r)
		return
	}
	state.LogoutOne(email)
	if !state.Authenticated() {
		s.clearSession(w)
		s.respondOK(w, map[string]any{"email": "", "accounts": []string{}})
		return
	}
	s.saveSession(w, state)
	s.respondOK(w, map[string]any{"email": state.Active, "accounts": state.Accounts})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	if !s.requireCSRF(w, r, &state) {
		return
	}
	var payload struct {
		Name      string `json:"name"`
		Phone     string `json:"phone"`
		Password  string `json:"password"`
		RemovePic bool   `json:"remove_pic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.mail.UpdateProfile(r.Context(), state.Active, payload.Name, payload.Phone, payload.Password, payload.RemovePic); err != nil {
		s.logger.Error("update profile", "error", err)
		s.respondError(w, http.StatusInternalServerError, "something went wrong, try again")
		return
	}
	s.saveSession(w, state)
	s.respondOK(w, nil)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	if !s.requireCSRF(w, r, &state) {
		return
	}
	account := state.Active
	if err := s.mail.DeleteAccount(r.Context(), account); err != nil {
		s.logger.Error("delete account", "error", err)
		s.respondError(w, http.StatusInternalServerError, "something went wrong, try again")
		return
	}
	state.LogoutOne(account)
	if !state.Authenticated() {
		s.clearSession(w)
	} else {
		s.saveSession(w, state)
	}
	s.respondOK(w, map[string]any{"deleted": account, "email": state.Active, "accounts": state.Accounts})
}
