package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	gomail "github.com/emersion/go-message/mail"

	"github.io/infrasutra/bharatmail/internal/feed"
	"github.io/infrasutra/bharatmail/internal/mailbox"
	"github.io/infrasutra/bharatmail/internal/mailtime"
	"github.io/infrasutra/bharatmail/internal/pagination"
	"github.io/infrasutra/bharatmail/internal/session"
)

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	s.serveFeed(w, r, state)
}

// handleRefresh is the polling variant of the feed: same view, but guarded
// by the tight limiter and a CSRF check.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	if !s.requireCSRF(w, r, &state) {
		return
	}
	if !s.allowRate(w, r, state, s.refreshLimiter) {
		return
	}
	s.serveFeed(w, r, state)
}

func (s *Server) serveFeed(w http.ResponseWriter, r *http.Request, state session.State) {
	inbox, sent, drafts, err := s.mail.Folders(r.Context(), state.Active)
	if err != nil {
		s.logger.Error("load folders", "account", state.Active, "error", err)
		s.respondError(w, http.StatusInternalServerError, "something went wrong, try again")
		return
	}
	search := r.URL.Query().Get("search")
	view := feed.Assemble(state.Active, inbox, sent, drafts, search, s.resolver(r), s.now())

	s.saveSession(w, state)
	s.respondOK(w, map[string]any{"feed": view, "email": state.Active, "search": strings.TrimSpace(search)})
}

// resolver adapts the user lookup for feed enhancement, memoizing per
// request so repeated correspondents cost one store read.
func (s *Server) resolver(r *http.Request) feed.Resolver {
	type cached struct {
		user mailbox.User
		ok   bool
	}
	seen := map[string]cached{}
	return func(address string) (mailbox.User, bool) {
		if hit, ok := seen[address]; ok {
			return hit.user, hit.ok
		}
		user, found, err := s.mail.Lookup(r.Context(), address)
		if err != nil {
			s.logger.Warn("resolve address", "address", address, "error", err)
			found = false
		}
		seen[address] = cached{user: user, ok: found}
		return user, found
	}
}

func (s *Server) handleCheckNew(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	if !s.requireCSRF(w, r, &state) {
		return
	}
	if !s.allowRate(w, r, state, s.pollLimiter) {
		return
	}
	newest, count, err := s.mail.CheckNew(r.Context(), state.Active, state.LastCheck)
	if err != nil {
		s.logger.Error("check new mail", "account", state.Active, "error", err)
		s.respondError(w, http.StatusInternalServerError, "something went wrong, try again")
		return
	}
	state.LastCheck = s.now()
	s.saveSession(w, state)
	s.respondOK(w, map[string]any{"count": count, "mails": newest})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
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
		To          string   `json:"to"`
		CC          string   `json:"cc"`
		BCC         string   `json:"bcc"`
		Subject     string   `json:"subject"`
		Message     string   `json:"message"`
		Attachments []string `json:"attachments"`
		ReplyTo     string   `json:"reply_to"`
		Forward     bool     `json:"forward"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id, err := s.mail.Send(r.Context(), mailbox.SendParams{
		Sender:      state.Active,
		Receiver:    payload.To,
		CC:          payload.CC,
		BCC:         payload.BCC,
		Subject:     payload.Subject,
		Message:     payload.Message,
		Attachments: payload.Attachments,
		ReplyTo:     payload.ReplyTo,
		Forward:     payload.Forward,
	})
	switch {
	case errors.Is(err, mailbox.ErrReceiverNotFound):
		s.respondFailure(w, "Receiver "+s.mail.Qualify(payload.To)+" does not exist!")
		return
	case err != nil:
		s.logger.Error("send mail", "error", err)
		s.respondError(w, http.StatusInternalServerError, "unable to send mail")
		return
	}
	s.saveSession(w, state)
	s.respondOK(w, map[string]any{"id": id})
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		if !s.requireCSRF(w, r, &state) {
			return
		}
		var payload struct {
			DraftID     string   `json:"draft_id"`
			Receiver    string   `json:"receiver"`
			Subject     string   `json:"subject"`
			Message     string   `json:"message"`
			Attachments []string `json:"attachments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		receiver := payload.Receiver
		if receiver != "" {
			receiver = s.mail.Qualify(receiver)
		}
		id, err := s.mail.SaveDraft(r.Context(), state.Active, payload.DraftID, mailbox.Mail{
			Receiver:    receiver,
			Subject:     payload.Subject,
			Message:     payload.Message,
			Attachments: payload.Attachments,
		})
		if err != nil {
			s.logger.Error("save draft", "error", err)
			s.respondError(w, http.StatusInternalServerError, "unable to save draft")
			return
		}
		s.saveSession(w, state)
		s.respondOK(w, map[string]any{"draft_id": id, "message": "Draft saved"})
	case http.MethodGet:
		_, _, drafts, err := s.mail.Folders(r.Context(), state.Active)
		if err != nil {
			s.logger.Error("load drafts", "error", err)
			s.respondError(w, http.StatusInternalServerError, "something went wrong, try again")
			return
		}
		s.saveSession(w, state)
		s.respondOK(w, map[string]any{"drafts": drafts})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMail(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/mail/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	mail, err := s.mail.ReadMail(r.Context(), state.Active, id)
	switch {
	case errors.Is(err, mailbox.ErrMailNotFound):
		s.respondFailure(w, "Mail not found.")
		return
	case err != nil:
		s.logger.Error("read mail", "error", err)
		s.respondError(w, http.StatusInternalServerError, "something went wrong, try again")
		return
	}

	if len(parts) == 2 && parts[1] == "raw" {
		raw, err := buildRawMessage(mail)
		if err != nil {
			s.logger.Error("render raw mail", "error", err)
			s.respondError(w, http.StatusInternalServerError, "unable to render mail")
			return
		}
		w.Header().Set("Content-Type", "message/rfc822")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=message-%s.eml", id))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
		return
	}
	if len(parts) > 1 {
		http.NotFound(w, r)
		return
	}
	s.saveSession(w, state)
	s.respondOK(w, map[string]any{"id": id, "mail": mail})
}

func (s *Server) handleDeleteMails(w http.ResponseWriter, r *http.Request) {
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
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	deleted := s.mail.DeleteMails(r.Context(), state.Active, payload.IDs)
	s.saveSession(w, state)
	s.respondOK(w, map[string]any{"deleted_count": deleted})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	entries, err := s.mail.ListUsers(r.Context())
	if err != nil {
		s.logger.Error("list users", "error", err)
		s.respondError(w, http.StatusInternalServerError, "something went wrong, try again")
		return
	}
	params := pagination.FromQuery(r.URL.Query())
	start, end := params.Bounds(len(entries))
	s.saveSession(w, state)
	s.respondOK(w, map[string]any{
		"users": entries[start:end],
		"total": len(entries),
		"page":  params.Page,
		"limit": params.Limit,
	})
}

// buildRawMessage renders a stored mail as an RFC 822 message for download.
func buildRawMessage(m mailbox.Mail) ([]byte, error) {
	var buf bytes.Buffer
	var header gomail.Header
	if at, ok := mailtime.Parse(m.Timestamp); ok {
		header.SetDate(at)
	}
	header.SetAddressList("From", []*gomail.Address{{Address: m.Sender}})
	if m.Receiver != "" {
		header.SetAddressList("To", []*gomail.Address{{Address: m.Receiver}})
	}
	if m.CC != "" {
		header.Set("Cc", m.CC)
	}
	header.SetSubject(m.Subject)
	header.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	writer, err := gomail.CreateSingleInlineWriter(&buf, header)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(writer, m.Message); err != nil {
		writer.Close()
		return nil, fmt.Errorf("write message body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish message: %w", err)
	}
	return buf.Bytes(), nil
}
