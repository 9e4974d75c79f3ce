package api

import (
	"encoding/json"
	"net/http"
	"time"
)

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
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
		Subscription json.RawMessage `json:"subscription"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(payload.Subscription) == 0 {
		s.respondError(w, http.StatusBadRequest, "subscription required")
		return
	}
	if err := s.dispatcher.Subscribe(r.Context(), state.Active, payload.Subscription); err != nil {
		s.logger.Error("subscribe", "account", state.Active, "error", err)
		s.respondError(w, http.StatusInternalServerError, "unable to save subscription")
		return
	}
	s.saveSession(w, state)
	s.respondOK(w, map[string]any{"enabled": true})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
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
	if err := s.dispatcher.Unsubscribe(r.Context(), state.Active); err != nil {
		s.logger.Error("unsubscribe", "account", state.Active, "error", err)
		s.respondError(w, http.StatusInternalServerError, "unable to update subscription")
		return
	}
	s.saveSession(w, state)
	s.respondOK(w, map[string]any{"enabled": false})
}

func (s *Server) handleNotifyStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	enabled, subscribed, err := s.dispatcher.Status(r.Context(), state.Active)
	if err != nil {
		s.logger.Error("subscription status", "account", state.Active, "error", err)
		s.respondError(w, http.StatusInternalServerError, "unable to load subscription")
		return
	}
	s.saveSession(w, state)
	s.respondOK(w, map[string]any{"enabled": enabled, "subscribed": subscribed})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	state, ok := s.requireActive(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := s.hub.Subscribe(state.Active)
	defer unsubscribe()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: mail\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}
