package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"ragforge/internal/apperr"
	"ragforge/internal/persistence"
	"ragforge/internal/streamer"
)

const defaultSessionTTL = 30 * time.Minute

// sessionTTL returns the configured session TTL, falling back to the
// platform default when unset.
func (s *Server) sessionTTL() time.Duration {
	if s.Session.TTLMinutes > 0 {
		return time.Duration(s.Session.TTLMinutes) * time.Minute
	}
	return defaultSessionTTL
}

func (s *Server) handleChatbotInfo(w http.ResponseWriter, r *http.Request) {
	t, err := s.Meta.GetTenantBySlug(r.Context(), r.PathValue("accessURL"))
	if err != nil {
		respondError(w, err)
		return
	}
	if t.Status != persistence.TenantActive {
		respondError(w, apperr.NotFoundf("chatbot is not active"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"name":     t.Name,
		"greeting": t.Persona.Greeting,
		"tone":     t.Persona.Tone,
		"language": t.Persona.Language,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.Meta.GetTenantBySlug(ctx, r.PathValue("accessURL"))
	if err != nil {
		respondError(w, err)
		return
	}
	if t.Status != persistence.TenantActive {
		respondError(w, apperr.NotFoundf("chatbot is not active"))
		return
	}

	var req struct {
		InitialMessage string `json:"initial_message"`
	}
	_ = decodeJSONOptional(r, &req)

	now := time.Now()
	session, err := s.Meta.CreateSession(ctx, persistence.Session{
		ID: uuid.NewString(), TenantID: t.ID, CreatedAt: now, ExpiresAt: now.Add(s.sessionTTL()),
	})
	if err != nil {
		respondError(w, err)
		return
	}

	if req.InitialMessage == "" {
		respondJSON(w, http.StatusCreated, map[string]any{
			"session_id": session.ID, "expires_at": session.ExpiresAt,
		})
		return
	}

	events := make(chan streamer.Event, 16)
	go func() {
		_ = s.Streamer.Respond(ctx, t, session, req.InitialMessage, events)
	}()
	streamSSE(w, r, events)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.Meta.GetTenantBySlug(ctx, r.PathValue("accessURL"))
	if err != nil {
		respondError(w, err)
		return
	}
	session, err := s.Meta.GetSession(ctx, r.PathValue("sessionID"))
	if err != nil {
		respondError(w, err)
		return
	}
	if session.TenantID != t.ID {
		respondError(w, apperr.NotFoundf("session not found for this chatbot"))
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Message == "" {
		respondError(w, apperr.Validationf("message is required"))
		return
	}

	events := make(chan streamer.Event, 16)
	go func() {
		_ = s.Streamer.Respond(ctx, t, session, req.Message, events)
	}()
	streamSSE(w, r, events)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Bus.RequestCancel(r.Context(), r.PathValue("sessionID")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
