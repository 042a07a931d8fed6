package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ragforge/internal/apperr"
	"ragforge/internal/persistence"
)

type chatbotDTO struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Persona       persistence.Persona `json:"persona"`
	AccessURL     string              `json:"access_url"`
	Status        string              `json:"status"`
	ActiveVersion int                 `json:"active_version"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func toChatbotDTO(t persistence.Tenant) chatbotDTO {
	return chatbotDTO{
		ID: t.ID, Name: t.Name, Persona: t.Persona, AccessURL: t.AccessURL,
		Status: string(t.Status), ActiveVersion: t.ActiveVersion,
		CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

func (s *Server) handleCreateChatbot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string              `json:"name"`
		Persona   persistence.Persona `json:"persona"`
		AccessURL string              `json:"access_url"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.AccessURL == "" {
		respondError(w, apperr.Validationf("name and access_url are required"))
		return
	}
	now := time.Now()
	t, err := s.Meta.CreateTenant(r.Context(), persistence.Tenant{
		ID: uuid.NewString(), Name: req.Name, Persona: req.Persona, AccessURL: req.AccessURL,
		Status: persistence.TenantProcessing, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toChatbotDTO(t))
}

func (s *Server) handleListChatbots(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.Meta.ListTenants(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]chatbotDTO, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, toChatbotDTO(t))
	}
	respondJSON(w, http.StatusOK, map[string]any{"chatbots": out})
}

func (s *Server) handleGetChatbot(w http.ResponseWriter, r *http.Request) {
	t, err := s.Meta.GetTenant(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toChatbotDTO(t))
}

func (s *Server) handleUpdateChatbot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    *string              `json:"name"`
		Persona *persistence.Persona `json:"persona"`
		Status  *string              `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.Meta.UpdateTenant(r.Context(), r.PathValue("id"), func(t *persistence.Tenant) error {
		if req.Name != nil {
			t.Name = *req.Name
		}
		if req.Persona != nil {
			t.Persona = *req.Persona
		}
		if req.Status != nil {
			t.Status = persistence.TenantStatus(*req.Status)
		}
		t.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toChatbotDTO(t))
}

func (s *Server) handleDeleteChatbot(w http.ResponseWriter, r *http.Request) {
	if err := s.Meta.DeleteTenant(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.Meta.ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handleActivateVersion(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil {
		respondError(w, apperr.Validationf("invalid version: %v", err))
		return
	}
	archived, err := s.Versions.Activate(r.Context(), tenantID, version)
	if err != nil {
		respondError(w, err)
		return
	}
	if archived != 0 {
		go func(tenantID string, version int) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			_ = s.Versions.Cleanup(ctx, tenantID, version)
		}(tenantID, archived)
	}
	respondJSON(w, http.StatusOK, map[string]any{"activated_version": version, "archived_version": archived})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 30
	}
	stats, err := s.Meta.GetDailyStats(r.Context(), r.PathValue("id"), days)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"stats": stats})
}
