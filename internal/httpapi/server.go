// Package httpapi exposes the platform's admin and public chat surfaces over
// HTTP, using the Go 1.22+ net/http.ServeMux method+path pattern routing.
package httpapi

import (
	"net/http"

	"ragforge/internal/bus"
	"ragforge/internal/config"
	"ragforge/internal/objectstore"
	"ragforge/internal/persistence"
	"ragforge/internal/persistence/databases"
	"ragforge/internal/pipeline"
	"ragforge/internal/streamer"
	"ragforge/internal/versionmgr"
)

// Server wires the HTTP surface to the platform's services. Handlers never
// talk to a store directly when a service method exists for the operation;
// Server is deliberately thin.
type Server struct {
	Meta     persistence.MetaStore
	Vector   databases.VectorStore
	Object   objectstore.ObjectStore
	Versions *versionmgr.Manager
	Pipeline *pipeline.Orchestrator
	Streamer *streamer.Streamer
	Bus      bus.Bus

	Admin     config.AdminConfig
	Ingestion config.IngestionConfig
	Session   config.SessionConfig

	mux *http.ServeMux
}

// NewServer builds a Server and registers every route.
func NewServer(s *Server) *Server {
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	// Admin surface: bearer-token protected.
	s.mux.HandleFunc("POST /api/v1/chatbots", s.withAdmin(s.handleCreateChatbot))
	s.mux.HandleFunc("GET /api/v1/chatbots", s.withAdmin(s.handleListChatbots))
	s.mux.HandleFunc("GET /api/v1/chatbots/{id}", s.withAdmin(s.handleGetChatbot))
	s.mux.HandleFunc("PATCH /api/v1/chatbots/{id}", s.withAdmin(s.handleUpdateChatbot))
	s.mux.HandleFunc("DELETE /api/v1/chatbots/{id}", s.withAdmin(s.handleDeleteChatbot))

	s.mux.HandleFunc("POST /api/v1/chatbots/{id}/documents", s.withAdmin(s.handleUploadDocument))
	s.mux.HandleFunc("GET /api/v1/chatbots/{id}/documents", s.withAdmin(s.handleListDocuments))
	s.mux.HandleFunc("GET /api/v1/chatbots/{id}/documents/{docID}", s.withAdmin(s.handleGetDocument))
	s.mux.HandleFunc("DELETE /api/v1/chatbots/{id}/documents/{docID}", s.withAdmin(s.handleDeleteDocument))

	s.mux.HandleFunc("GET /api/v1/chatbots/{id}/versions", s.withAdmin(s.handleListVersions))
	s.mux.HandleFunc("POST /api/v1/chatbots/{id}/versions/{version}/activate", s.withAdmin(s.handleActivateVersion))

	s.mux.HandleFunc("GET /api/v1/chatbots/{id}/stats", s.withAdmin(s.handleStats))

	// Public chat surface.
	s.mux.HandleFunc("GET /api/v1/chat/{accessURL}", s.handleChatbotInfo)
	s.mux.HandleFunc("POST /api/v1/chat/{accessURL}/sessions", s.handleCreateSession)
	s.mux.HandleFunc("POST /api/v1/chat/{accessURL}/sessions/{sessionID}/messages", s.handleSendMessage)
	s.mux.HandleFunc("POST /api/v1/chat/{accessURL}/sessions/{sessionID}/stop", s.handleStopSession)
}
