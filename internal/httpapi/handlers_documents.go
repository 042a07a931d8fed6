package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ragforge/internal/apperr"
	"ragforge/internal/objectstore"
	"ragforge/internal/persistence"
)

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	ctx := r.Context()

	maxBytes := s.Ingestion.MaxDocumentBytes
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, apperr.Validationf("invalid multipart upload: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, apperr.Validationf("missing file field: %v", err))
		return
	}
	defer file.Close()

	version, err := s.resolveBuildingVersion(ctx, tenantID)
	if err != nil {
		respondError(w, err)
		return
	}

	docID := uuid.NewString()
	storagePath := tenantID + "/" + docID + ".pdf"
	if _, err := s.Object.Put(ctx, storagePath, file, objectstore.PutOptions{ContentType: "application/pdf"}); err != nil {
		respondError(w, apperr.Internalf(err, "store uploaded document"))
		return
	}

	now := time.Now()
	doc, err := s.Meta.CreateDocument(ctx, persistence.Document{
		ID: docID, TenantID: tenantID, Filename: header.Filename, StoragePath: storagePath,
		ByteSize: header.Size, Status: persistence.DocPending, Version: version,
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	if err := s.Pipeline.Submit(ctx, doc.ID); err != nil {
		respondError(w, apperr.Internalf(err, "enqueue document for ingestion"))
		return
	}

	respondJSON(w, http.StatusAccepted, doc)
}

// resolveBuildingVersion returns the tenant's currently-building version, or
// opens a new one if every existing version has already progressed past
// VersionBuilding (SPEC_FULL.md §4.7).
func (s *Server) resolveBuildingVersion(ctx context.Context, tenantID string) (int, error) {
	versions, err := s.Meta.ListVersions(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	for _, v := range versions {
		if v.Status == persistence.VersionBuilding {
			return v.Version, nil
		}
	}
	bv, err := s.Versions.OpenVersion(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return bv.Version, nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.Meta.ListDocuments(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Meta.GetDocument(r.Context(), r.PathValue("docID"))
	if err != nil {
		respondError(w, err)
		return
	}
	progress, ok, err := s.Bus.GetProgress(r.Context(), doc.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	resp := map[string]any{"document": doc}
	if ok {
		resp["live_progress"] = progress
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("docID")
	doc, err := s.Meta.GetDocument(r.Context(), docID)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.Object.Delete(r.Context(), doc.StoragePath); err != nil {
		respondError(w, apperr.Internalf(err, "delete stored document file"))
		return
	}
	if err := s.Meta.DeleteDocument(r.Context(), docID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
