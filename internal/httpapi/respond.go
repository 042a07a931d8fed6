package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"ragforge/internal/apperr"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFromError(err), map[string]any{"error": err.Error()})
}

func statusFromError(err error) int {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.Validation:
			return http.StatusBadRequest
		case apperr.NotFound:
			return http.StatusNotFound
		case apperr.Conflict:
			return http.StatusConflict
		case apperr.Cancelled:
			return http.StatusRequestTimeout
		case apperr.Transient:
			return http.StatusServiceUnavailable
		case apperr.Permanent:
			return http.StatusUnprocessableEntity
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, apperr.Validationf("invalid request body: %v", err))
		return false
	}
	return true
}

// decodeJSONOptional decodes a possibly-empty request body, treating an
// empty body as success (dst left at its zero value) rather than an error.
func decodeJSONOptional(r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return nil
}
