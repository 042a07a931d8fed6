package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// withAdmin requires a "Bearer <token>" Authorization header matching the
// configured admin API token. There is no session or cookie-based admin
// auth: every admin request is a single bearer-token check.
func (s *Server) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Admin.APIToken)) != 1 {
			respondJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing or invalid admin token"})
			return
		}
		next(w, r)
	}
}
