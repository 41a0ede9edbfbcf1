package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// withAuth wraps a handler with bearer token authentication.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// If no bearer token is configured, skip auth
		if s.cfg.AuthDisabled() {
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.logger.Warn("missing authorization header", "remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		// Expect "Bearer <token>" format
		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			s.logger.Warn("invalid authorization format", "remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.HTTP.BearerToken)) != 1 {
			s.logger.Warn("invalid bearer token", "remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r)
	}
}
