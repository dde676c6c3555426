package forwardauth

import (
	"encoding/json"
	"net/http"

	"github.com/fortrancon/forwardauth/internal/stringutil"
)

// handleLogout revokes the caller's session token and clears the cookie.
// The cookie is cleared even when revocation fails so the browser session
// ends either way.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := s.cookieManager.GetCookie(r)
	if err == nil {
		claims, err := s.jwtManager.ValidateToken(token)
		if err == nil && claims.ID != "" && claims.ExpiresAt != nil {
			if err := s.revocations.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
				s.logger.Error("Failed to revoke session token", "error", err, "token_id", claims.ID)
				s.cookieManager.ClearCookie(w)
				http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
				return
			}
			s.logger.Debug("Session token revoked", "identity", stringutil.SanitizeIdentity(claims.Identity), "token_id", claims.ID)
		}
	}

	s.cookieManager.ClearCookie(w)
	s.metrics.RecordLogout()
	w.WriteHeader(http.StatusNoContent)
}

// handleLogoutCSRF hands out the CSRF token the logout form must submit
func (s *Server) handleLogoutCSRF(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"csrf_token": s.cookieManager.GenerateCSRFToken(r),
	}); err != nil {
		s.logger.Error("Failed to encode CSRF response", "error", err)
	}
}
