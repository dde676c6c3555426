/*
Copyright (c) 2025 Amazon Web Services

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package forwardauth

import (
	"errors"
	"net/http"
	"time"

	"github.com/fortrancon/forwardauth/internal/jwt"
	"github.com/fortrancon/forwardauth/internal/returnurl"
	"github.com/fortrancon/forwardauth/internal/stringutil"
	"github.com/fortrancon/forwardauth/internal/telemetry"
)

// Token refresh statuses
const (
	refreshStatusSuccess = "success"
	refreshStatusError   = "error"
)

// handleValidate answers the reverse proxy's forward-auth subrequest
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	session := s.sessions.Resolve(r)
	forwarded := returnurl.ContextFromRequest(r, s.config.BaseURL.Host)

	result, err := s.builder.Build(forwarded, session.Authenticated, session.Identity)
	if err != nil {
		if errors.Is(err, returnurl.ErrMissingIdentity) {
			tokenID := ""
			if session.Claims != nil {
				tokenID = session.Claims.ID
			}
			s.logger.Error("Authenticated session carries no identity", "token_id", tokenID)
		} else {
			s.logger.Error("Failed to build validation result", "error", err)
		}
		s.metrics.RecordValidation(telemetry.OutcomeError, time.Since(start))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	switch res := result.(type) {
	case returnurl.Authenticated:
		s.refreshSession(w, session.Claims)
		w.Header().Set(s.config.IdentityHeader, res.Identity)
		w.WriteHeader(http.StatusOK)
		s.metrics.RecordValidation(telemetry.OutcomeAuthenticated, time.Since(start))

	case returnurl.LoginRedirect:
		s.logger.Debug("Redirecting unauthenticated request to login", "location", res.URL)
		http.Redirect(w, r, res.URL, s.config.RedirectStatus)
		s.metrics.RecordValidation(telemetry.OutcomeLoginRedirect, time.Since(start))

	default:
		s.logger.Error("Unexpected validation result", "result", result)
		s.metrics.RecordValidation(telemetry.OutcomeError, time.Since(start))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// refreshSession reissues the session cookie when the token is close to
// expiry. A failed refresh keeps the current token.
func (s *Server) refreshSession(w http.ResponseWriter, claims *jwt.Claims) {
	if claims == nil || !s.jwtManager.ShouldRefreshToken(claims) {
		return
	}

	newToken, err := s.jwtManager.RefreshToken(claims)
	if err != nil {
		s.logger.Warn("Failed to refresh token", "error", err, "token_id", claims.ID)
		s.metrics.RecordTokenRefresh(refreshStatusError)
		return
	}

	s.cookieManager.SetCookie(w, newToken)
	s.metrics.RecordTokenRefresh(refreshStatusSuccess)
	s.logger.Debug("Token refreshed successfully", "identity", stringutil.SanitizeIdentity(claims.Identity))
}
