package forwardauth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/fortrancon/forwardauth/internal/returnurl"
	"github.com/fortrancon/forwardauth/internal/stringutil"
	"github.com/fortrancon/forwardauth/internal/telemetry"
)

// handleLogin completes a login: the authenticator in front of this route has
// already verified the caller, so this mints the session and sends the
// browser back to where it came from.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identitySource.Identify(r)
	if err != nil {
		if errors.Is(err, ErrIdentityUnavailable) {
			s.logger.Error("Identity provider unavailable", "error", err)
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}
		s.logger.Info("Login without identity", "error", err, "source", s.identitySource.Name())
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := s.jwtManager.GenerateToken(identity)
	if err != nil {
		s.logger.Error("Failed to generate token", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.cookieManager.SetCookie(w, token)
	s.metrics.RecordLogin(s.identitySource.Name())

	if s.logger.Enabled(r.Context(), slog.LevelDebug) {
		s.logger.Debug("Login completed", "identity", stringutil.SanitizeIdentity(identity), "source", s.identitySource.Name())
	}

	target := s.postLoginTarget(returnurl.ParseNext(r.URL.RawQuery))
	http.Redirect(w, r, target, s.config.RedirectStatus)
}

// postLoginTarget applies the redirect policy to next. Denied and empty
// targets resolve to the base URL; allowed relative targets are resolved
// against it.
func (s *Server) postLoginTarget(next string) string {
	root := s.config.BaseURL.String()

	if next == "" {
		s.metrics.RecordRedirectDecision(telemetry.DecisionEmpty)
		return root
	}

	if !s.policy.Allows(next) {
		s.logger.Warn("Post-login redirect denied", "next", next)
		s.metrics.RecordRedirectDecision(telemetry.DecisionDeny)
		return root
	}

	target, err := url.Parse(next)
	if err != nil {
		s.metrics.RecordRedirectDecision(telemetry.DecisionDeny)
		return root
	}
	s.metrics.RecordRedirectDecision(telemetry.DecisionAllow)
	if target.IsAbs() {
		return next
	}
	return s.config.BaseURL.ResolveReference(target).String()
}
