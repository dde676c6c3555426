package forwardauth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fortrancon/forwardauth/internal/jwt"
	"github.com/fortrancon/forwardauth/internal/revocation"
	"github.com/fortrancon/forwardauth/internal/stringutil"
)

// Session is what the gateway knows about the caller of one request
type Session struct {
	Authenticated bool
	Identity      string
	// Claims is set whenever a valid, unrevoked token was presented
	Claims *jwt.Claims
}

// SessionResolver answers "is this caller authenticated, and as whom" from
// the session cookie. Every failure resolves to an unauthenticated session.
type SessionResolver struct {
	jwtManager    jwt.Handler
	cookieManager CookieHandler
	revocations   revocation.Store
	logger        *slog.Logger
}

// NewSessionResolver creates a SessionResolver
func NewSessionResolver(jwtManager jwt.Handler, cookieManager CookieHandler, revocations revocation.Store, logger *slog.Logger) *SessionResolver {
	if revocations == nil {
		revocations = revocation.NoopStore{}
	}
	return &SessionResolver{
		jwtManager:    jwtManager,
		cookieManager: cookieManager,
		revocations:   revocations,
		logger:        logger,
	}
}

// Resolve reads and validates the session cookie of r.
// A valid token without an identity is reported as authenticated with an
// empty identity; the caller treats that as a contract violation.
func (s *SessionResolver) Resolve(r *http.Request) Session {
	token, err := s.cookieManager.GetCookie(r)
	if err != nil {
		if !errors.Is(err, ErrNoCookie) {
			s.logger.Info("Unreadable session cookie", "error", err)
		}
		return Session{}
	}

	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		s.logger.Info("Invalid session token", "error", err)
		return Session{}
	}

	if claims.ID != "" {
		revoked, err := s.revocations.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			s.logger.Warn("Revocation check failed, treating session as unauthenticated", "error", err)
			return Session{}
		}
		if revoked {
			s.logger.Info("Revoked session token presented", "token_id", claims.ID)
			return Session{}
		}
	}

	if s.logger.Enabled(r.Context(), slog.LevelDebug) {
		s.logger.Debug("Session resolved", "identity", stringutil.SanitizeIdentity(claims.Identity), "token_id", claims.ID)
	}

	return Session{
		Authenticated: true,
		Identity:      claims.Identity,
		Claims:        claims,
	}
}
