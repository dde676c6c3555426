package forwardauth

import (
	"context"
	"net/http"
	"time"

	"github.com/fortrancon/forwardauth/internal/jwt"
	"github.com/fortrancon/forwardauth/internal/revocation"
)

// MockJWTHandler implements the jwt.Handler interface for testing
type MockJWTHandler struct {
	GenerateTokenFunc      func(identity string) (string, error)
	ValidateTokenFunc      func(tokenString string) (*jwt.Claims, error)
	RefreshTokenFunc       func(claims *jwt.Claims) (string, error)
	ShouldRefreshTokenFunc func(claims *jwt.Claims) bool
}

// Ensure MockJWTHandler implements the jwt.Handler interface
var _ jwt.Handler = (*MockJWTHandler)(nil)

// GenerateToken calls the mock implementation
func (m *MockJWTHandler) GenerateToken(identity string) (string, error) {
	if m.GenerateTokenFunc != nil {
		return m.GenerateTokenFunc(identity)
	}
	return "mock-token", nil
}

// ValidateToken calls the mock implementation
func (m *MockJWTHandler) ValidateToken(tokenString string) (*jwt.Claims, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(tokenString)
	}
	return &jwt.Claims{Identity: "mock-user"}, nil
}

// RefreshToken calls the mock implementation
func (m *MockJWTHandler) RefreshToken(claims *jwt.Claims) (string, error) {
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(claims)
	}
	return "refreshed-mock-token", nil
}

// ShouldRefreshToken calls the mock implementation
func (m *MockJWTHandler) ShouldRefreshToken(claims *jwt.Claims) bool {
	if m.ShouldRefreshTokenFunc != nil {
		return m.ShouldRefreshTokenFunc(claims)
	}
	return false
}

// MockCookieHandler implements the CookieHandler interface for testing
type MockCookieHandler struct {
	SetCookieFunc         func(w http.ResponseWriter, token string)
	GetCookieFunc         func(r *http.Request) (string, error)
	ClearCookieFunc       func(w http.ResponseWriter)
	CSRFProtectFunc       func() func(http.Handler) http.Handler
	GenerateCSRFTokenFunc func(r *http.Request) string
}

// Ensure MockCookieHandler implements the CookieHandler interface
var _ CookieHandler = (*MockCookieHandler)(nil)

// SetCookie calls the mock implementation
func (m *MockCookieHandler) SetCookie(w http.ResponseWriter, token string) {
	if m.SetCookieFunc != nil {
		m.SetCookieFunc(w, token)
	}
}

// GetCookie calls the mock implementation
func (m *MockCookieHandler) GetCookie(r *http.Request) (string, error) {
	if m.GetCookieFunc != nil {
		return m.GetCookieFunc(r)
	}
	return "", ErrNoCookie
}

// ClearCookie calls the mock implementation
func (m *MockCookieHandler) ClearCookie(w http.ResponseWriter) {
	if m.ClearCookieFunc != nil {
		m.ClearCookieFunc(w)
	}
}

// CSRFProtect calls the mock implementation
func (m *MockCookieHandler) CSRFProtect() func(http.Handler) http.Handler {
	if m.CSRFProtectFunc != nil {
		return m.CSRFProtectFunc()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
		})
	}
}

// GenerateCSRFToken calls the mock implementation
func (m *MockCookieHandler) GenerateCSRFToken(r *http.Request) string {
	if m.GenerateCSRFTokenFunc != nil {
		return m.GenerateCSRFTokenFunc(r)
	}
	return "mock-csrf-token"
}

// MockStore implements the revocation.Store interface for testing
type MockStore struct {
	RevokeFunc    func(ctx context.Context, tokenID string, until time.Time) error
	IsRevokedFunc func(ctx context.Context, tokenID string) (bool, error)
	PingFunc      func(ctx context.Context) error
}

// Ensure MockStore implements the revocation.Store interface
var _ revocation.Store = (*MockStore)(nil)

// Revoke calls the mock implementation
func (m *MockStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, tokenID, until)
	}
	return nil
}

// IsRevoked calls the mock implementation
func (m *MockStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if m.IsRevokedFunc != nil {
		return m.IsRevokedFunc(ctx, tokenID)
	}
	return false, nil
}

// Ping calls the mock implementation
func (m *MockStore) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Close is a no-op
func (m *MockStore) Close() error {
	return nil
}

// MockOIDCVerifier implements the OIDCVerifierInterface for testing
type MockOIDCVerifier struct {
	VerifyTokenFunc func(ctx context.Context, tokenString string) (*OIDCClaims, bool, error)
	StartFunc       func(ctx context.Context) error
}

// Ensure MockOIDCVerifier implements the OIDCVerifierInterface
var _ OIDCVerifierInterface = (*MockOIDCVerifier)(nil)

// VerifyToken calls the mock implementation
func (m *MockOIDCVerifier) VerifyToken(ctx context.Context, tokenString string) (*OIDCClaims, bool, error) {
	if m.VerifyTokenFunc != nil {
		return m.VerifyTokenFunc(ctx, tokenString)
	}
	return &OIDCClaims{Subject: "mock-subject"}, false, nil
}

// Start calls the mock implementation
func (m *MockOIDCVerifier) Start(ctx context.Context) error {
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return nil
}
