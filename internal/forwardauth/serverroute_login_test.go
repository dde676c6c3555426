package forwardauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fortrancon/forwardauth/internal/telemetry"
)

func loginRequest(rawQuery string, identity string) *http.Request {
	target := "/login"
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if identity != "" {
		req.Header.Set(DefaultLoginIdentityHeader, identity)
	}
	return req
}

func TestHandleLoginRedirectDecisions(t *testing.T) {
	tests := []struct {
		name     string
		rawQuery string
		location string
		decision string
	}{
		{
			name:     "builder output round-trips to trusted host",
			rawQuery: "next=https://chat.example.org/talks/42?tab=schedule",
			location: "https://chat.example.org/talks/42?tab=schedule",
			decision: telemetry.DecisionAllow,
		},
		{
			name:     "own origin",
			rawQuery: "next=https://indico.example.org/event/1",
			location: "https://indico.example.org/event/1",
			decision: telemetry.DecisionAllow,
		},
		{
			name:     "relative target resolved against base",
			rawQuery: "next=/event/1/timetable",
			location: "https://indico.example.org/event/1/timetable",
			decision: telemetry.DecisionAllow,
		},
		{
			name:     "encoded next from another client",
			rawQuery: "foo=bar&next=https%3A%2F%2Fchat.example.org%2Frooms",
			location: "https://chat.example.org/rooms",
			decision: telemetry.DecisionAllow,
		},
		{
			name:     "untrusted host denied",
			rawQuery: "next=https://evil.com/phish",
			location: testBaseURL,
			decision: telemetry.DecisionDeny,
		},
		{
			name:     "suffix without dot boundary denied",
			rawQuery: "next=https://example.org.evil.com/x",
			location: testBaseURL,
			decision: telemetry.DecisionDeny,
		},
		{
			name:     "scheme-relative denied",
			rawQuery: "next=//evil.com/x",
			location: testBaseURL,
			decision: telemetry.DecisionDeny,
		},
		{
			name:     "space-padded scheme-relative denied",
			rawQuery: "next=%20//evil.com/x",
			location: testBaseURL,
			decision: telemetry.DecisionDeny,
		},
		{
			name:     "javascript scheme denied",
			rawQuery: "next=javascript:alert(1)",
			location: testBaseURL,
			decision: telemetry.DecisionDeny,
		},
		{
			name:     "missing next",
			rawQuery: "",
			location: testBaseURL,
			decision: telemetry.DecisionEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := telemetry.NewMetrics()
			var issuedFor, cookieToken string
			jwtHandler := &MockJWTHandler{
				GenerateTokenFunc: func(identity string) (string, error) {
					issuedFor = identity
					return "session-token", nil
				},
			}
			cookies := &MockCookieHandler{
				SetCookieFunc: func(w http.ResponseWriter, token string) { cookieToken = token },
			}
			server := newTestServer(t, jwtHandler, cookies, WithMetrics(metrics))

			w := httptest.NewRecorder()
			server.Handler().ServeHTTP(w, loginRequest(tt.rawQuery, "user@example.org"))

			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, tt.location, w.Header().Get("Location"))
			assert.Equal(t, "user@example.org", issuedFor)
			assert.Equal(t, "session-token", cookieToken)
			assert.Equal(t, float64(1), counterValue(t, metrics, "forwardauth_redirect_decisions_total", tt.decision))
			assert.Equal(t, float64(1), counterValue(t, metrics, "forwardauth_logins_total", IdentitySourceHeader))
		})
	}
}

func TestHandleLoginWithoutIdentity(t *testing.T) {
	generateCalled := false
	jwtHandler := &MockJWTHandler{
		GenerateTokenFunc: func(string) (string, error) {
			generateCalled = true
			return "token", nil
		},
	}
	server := newTestServer(t, jwtHandler, &MockCookieHandler{})

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, loginRequest("next=/x", ""))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, generateCalled)
}

func TestHandleLoginTokenFailure(t *testing.T) {
	jwtHandler := &MockJWTHandler{
		GenerateTokenFunc: func(string) (string, error) {
			return "", errors.New("signing failed")
		},
	}
	server := newTestServer(t, jwtHandler, &MockCookieHandler{})

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, loginRequest("next=/x", "user@example.org"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

func TestHandleLoginWithOIDCIdentitySource(t *testing.T) {
	verified := true
	verifier := &MockOIDCVerifier{
		VerifyTokenFunc: func(ctx context.Context, token string) (*OIDCClaims, bool, error) {
			if token != "good-id-token" {
				return nil, false, errors.New("invalid ID token")
			}
			return &OIDCClaims{Email: "oidc@example.org", EmailVerified: &verified}, false, nil
		},
	}

	var issuedFor string
	jwtHandler := &MockJWTHandler{
		GenerateTokenFunc: func(identity string) (string, error) {
			issuedFor = identity
			return "token", nil
		},
	}
	metrics := telemetry.NewMetrics()
	server := newTestServer(t, jwtHandler, &MockCookieHandler{},
		WithIdentitySource(NewOIDCIdentitySource(verifier)), WithMetrics(metrics))

	// The login identity header is ignored when OIDC is the source
	req := loginRequest("next=/x", "spoofed@example.org")
	req.Header.Set(HeaderAuthorization, "Bearer good-id-token")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "oidc@example.org", issuedFor)
	assert.Equal(t, float64(1), counterValue(t, metrics, "forwardauth_logins_total", IdentitySourceOIDC))

	req = loginRequest("next=/x", "spoofed@example.org")
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleLoginOIDCProviderFault(t *testing.T) {
	verifier := &MockOIDCVerifier{
		VerifyTokenFunc: func(ctx context.Context, token string) (*OIDCClaims, bool, error) {
			return nil, true, errors.New("failed to connect to OIDC provider")
		},
	}
	server := newTestServer(t, &MockJWTHandler{}, &MockCookieHandler{},
		WithIdentitySource(NewOIDCIdentitySource(verifier)))

	req := loginRequest("", "")
	req.Header.Set(HeaderAuthorization, "Bearer id-token")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
