package forwardauth

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortrancon/forwardauth/internal/redirectpolicy"
	"github.com/fortrancon/forwardauth/internal/telemetry"
)

const testBaseURL = "https://indico.example.org/"

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	baseURL, err := url.Parse(testBaseURL)
	require.NoError(t, err)

	config := createDefaultConfig()
	config.Port = 0
	config.ShutdownTimeout = 5 * time.Second
	config.BaseURL = baseURL
	trusted, err := redirectpolicy.NewTrustedDomainSet(".example.org")
	require.NoError(t, err)
	config.TrustedDomains = trusted
	config.JWTSigningKey = testSigningKey
	config.CSRFAuthKey = testCSRFKey
	config.CSRFTrustedOrigins = []string{baseURL.Host}
	return config
}

func newTestServer(t *testing.T, jwtHandler *MockJWTHandler, cookies *MockCookieHandler, opts ...ServerOption) *Server {
	t.Helper()
	server, err := NewServer(newTestConfig(t), jwtHandler, cookies, discardLogger(), opts...)
	require.NoError(t, err)
	return server
}

// counterValue reads one labelled sample from the metrics registry
func counterValue(t *testing.T, metrics *telemetry.Metrics, name string, labelValue string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if labelValue == "" && len(m.GetLabel()) == 0 {
				return m.GetCounter().GetValue()
			}
			for _, label := range m.GetLabel() {
				if label.GetValue() == labelValue {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestNewServerDefaults(t *testing.T) {
	server := newTestServer(t, &MockJWTHandler{}, &MockCookieHandler{})

	assert.Equal(t, "/login", server.LoginRoute())
	assert.IsType(t, &HeaderIdentitySource{}, server.identitySource)
	assert.NotNil(t, server.metrics)
	assert.NotNil(t, server.revocations)
	assert.NotNil(t, server.sessions)
}

func TestNewServerLoginRouteFollowsBasePath(t *testing.T) {
	config := newTestConfig(t)
	config.BaseURL, _ = url.Parse("https://events.example.org/indico/")
	config.LoginPath = "sso/login"

	server, err := NewServer(config, &MockJWTHandler{}, &MockCookieHandler{}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "/indico/sso/login", server.LoginRoute())
}

func TestNewServerRejectsInvalidBaseURL(t *testing.T) {
	config := newTestConfig(t)
	config.BaseURL = &url.URL{Path: "/relative"}

	_, err := NewServer(config, &MockJWTHandler{}, &MockCookieHandler{}, discardLogger())
	assert.Error(t, err)
}

func TestServerHandlerEchoesRequestID(t *testing.T) {
	server := newTestServer(t, &MockJWTHandler{}, &MockCookieHandler{})

	req := httptest.NewRequest(http.MethodGet, RouteHealth, nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))
}

func TestServerHandlerUnknownRoute(t *testing.T) {
	server := newTestServer(t, &MockJWTHandler{}, &MockCookieHandler{})

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerHandlerRecoversFromPanics(t *testing.T) {
	jwtHandler := &MockJWTHandler{
		GenerateTokenFunc: func(string) (string, error) {
			panic("signer exploded")
		},
	}
	server := newTestServer(t, jwtHandler, &MockCookieHandler{})

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.Header.Set(DefaultLoginIdentityHeader, "user@example.org")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServerStartStopsOnContextCancel(t *testing.T) {
	server := newTestServer(t, &MockJWTHandler{}, &MockCookieHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}

func TestServerStartLogsRedirectSettings(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	server, err := NewServer(newTestConfig(t), &MockJWTHandler{}, &MockCookieHandler{}, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, server.Start(ctx))

	output := buf.String()
	assert.Contains(t, output, `"login_route":"/login"`)
	assert.Contains(t, output, `"login_url":"https://indico.example.org/login"`)
	assert.Contains(t, output, `"trusted_domains":[".example.org"]`)
	assert.Contains(t, output, `"msg":"Trusted redirect domain","pattern":".example.org","kind":"wildcard"`)
}
