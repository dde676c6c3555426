package forwardauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fortrancon/forwardauth/internal/jwt"
	"github.com/fortrancon/forwardauth/internal/redirectpolicy"
	"github.com/fortrancon/forwardauth/internal/returnurl"
	"github.com/fortrancon/forwardauth/internal/revocation"
	"github.com/fortrancon/forwardauth/internal/telemetry"
)

// Server represents the HTTP server of the gateway
type Server struct {
	config         *Config
	jwtManager     jwt.Handler
	cookieManager  CookieHandler
	identitySource IdentitySource
	revocations    revocation.Store
	metrics        *telemetry.Metrics
	logger         *slog.Logger

	sessions   *SessionResolver
	builder    *returnurl.Builder
	policy     *redirectpolicy.Policy
	loginRoute string
	httpServer *http.Server
}

// ServerOption customizes optional collaborators of the Server
type ServerOption func(*Server)

// WithRevocationStore sets the store consulted on validation and written on logout
func WithRevocationStore(store revocation.Store) ServerOption {
	return func(s *Server) {
		s.revocations = store
	}
}

// WithIdentitySource sets where the login route reads the caller's identity from
func WithIdentitySource(source IdentitySource) ServerOption {
	return func(s *Server) {
		s.identitySource = source
	}
}

// WithMetrics sets the metrics collectors
func WithMetrics(metrics *telemetry.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// NewServer creates a new server instance.
// Without options it uses no revocation store, the configured login identity
// header and a private metrics registry.
func NewServer(config *Config, jwtManager jwt.Handler, cookieManager CookieHandler, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	builder, err := returnurl.NewBuilder(config.BaseURL, config.LoginPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create return URL builder: %w", err)
	}

	policy, err := redirectpolicy.NewPolicy(config.BaseURL.String(), config.TrustedDomains)
	if err != nil {
		return nil, fmt.Errorf("failed to create redirect policy: %w", err)
	}

	loginRoute := config.BaseURL.ResolveReference(&url.URL{Path: config.LoginPath}).Path

	s := &Server{
		config:        config,
		jwtManager:    jwtManager,
		cookieManager: cookieManager,
		logger:        logger,
		builder:       builder,
		policy:        policy,
		loginRoute:    loginRoute,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.revocations == nil {
		s.revocations = revocation.NoopStore{}
	}
	if s.identitySource == nil {
		s.identitySource = NewHeaderIdentitySource(config.LoginIdentityHeader)
	}
	if s.metrics == nil {
		s.metrics = telemetry.NewMetrics()
	}
	s.sessions = NewSessionResolver(jwtManager, cookieManager, s.revocations, logger)

	return s, nil
}

// LoginRoute returns the path the login route is served on
func (s *Server) LoginRoute() string {
	return s.loginRoute
}

// Handler builds the router with all routes and middleware
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(s.requestLogger)
	router.Use(middleware.Recoverer)

	router.Get(RouteValidate, s.handleValidate)
	router.Head(RouteValidate, s.handleValidate)
	router.Get(s.loginRoute, s.handleLogin)

	// Only logout changes state on behalf of an existing session
	router.Group(func(r chi.Router) {
		r.Use(s.cookieManager.CSRFProtect())
		r.Post(RouteLogout, s.handleLogout)
		r.Get(RouteLogoutCSRF, s.handleLogoutCSRF)
	})

	router.Get(RouteHealth, s.handleHealth)
	router.Method(http.MethodGet, RouteMetrics, s.metrics.Handler())

	return otelhttp.NewHandler(router, "forwardauth")
}

// requestLogger echoes the request ID and logs each request at debug level
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set(HeaderRequestID, requestID)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", requestID)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting forwardauth service",
		"port", s.config.Port,
		"base_url", s.config.BaseURL.String(),
		"login_route", s.LoginRoute(),
		"login_url", s.builder.LoginURL(),
		"trusted_domains", s.policy.TrustedDomains().Strings())
	for _, p := range s.policy.TrustedDomains().Patterns() {
		s.logger.Debug("Trusted redirect domain", "pattern", p.Value, "kind", p.Kind.String())
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Received shutdown signal")

	// Create a deadline to wait for
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	// Doesn't block if no connections, but will otherwise wait
	// until the timeout deadline
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Handler methods are implemented in separate files:
// - serverroute_validate.go
// - serverroute_login.go
// - serverroute_logout.go
// - serverroute_health.go
