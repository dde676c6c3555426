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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCVerifierInterface defines the interface for OIDC token verification
type OIDCVerifierInterface interface {
	// VerifyToken verifies an OIDC token and returns Claims, isFault, error.
	// It may call the provider to refresh the public keySet if not cached
	VerifyToken(ctx context.Context, tokenString string) (*OIDCClaims, bool, error)

	// Start initializes the OIDC provider and verifier
	// This allows deferring HTTP calls until the application is ready
	Start(ctx context.Context) error
}

// OIDCVerifier handles verification of OIDC ID tokens presented at login
type OIDCVerifier struct {
	mu             sync.RWMutex
	verifier       *oidc.IDTokenVerifier
	clientID       string
	issuerURL      string
	logger         *slog.Logger
	timeoutSeconds int // Timeout for OIDC provider initialization
	oidcConfig     *oidc.Config
}

// OIDCClaims represents the claims we extract from an OIDC ID token
type OIDCClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	Username      string `json:"preferred_username"`
	Subject       string `json:"sub"`
}

// Identity picks the identifier asserted to the proxy: a verified email,
// then the preferred username, then the subject
func (c *OIDCClaims) Identity() string {
	if c == nil {
		return ""
	}
	if c.Email != "" && (c.EmailVerified == nil || *c.EmailVerified) {
		return c.Email
	}
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}

// NewOIDCVerifier creates a new OIDC verifier without initializing connections
// The actual initialization is deferred to the Start method
func NewOIDCVerifier(config *Config, logger *slog.Logger) (*OIDCVerifier, error) {
	if config.OIDCIssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}

	if config.OIDCClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}

	logger.Info("Creating OIDC verifier (not initialized)",
		"issuer", config.OIDCIssuerURL,
		"client_id", config.OIDCClientID,
		"timeout_secs", config.OIDCInitTimeoutSecs,
	)

	// The ID token is issued to the authenticator in front of the login
	// route, so its client ID is the expected audience.
	oidcConfig := &oidc.Config{
		ClientID:          config.OIDCClientID,
		SkipClientIDCheck: false,
	}

	return &OIDCVerifier{
		clientID:       config.OIDCClientID,
		issuerURL:      config.OIDCIssuerURL,
		logger:         logger,
		timeoutSeconds: config.OIDCInitTimeoutSecs,
		oidcConfig:     oidcConfig,
	}, nil
}

// Start initializes the OIDC provider and verifier
// This allows deferring HTTP calls until the application is ready
func (v *OIDCVerifier) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.verifier != nil {
		// Already initialized
		return nil
	}

	v.logger.Info("Starting OIDC verifier - initializing provider connection",
		"issuer", v.issuerURL,
		"client_id", v.clientID,
	)

	// Create a context with timeout for OIDC provider initialization
	initCtx, cancel := context.WithTimeout(ctx, time.Duration(v.timeoutSeconds)*time.Second)
	defer cancel()

	provider, err := oidc.NewProvider(initCtx, v.issuerURL)
	if err != nil {
		return fmt.Errorf("failed to initialize OIDC provider: %w", err)
	}

	v.verifier = provider.Verifier(v.oidcConfig)
	v.logger.Info("OIDC token verifier is ready")
	return nil
}

// VerifyToken verifies an OIDC token and returns Claims, isFault, error.
// It may call the provider to refresh the public keySet if not cached
func (v *OIDCVerifier) VerifyToken(ctx context.Context, tokenString string) (*OIDCClaims, bool, error) {
	v.mu.RLock()
	verifier := v.verifier
	v.mu.RUnlock()

	if verifier == nil {
		return nil, true, fmt.Errorf("OIDC verifier is not initialized - call Start() first")
	}

	idToken, err := verifier.Verify(ctx, tokenString)
	if err != nil {
		// Check if this is a discovery document error
		errMsg := err.Error()
		if strings.Contains(errMsg, "failed to get discovery document") ||
			strings.Contains(errMsg, "fetching keys") ||
			errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return nil, true, fmt.Errorf("failed to connect to OIDC provider: %w", err)
		}

		// All other errors are likely token validation errors
		return nil, false, fmt.Errorf("invalid ID token: %w", err)
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, false, fmt.Errorf("failed to parse claims: %w", err)
	}

	v.logger.Debug("Verified OIDC ID token",
		"issuer", idToken.Issuer,
		"subject", idToken.Subject,
		"expiration", idToken.Expiry,
		"has_email", claims.Email != "",
	)

	return &claims, false, nil
}
