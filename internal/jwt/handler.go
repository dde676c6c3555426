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

// Package jwt issues and validates the session tokens carried in the
// gateway's cookie. Signing is pluggable: HMAC for single-replica setups and
// AWS KMS envelope signing (see internal/aws) when replicas share no secret.
package jwt

import (
	"errors"
	"time"
)

// Handler combines signing and token lifecycle management
type Handler interface {
	GenerateToken(identity string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	RefreshToken(claims *Claims) (string, error)
	ShouldRefreshToken(claims *Claims) bool
}

// Manager implements Handler with an embedded signer
type Manager struct {
	signer         Signer
	enableRefresh  bool
	refreshWindow  time.Duration
	refreshHorizon time.Duration
}

// NewManager creates a new Manager
func NewManager(signer Signer, enableRefresh bool, refreshWindow time.Duration, refreshHorizon time.Duration) *Manager {
	return &Manager{
		signer:         signer,
		enableRefresh:  enableRefresh,
		refreshWindow:  refreshWindow,
		refreshHorizon: refreshHorizon,
	}
}

// GenerateToken starts a new session for the identity
func (m *Manager) GenerateToken(identity string) (string, error) {
	if identity == "" {
		return "", errors.New("identity cannot be empty")
	}
	return m.signer.GenerateToken(identity, time.Time{})
}

// ValidateToken delegates to the signer
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	return m.signer.ValidateToken(tokenString)
}

// RefreshToken issues a new token for the same identity and session start
func (m *Manager) RefreshToken(claims *Claims) (string, error) {
	if claims == nil {
		return "", errors.New("claims cannot be nil")
	}
	if claims.Identity == "" {
		return "", ErrInvalidClaims
	}

	var sessionStart time.Time
	if claims.IssuedAt != nil {
		sessionStart = claims.IssuedAt.Time
	}
	return m.signer.GenerateToken(claims.Identity, sessionStart)
}

// ShouldRefreshToken reports whether the token is inside the refresh window
// and the session has not outlived the refresh horizon
func (m *Manager) ShouldRefreshToken(claims *Claims) bool {
	if !m.enableRefresh {
		return false
	}

	if claims == nil || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return false
	}

	now := time.Now().UTC()
	remainingTime := claims.ExpiresAt.Time.Sub(now)

	if remainingTime <= 0 {
		return false
	}

	if remainingTime > m.refreshWindow {
		return false
	}

	sessionAge := now.Sub(claims.IssuedAt.Time)
	return sessionAge < m.refreshHorizon
}
