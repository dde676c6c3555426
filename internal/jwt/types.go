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

package jwt

import (
	"errors"
	"time"

	jwt5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidClaims    = errors.New("invalid token claims")
)

// Claims represents the session token claims.
// IssuedAt marks the start of the session and survives refreshes.
type Claims struct {
	jwt5.RegisteredClaims
	Identity string `json:"identity,omitempty"`
}

// NewClaims builds the claims of a session token. A zero sessionStart
// starts a new session now.
func NewClaims(identity string, issuer string, audience string, expiration time.Duration, sessionStart time.Time) *Claims {
	now := time.Now().UTC()
	if sessionStart.IsZero() {
		sessionStart = now
	}
	return &Claims{
		RegisteredClaims: jwt5.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt5.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt5.NewNumericDate(sessionStart),
			NotBefore: jwt5.NewNumericDate(now),
			Issuer:    issuer,
			Audience:  []string{audience},
			Subject:   identity,
		},
		Identity: identity,
	}
}
