// Package revocation records session token IDs that were logged out before
// they expired, so that every gateway replica rejects them.
package revocation

import (
	"context"
	"errors"
	"time"
)

// DefaultKeyPrefix namespaces revoked token IDs in Redis
const DefaultKeyPrefix = "forwardauth:revoked:"

// ErrEmptyTokenID is returned when a token carries no ID
var ErrEmptyTokenID = errors.New("token ID cannot be empty")

// Store tracks revoked session tokens.
// Interface to facilitate unit-testing.
type Store interface {
	// Revoke marks the token ID as revoked until the token would have expired
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	// IsRevoked reports whether the token ID was revoked
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	// Ping checks the backend is reachable
	Ping(ctx context.Context) error
	Close() error
}

// NoopStore is used when no revocation backend is configured.
// Logout then only clears the cookie.
type NoopStore struct{}

// Revoke does nothing
func (NoopStore) Revoke(context.Context, string, time.Time) error { return nil }

// IsRevoked always reports false
func (NoopStore) IsRevoked(context.Context, string) (bool, error) { return false, nil }

// Ping always succeeds
func (NoopStore) Ping(context.Context) error { return nil }

// Close does nothing
func (NoopStore) Close() error { return nil }
