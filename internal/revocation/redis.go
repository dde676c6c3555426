package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps revoked token IDs as expiring Redis keys
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisConfig holds the connection settings of a RedisStore
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisStore connects to Redis with the given settings
func NewRedisStore(cfg RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreFromClient(client, cfg.KeyPrefix)
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(tokenID string) string {
	return s.keyPrefix + tokenID
}

// Revoke stores the token ID until the given expiry. Tokens that already
// expired are not stored.
func (s *RedisStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return ErrEmptyTokenID
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.key(tokenID), until.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token %s: %w", tokenID, err)
	}
	return nil
}

// IsRevoked reports whether the token ID is present
func (s *RedisStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, ErrEmptyTokenID
	}
	n, err := s.client.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation of token %s: %w", tokenID, err)
	}
	return n > 0, nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
