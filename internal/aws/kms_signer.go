/*
Copyright (c) Amazon Web Services
Distributed under the terms of the MIT license
*/

// Package aws signs session tokens with AWS KMS envelope encryption.
// Each token is signed with a fresh data key whose encrypted form travels in
// the token header, so replicas can verify tokens without a shared secret.
package aws

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	jwt5 "github.com/golang-jwt/jwt/v5"

	"github.com/fortrancon/forwardauth/internal/jwt"
)

const (
	// HeaderEncryptedDataKey carries the KMS-encrypted data key in the token header
	HeaderEncryptedDataKey = "edk"

	// EncryptionContextPurpose binds data keys to session signing
	EncryptionContextPurpose = "forwardauth-session"

	defaultMaxCacheSize   = 1000
	defaultEvictBatchSize = 100
	cleanupInterval       = 15 * time.Minute
)

// KMSSignerConfig contains configuration for the KMS signer
type KMSSignerConfig struct {
	KMSClient      *KMSClient
	KeyId          string
	Issuer         string
	Audience       string
	Expiration     time.Duration
	MaxCacheSize   int
	EvictBatchSize int
	Logger         logr.Logger
}

// KMSSigner implements jwt.Signer using KMS envelope encryption
type KMSSigner struct {
	kmsClient      *KMSClient
	keyId          string
	issuer         string
	audience       string
	expiration     time.Duration
	logger         logr.Logger
	keyCache       map[string][]byte    // encrypted_key_hash -> plaintext_key
	cacheExpiry    map[string]time.Time // encrypted_key_hash -> expiry_time
	lastCleanup    time.Time
	maxCacheSize   int
	evictBatchSize int
	cacheMutex     sync.RWMutex
}

var _ jwt.Signer = (*KMSSigner)(nil)

// NewKMSSigner creates a new KMSSigner
func NewKMSSigner(config KMSSignerConfig) *KMSSigner {
	maxCacheSize := config.MaxCacheSize
	if maxCacheSize <= 0 {
		maxCacheSize = defaultMaxCacheSize
	}
	evictBatchSize := config.EvictBatchSize
	if evictBatchSize <= 0 {
		evictBatchSize = defaultEvictBatchSize
	}

	return &KMSSigner{
		kmsClient:      config.KMSClient,
		keyId:          config.KeyId,
		issuer:         config.Issuer,
		audience:       config.Audience,
		expiration:     config.Expiration,
		logger:         config.Logger.WithName("kms-signer"),
		keyCache:       make(map[string][]byte),
		cacheExpiry:    make(map[string]time.Time),
		lastCleanup:    time.Now(),
		maxCacheSize:   maxCacheSize,
		evictBatchSize: evictBatchSize,
	}
}

func (s *KMSSigner) encryptionContext() map[string]string {
	return map[string]string{
		"purpose": EncryptionContextPurpose,
		"issuer":  s.issuer,
	}
}

// GenerateToken signs a session token with a fresh data key
func (s *KMSSigner) GenerateToken(identity string, sessionStart time.Time) (string, error) {
	ctx := logr.NewContext(context.Background(), s.logger)

	plaintextKey, encryptedKey, err := s.kmsClient.GenerateDataKey(ctx, s.keyId, s.encryptionContext())
	if err != nil {
		return "", fmt.Errorf("failed to generate data key: %w", err)
	}

	claims := jwt.NewClaims(identity, s.issuer, s.audience, s.expiration, sessionStart)
	token := jwt5.NewWithClaims(jwt5.SigningMethodHS384, claims)
	token.Header[HeaderEncryptedDataKey] = base64.URLEncoding.EncodeToString(encryptedKey)

	tokenString, err := token.SignedString(plaintextKey)
	if err != nil {
		s.logger.Error(err, "Failed to sign token")
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	s.setCachedKey(s.hashKey(encryptedKey), plaintextKey)
	return tokenString, nil
}

// ValidateToken validates the token using envelope decryption
func (s *KMSSigner) ValidateToken(tokenString string) (*jwt.Claims, error) {
	ctx := logr.NewContext(context.Background(), s.logger)

	token, err := jwt5.ParseWithClaims(
		tokenString,
		&jwt.Claims{},
		func(token *jwt5.Token) (any, error) {
			return s.dataKey(ctx, token)
		},
		jwt5.WithIssuer(s.issuer),
		jwt5.WithAudience(s.audience),
		jwt5.WithValidMethods([]string{jwt5.SigningMethodHS384.Alg()}),
		jwt5.WithLeeway(5*time.Second),
	)
	if err != nil {
		if errors.Is(err, jwt5.ErrTokenExpired) {
			return nil, jwt.ErrTokenExpired
		}
		if errors.Is(err, jwt5.ErrTokenSignatureInvalid) {
			return nil, jwt.ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", jwt.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*jwt.Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrInvalidClaims
	}
	return claims, nil
}

// dataKey resolves the plaintext signing key from the token header
func (s *KMSSigner) dataKey(ctx context.Context, token *jwt5.Token) ([]byte, error) {
	if token.Method != jwt5.SigningMethodHS384 {
		return nil, fmt.Errorf("unexpected signing method: %v, expected HS384", token.Header["alg"])
	}

	edkStr, ok := token.Header[HeaderEncryptedDataKey].(string)
	if !ok {
		return nil, errors.New("missing encrypted data key in header")
	}

	encryptedKey, err := base64.URLEncoding.DecodeString(edkStr)
	if err != nil {
		return nil, fmt.Errorf("invalid encrypted data key: %w", err)
	}

	keyHash := s.hashKey(encryptedKey)
	s.cacheMutex.RLock()
	plaintextKey, cached := s.keyCache[keyHash]
	s.cacheMutex.RUnlock()
	if cached {
		return plaintextKey, nil
	}

	s.cleanupExpiredKeys()

	plaintextKey, err = s.kmsClient.Decrypt(ctx, encryptedKey, s.encryptionContext())
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data key: %w", err)
	}

	s.setCachedKey(keyHash, plaintextKey)
	return plaintextKey, nil
}

// setCachedKey stores a key in cache with TTL, evicting the entries closest
// to expiry when the cache is full
func (s *KMSSigner) setCachedKey(keyHash string, plaintextKey []byte) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if _, exists := s.keyCache[keyHash]; !exists && len(s.keyCache) >= s.maxCacheSize {
		s.evictOldestLocked()
	}

	s.keyCache[keyHash] = plaintextKey
	s.cacheExpiry[keyHash] = time.Now().Add(s.expiration * 2)
}

func (s *KMSSigner) evictOldestLocked() {
	hashes := make([]string, 0, len(s.cacheExpiry))
	for hash := range s.cacheExpiry {
		hashes = append(hashes, hash)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return s.cacheExpiry[hashes[i]].Before(s.cacheExpiry[hashes[j]])
	})

	n := s.evictBatchSize
	if n > len(hashes) {
		n = len(hashes)
	}
	for _, hash := range hashes[:n] {
		delete(s.keyCache, hash)
		delete(s.cacheExpiry, hash)
	}
}

// cleanupExpiredKeys removes all expired entries from cache
func (s *KMSSigner) cleanupExpiredKeys() {
	s.cacheMutex.RLock()
	recent := time.Since(s.lastCleanup) <= cleanupInterval
	s.cacheMutex.RUnlock()
	if recent {
		return
	}

	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	// Re-check after acquiring lock to prevent double cleanup
	if time.Since(s.lastCleanup) <= cleanupInterval {
		return
	}

	now := time.Now()
	for hash, expiry := range s.cacheExpiry {
		if now.After(expiry) {
			delete(s.keyCache, hash)
			delete(s.cacheExpiry, hash)
		}
	}
	s.lastCleanup = now
}

// hashKey creates a hash of the encrypted key for cache indexing
func (s *KMSSigner) hashKey(encryptedKey []byte) string {
	hash := sha256.Sum256(encryptedKey)
	return base64.URLEncoding.EncodeToString(hash[:])
}
