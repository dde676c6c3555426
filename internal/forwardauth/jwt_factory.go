package forwardauth

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/fortrancon/forwardauth/internal/aws"
	"github.com/fortrancon/forwardauth/internal/jwt"
)

// NewJWTHandler creates a jwt.Handler based on the configured signing type
func NewJWTHandler(ctx context.Context, cfg *Config, logger logr.Logger) (jwt.Handler, error) {
	var signer jwt.Signer

	switch cfg.JWTSigningType {
	case JWTSigningTypeStandard:
		signer = jwt.NewStandardSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiration)

	case JWTSigningTypeKMS:
		// Validate KMS key ID is provided
		if cfg.KMSKeyId == "" {
			return nil, fmt.Errorf("%s required when %s is kms", EnvKMSKeyId, EnvJwtSigningType)
		}

		kmsClient, err := aws.NewKMSClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create KMS client: %w", err)
		}
		if err := kmsClient.VerifyKey(logr.NewContext(ctx, logger), cfg.KMSKeyId); err != nil {
			return nil, err
		}

		signer = aws.NewKMSSigner(aws.KMSSignerConfig{
			KMSClient:  kmsClient,
			KeyId:      cfg.KMSKeyId,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			Expiration: cfg.JWTExpiration,
			Logger:     logger,
		})

	default:
		return nil, fmt.Errorf("unknown JWT signing type: %s", cfg.JWTSigningType)
	}

	return jwt.NewManager(signer, cfg.JWTRefreshEnable, cfg.JWTRefreshWindow, cfg.JWTRefreshHorizon), nil
}
