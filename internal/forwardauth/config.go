// Package forwardauth is the HTTP service behind the reverse proxy: it answers
// forward-auth validation requests, completes logins, and logs callers out.
package forwardauth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fortrancon/forwardauth/internal/redirectpolicy"
	"github.com/fortrancon/forwardauth/internal/returnurl"
	"github.com/fortrancon/forwardauth/internal/revocation"
	"github.com/fortrancon/forwardauth/internal/stringutil"
)

// ErrConfiguration wraps every startup configuration failure
var ErrConfiguration = errors.New("invalid configuration")

// Environment variable names
const (
	// Server configuration
	EnvPort            = "PORT"
	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvConfigFile      = "CONFIG_FILE"

	// Gateway configuration
	EnvBaseURL             = "BASE_URL"
	EnvLoginPath           = "LOGIN_PATH"
	EnvTrustedDomains      = "TRUSTED_DOMAINS"
	EnvIdentityHeader      = "IDENTITY_HEADER"
	EnvRedirectStatus      = "REDIRECT_STATUS"
	EnvLoginIdentityHeader = "LOGIN_IDENTITY_HEADER"

	// Auth configuration
	EnvJwtSigningKey     = "JWT_SIGNING_KEY"
	EnvJwtSigningType    = "JWT_SIGNING_TYPE"
	EnvJwtIssuer         = "JWT_ISSUER"
	EnvJwtAudience       = "JWT_AUDIENCE"
	EnvJwtExpiration     = "JWT_EXPIRATION"
	EnvEnableJwtRefresh  = "JWT_REFRESH_ENABLE"
	EnvJwtRefreshWindow  = "JWT_REFRESH_WINDOW"
	EnvJwtRefreshHorizon = "JWT_REFRESH_HORIZON"
	EnvKMSKeyId          = "KMS_KEY_ID"

	// Cookie configuration
	EnvCookieName     = "COOKIE_NAME"
	EnvCookieSecure   = "COOKIE_SECURE"
	EnvCookieDomain   = "COOKIE_DOMAIN"
	EnvCookiePath     = "COOKIE_PATH"
	EnvCookieMaxAge   = "COOKIE_MAX_AGE"
	EnvCookieHttpOnly = "COOKIE_HTTP_ONLY"
	EnvCookieSameSite = "COOKIE_SAME_SITE"

	// CSRF configuration
	EnvCsrfAuthKey    = "CSRF_AUTH_KEY"
	EnvCsrfCookieName = "CSRF_COOKIE_NAME"
	// Note: CSRF cookies use the same CookiePath and CookieDomain as session cookies
	EnvCsrfCookieMaxAge   = "CSRF_COOKIE_MAX_AGE"
	EnvCsrfCookieSecure   = "CSRF_COOKIE_SECURE"
	EnvCsrfFieldName      = "CSRF_FIELD_NAME"
	EnvCsrfHeaderName     = "CSRF_HEADER_NAME"
	EnvCsrfTrustedOrigins = "CSRF_TRUSTED_ORIGINS"

	// OIDC configuration
	EnvOidcIssuerURL       = "OIDC_ISSUER_URL"
	EnvOidcClientID        = "OIDC_CLIENT_ID"
	EnvOidcInitTimeoutSecs = "OIDC_INIT_TIMEOUT_SECS"

	// Revocation store configuration
	EnvRedisAddr           = "REDIS_ADDR"
	EnvRedisPassword       = "REDIS_PASSWORD"
	EnvRedisDB             = "REDIS_DB"
	EnvRevocationKeyPrefix = "REVOCATION_KEY_PREFIX"

	// Tracing configuration
	EnvOtelEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOtelInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvOtelHeaders  = "OTEL_EXPORTER_OTLP_HEADERS"
)

// JWT signing types
const (
	JWTSigningTypeStandard = "standard"
	JWTSigningTypeKMS      = "kms"
)

// Default values
const (
	// Server defaults
	DefaultPort            = 8080
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultLogLevel        = "info"

	// Gateway defaults
	DefaultLoginPath           = returnurl.DefaultLoginPath
	DefaultIdentityHeader      = "Remote-User"
	DefaultRedirectStatus      = http.StatusFound
	DefaultLoginIdentityHeader = "X-Auth-Request-Email"

	// Auth defaults
	DefaultJwtSigningType    = JWTSigningTypeStandard
	DefaultJwtIssuer         = "forwardauth"
	DefaultJwtAudience       = "forwardauth-users"
	DefaultJwtExpiration     = 1 * time.Hour
	DefaultJwtRefreshEnable  = true
	DefaultJwtRefreshWindow  = 15 * time.Minute // 25% of the default expiration
	DefaultJwtRefreshHorizon = 12 * time.Hour

	// Cookie defaults
	DefaultCookieName     = "forwardauth_session"
	DefaultCookieSecure   = true
	DefaultCookiePath     = "/"
	DefaultCookieMaxAge   = 24 * time.Hour
	DefaultCookieHttpOnly = true
	DefaultCookieSameSite = SameSiteLax

	// CSRF defaults
	DefaultCsrfCookieName   = "forwardauth_csrf"
	DefaultCsrfCookieMaxAge = 1 * time.Hour
	DefaultCsrfCookieSecure = true
	DefaultCsrfFieldName    = "csrf_token"
	DefaultCsrfHeaderName   = "X-CSRF-Token"

	// OIDC defaults
	DefaultOidcInitTimeoutSecs = 10

	// Revocation defaults
	DefaultRevocationKeyPrefix = revocation.DefaultKeyPrefix
)

// Config holds all configuration for the forwardauth service.
// It is built once at startup and never mutated afterwards.
type Config struct {
	// Server configuration
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        slog.Level

	// Gateway configuration
	BaseURL             *url.URL
	LoginPath           string
	TrustedDomains      redirectpolicy.TrustedDomainSet
	IdentityHeader      string
	RedirectStatus      int
	LoginIdentityHeader string

	// Auth configuration
	JWTSigningKey     string
	JWTSigningType    string
	JWTIssuer         string
	JWTAudience       string
	JWTExpiration     time.Duration
	JWTRefreshEnable  bool
	JWTRefreshWindow  time.Duration
	JWTRefreshHorizon time.Duration
	KMSKeyId          string

	// Cookie configuration
	CookieName     string
	CookieSecure   bool
	CookieDomain   string
	CookiePath     string
	CookieMaxAge   time.Duration
	CookieHTTPOnly bool
	CookieSameSite string

	// CSRF configuration
	CSRFAuthKey    string
	CSRFCookieName string
	// Note: CSRF cookies use the same CookiePath and CookieDomain as session cookies
	CSRFCookieMaxAge   time.Duration
	CSRFCookieSecure   bool
	CSRFFieldName      string
	CSRFHeaderName     string
	CSRFTrustedOrigins []string

	// OIDC configuration, disabled when OIDCIssuerURL is empty
	OIDCIssuerURL       string
	OIDCClientID        string
	OIDCInitTimeoutSecs int

	// Revocation store configuration, disabled when RedisAddr is empty
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	RevocationKeyPrefix string

	// Tracing configuration, disabled when OtelEndpoint is empty
	OtelEndpoint string
	OtelInsecure bool
	OtelHeaders  map[string]string
}

// NewConfig creates a Config with values from the optional config file and
// environment variables, or defaults if not set. Every error wraps
// ErrConfiguration.
func NewConfig() (*Config, error) {
	config := createDefaultConfig()

	file, err := loadConfigFile(os.Getenv(EnvConfigFile))
	if err != nil {
		return nil, configError(err)
	}

	appliers := []func(*Config) error{
		applyServerConfig,
		func(c *Config) error { return applyGatewayConfig(c, file) },
		applyJWTConfig,
		applyCookieConfig,
		applyCSRFConfig,
		applyOIDCConfig,
		applyRevocationConfig,
		applyTelemetryConfig,
	}
	for _, apply := range appliers {
		if err := apply(config); err != nil {
			return nil, configError(err)
		}
	}

	return config, nil
}

func configError(err error) error {
	return fmt.Errorf("%w: %w", ErrConfiguration, err)
}

// createDefaultConfig creates a new Config with default values
func createDefaultConfig() *Config {
	return &Config{
		// Server defaults
		Port:            DefaultPort,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        slog.LevelInfo,

		// Gateway defaults
		LoginPath:           DefaultLoginPath,
		IdentityHeader:      DefaultIdentityHeader,
		RedirectStatus:      DefaultRedirectStatus,
		LoginIdentityHeader: DefaultLoginIdentityHeader,

		// Auth defaults
		JWTSigningType:    DefaultJwtSigningType,
		JWTIssuer:         DefaultJwtIssuer,
		JWTAudience:       DefaultJwtAudience,
		JWTExpiration:     DefaultJwtExpiration,
		JWTRefreshEnable:  DefaultJwtRefreshEnable,
		JWTRefreshWindow:  DefaultJwtRefreshWindow,
		JWTRefreshHorizon: DefaultJwtRefreshHorizon,

		// Cookie defaults
		CookieName:     DefaultCookieName,
		CookieSecure:   DefaultCookieSecure,
		CookiePath:     DefaultCookiePath,
		CookieMaxAge:   DefaultCookieMaxAge,
		CookieHTTPOnly: DefaultCookieHttpOnly,
		CookieSameSite: DefaultCookieSameSite,

		// CSRF defaults
		CSRFCookieName:   DefaultCsrfCookieName,
		CSRFCookieMaxAge: DefaultCsrfCookieMaxAge,
		CSRFCookieSecure: DefaultCsrfCookieSecure,
		CSRFFieldName:    DefaultCsrfFieldName,
		CSRFHeaderName:   DefaultCsrfHeaderName,

		// OIDC defaults
		OIDCInitTimeoutSecs: DefaultOidcInitTimeoutSecs,

		// Revocation defaults
		RevocationKeyPrefix: DefaultRevocationKeyPrefix,
	}
}

// applyServerConfig applies server-related environment variable overrides
func applyServerConfig(config *Config) error {
	if port := os.Getenv(EnvPort); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid %s: %d is out of range", EnvPort, p)
		}
		config.Port = p
	}

	durations := []struct {
		env    string
		target *time.Duration
	}{
		{EnvReadTimeout, &config.ReadTimeout},
		{EnvWriteTimeout, &config.WriteTimeout},
		{EnvShutdownTimeout, &config.ShutdownTimeout},
	}
	for _, d := range durations {
		if err := parseDurationEnv(d.env, d.target); err != nil {
			return err
		}
	}

	if level := os.Getenv(EnvLogLevel); level != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvLogLevel, err)
		}
		config.LogLevel = l
	}

	return nil
}

// applyGatewayConfig resolves the base URL, login path and trusted domains.
// Environment values take precedence over the config file.
func applyGatewayConfig(config *Config, file *fileConfig) error {
	rawBaseURL := os.Getenv(EnvBaseURL)
	if rawBaseURL == "" && file != nil {
		rawBaseURL = file.BaseURL
	}
	if rawBaseURL == "" {
		return fmt.Errorf("%s environment variable must be set", EnvBaseURL)
	}
	baseURL, err := parseBaseURL(rawBaseURL)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", EnvBaseURL, err)
	}
	config.BaseURL = baseURL

	if file != nil && file.LoginPath != "" {
		config.LoginPath = file.LoginPath
	}
	if loginPath := os.Getenv(EnvLoginPath); loginPath != "" {
		config.LoginPath = loginPath
	}
	if strings.Contains(config.LoginPath, "?") || strings.Contains(config.LoginPath, "://") {
		return fmt.Errorf("invalid %s: %q must be a relative path", EnvLoginPath, config.LoginPath)
	}

	var rawDomains []string
	if file != nil {
		rawDomains = file.TrustedDomains
	}
	if domains, ok := os.LookupEnv(EnvTrustedDomains); ok {
		rawDomains = stringutil.SplitAndTrim(domains, ",")
	}
	trusted, err := redirectpolicy.NewTrustedDomainSet(rawDomains...)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", EnvTrustedDomains, err)
	}
	config.TrustedDomains = trusted

	if header := os.Getenv(EnvIdentityHeader); header != "" {
		config.IdentityHeader = http.CanonicalHeaderKey(header)
	}

	if header := os.Getenv(EnvLoginIdentityHeader); header != "" {
		config.LoginIdentityHeader = http.CanonicalHeaderKey(header)
	}

	if status := os.Getenv(EnvRedirectStatus); status != "" {
		s, err := strconv.Atoi(status)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRedirectStatus, err)
		}
		if s != http.StatusFound && s != http.StatusSeeOther {
			return fmt.Errorf("invalid %s: %d, expected %d or %d", EnvRedirectStatus, s, http.StatusFound, http.StatusSeeOther)
		}
		config.RedirectStatus = s
	}

	return nil
}

// parseBaseURL accepts an absolute http(s) URL without query or fragment
func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("host is required")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, errors.New("query and fragment are not allowed")
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

// applyJWTConfig applies JWT-related environment variable overrides
func applyJWTConfig(config *Config) error {
	// Set signing type first so we can use it for validation
	if signingType := os.Getenv(EnvJwtSigningType); signingType != "" {
		config.JWTSigningType = signingType
	}

	switch config.JWTSigningType {
	case JWTSigningTypeStandard:
		// JWT signing key - only required for standard signing
		if key := os.Getenv(EnvJwtSigningKey); key != "" {
			config.JWTSigningKey = key
		} else {
			return fmt.Errorf("%s environment variable must be set for standard JWT signing", EnvJwtSigningKey)
		}
	case JWTSigningTypeKMS:
		if kmsKeyId := os.Getenv(EnvKMSKeyId); kmsKeyId != "" {
			config.KMSKeyId = kmsKeyId
		} else {
			return fmt.Errorf("%s environment variable must be set for kms JWT signing", EnvKMSKeyId)
		}
	default:
		return fmt.Errorf("invalid %s: %q", EnvJwtSigningType, config.JWTSigningType)
	}

	if issuer := os.Getenv(EnvJwtIssuer); issuer != "" {
		config.JWTIssuer = issuer
	}

	if audience := os.Getenv(EnvJwtAudience); audience != "" {
		config.JWTAudience = audience
	}

	if err := parseDurationEnv(EnvJwtExpiration, &config.JWTExpiration); err != nil {
		return err
	}

	if err := parseBoolEnv(EnvEnableJwtRefresh, &config.JWTRefreshEnable); err != nil {
		return err
	}

	if err := parseDurationEnv(EnvJwtRefreshWindow, &config.JWTRefreshWindow); err != nil {
		return err
	}

	if err := parseDurationEnv(EnvJwtRefreshHorizon, &config.JWTRefreshHorizon); err != nil {
		return err
	}

	if config.JWTExpiration <= 0 {
		return fmt.Errorf("JWT expiration (%s) must be positive", config.JWTExpiration)
	}

	// Validate that JWTExpiration >= JWTRefreshWindow
	if config.JWTRefreshWindow > config.JWTExpiration {
		return fmt.Errorf("JWT refresh window (%s) must be less than or equal to JWT expiration (%s)",
			config.JWTRefreshWindow, config.JWTExpiration)
	}

	if config.JWTExpiration > config.JWTRefreshHorizon {
		return fmt.Errorf("JWT refresh horizon (%s) must be greater or equal to JWT expiration (%s)",
			config.JWTRefreshHorizon, config.JWTExpiration)
	}

	return nil
}

// applyCookieConfig applies cookie-related environment variable overrides
func applyCookieConfig(config *Config) error {
	if cookieName := os.Getenv(EnvCookieName); cookieName != "" {
		config.CookieName = cookieName
	}

	if err := parseBoolEnv(EnvCookieSecure, &config.CookieSecure); err != nil {
		return err
	}

	if cookieDomain := os.Getenv(EnvCookieDomain); cookieDomain != "" {
		config.CookieDomain = cookieDomain
	}

	if cookiePath := os.Getenv(EnvCookiePath); cookiePath != "" {
		config.CookiePath = cookiePath
	}

	if err := parseDurationEnv(EnvCookieMaxAge, &config.CookieMaxAge); err != nil {
		return err
	}

	if err := parseBoolEnv(EnvCookieHttpOnly, &config.CookieHTTPOnly); err != nil {
		return err
	}

	if cookieSameSite := os.Getenv(EnvCookieSameSite); cookieSameSite != "" {
		config.CookieSameSite = strings.ToLower(cookieSameSite)
	}
	switch config.CookieSameSite {
	case SameSiteStrict, SameSiteLax, SameSiteNone:
	default:
		return fmt.Errorf("invalid %s: %q", EnvCookieSameSite, config.CookieSameSite)
	}

	return nil
}

// applyCSRFConfig applies CSRF-related environment variable overrides
func applyCSRFConfig(config *Config) error {
	// Required CSRF auth key
	if csrfAuthKey := os.Getenv(EnvCsrfAuthKey); csrfAuthKey != "" {
		config.CSRFAuthKey = csrfAuthKey
	} else {
		return fmt.Errorf("%s environment variable must be set", EnvCsrfAuthKey)
	}
	if len(config.CSRFAuthKey) < 32 {
		return fmt.Errorf("%s must be at least 32 bytes", EnvCsrfAuthKey)
	}

	if csrfCookieName := os.Getenv(EnvCsrfCookieName); csrfCookieName != "" {
		config.CSRFCookieName = csrfCookieName
	}

	if err := parseDurationEnv(EnvCsrfCookieMaxAge, &config.CSRFCookieMaxAge); err != nil {
		return err
	}

	if err := parseBoolEnv(EnvCsrfCookieSecure, &config.CSRFCookieSecure); err != nil {
		return err
	}

	if csrfFieldName := os.Getenv(EnvCsrfFieldName); csrfFieldName != "" {
		config.CSRFFieldName = csrfFieldName
	}

	if csrfHeaderName := os.Getenv(EnvCsrfHeaderName); csrfHeaderName != "" {
		config.CSRFHeaderName = csrfHeaderName
	}

	if csrfTrustedOrigins := os.Getenv(EnvCsrfTrustedOrigins); csrfTrustedOrigins != "" {
		config.CSRFTrustedOrigins = stringutil.SplitAndTrim(csrfTrustedOrigins, ",")
	} else if config.BaseURL != nil {
		config.CSRFTrustedOrigins = []string{config.BaseURL.Host}
	}

	return nil
}

// applyOIDCConfig applies OIDC-related environment variable overrides
func applyOIDCConfig(config *Config) error {
	config.OIDCIssuerURL = os.Getenv(EnvOidcIssuerURL)
	config.OIDCClientID = os.Getenv(EnvOidcClientID)

	if config.OIDCIssuerURL != "" && config.OIDCClientID == "" {
		return fmt.Errorf("%s must be set when %s is set", EnvOidcClientID, EnvOidcIssuerURL)
	}

	if timeout := os.Getenv(EnvOidcInitTimeoutSecs); timeout != "" {
		secs, err := strconv.Atoi(timeout)
		if err != nil || secs <= 0 {
			return fmt.Errorf("invalid %s: %q", EnvOidcInitTimeoutSecs, timeout)
		}
		config.OIDCInitTimeoutSecs = secs
	}

	return nil
}

// applyRevocationConfig applies Redis-related environment variable overrides
func applyRevocationConfig(config *Config) error {
	config.RedisAddr = os.Getenv(EnvRedisAddr)
	config.RedisPassword = os.Getenv(EnvRedisPassword)

	if db := os.Getenv(EnvRedisDB); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid %s: %q", EnvRedisDB, db)
		}
		config.RedisDB = n
	}

	if prefix := os.Getenv(EnvRevocationKeyPrefix); prefix != "" {
		config.RevocationKeyPrefix = prefix
	}

	return nil
}

// applyTelemetryConfig applies tracing-related environment variable overrides
func applyTelemetryConfig(config *Config) error {
	config.OtelEndpoint = os.Getenv(EnvOtelEndpoint)
	if err := parseBoolEnv(EnvOtelInsecure, &config.OtelInsecure); err != nil {
		return err
	}

	headers, err := parseHeaderList(os.Getenv(EnvOtelHeaders))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", EnvOtelHeaders, err)
	}
	config.OtelHeaders = headers
	return nil
}

// parseHeaderList parses "key1=value1,key2=value2" with URL-encoded values
func parseHeaderList(value string) (map[string]string, error) {
	entries := stringutil.SplitAndTrim(value, ",")
	if len(entries) == 0 {
		return nil, nil
	}

	headers := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, raw, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("entry %q is not key=value", entry)
		}
		decoded, err := url.QueryUnescape(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", key, err)
		}
		headers[key] = decoded
	}
	return headers, nil
}

func parseDurationEnv(env string, target *time.Duration) error {
	value := os.Getenv(env)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	if d < 0 {
		return fmt.Errorf("invalid %s: %s is negative", env, d)
	}
	*target = d
	return nil
}

func parseBoolEnv(env string, target *bool) error {
	value := os.Getenv(env)
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	*target = b
	return nil
}
