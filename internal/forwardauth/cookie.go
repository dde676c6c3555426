package forwardauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/csrf"
)

// SameSite mode constants
const (
	SameSiteStrict = "strict"
	SameSiteNone   = "none"
	SameSiteLax    = "lax"
)

// Common errors
var (
	ErrNoCookie      = errors.New("cookie not found")
	ErrInvalidCookie = errors.New("invalid cookie")
)

// CookieHandler exposes CookieManager interface to facilitate unit-testing
type CookieHandler interface {
	SetCookie(w http.ResponseWriter, token string)
	GetCookie(r *http.Request) (string, error)
	ClearCookie(w http.ResponseWriter)
	CSRFProtect() func(http.Handler) http.Handler
	GenerateCSRFToken(r *http.Request) string
}

// CookieManager handles the session cookie and CSRF protection
type CookieManager struct {
	cookieName     string
	cookieSecure   bool
	cookieDomain   string
	cookiePath     string
	cookieMaxAge   time.Duration
	cookieHTTPOnly bool
	cookieSameSite http.SameSite
	csrfProtect    func(http.Handler) http.Handler
}

// NewCookieManager creates a new CookieManager
func NewCookieManager(cfg *Config) (*CookieManager, error) {
	// Parse SameSite value
	var sameSite csrf.SameSiteMode
	var sameSiteHttp http.SameSite
	switch strings.ToLower(cfg.CookieSameSite) {
	case SameSiteStrict:
		sameSite = csrf.SameSiteStrictMode
		sameSiteHttp = http.SameSiteStrictMode
	case SameSiteNone:
		sameSite = csrf.SameSiteNoneMode
		sameSiteHttp = http.SameSiteNoneMode
	case SameSiteLax:
		sameSite = csrf.SameSiteLaxMode
		sameSiteHttp = http.SameSiteLaxMode
	default:
		return nil, fmt.Errorf("invalid same site value: %s", cfg.CookieSameSite)
	}

	// Validate CSRF auth key
	if len(cfg.CSRFAuthKey) < 32 {
		return nil, errors.New("CSRF auth key must be at least 32 bytes")
	}

	csrfOpts := []csrf.Option{
		csrf.CookieName(cfg.CSRFCookieName),
		csrf.Path(cfg.CookiePath), // Use session cookie path
		csrf.MaxAge(int(cfg.CSRFCookieMaxAge.Seconds())),
		csrf.Secure(cfg.CSRFCookieSecure),
		csrf.SameSite(sameSite),
		csrf.FieldName(cfg.CSRFFieldName),
		csrf.RequestHeader(cfg.CSRFHeaderName),
		csrf.ErrorHandler(http.HandlerFunc(csrfFailureHandler)),
	}

	if cfg.CookieDomain != "" {
		csrfOpts = append(csrfOpts, csrf.Domain(cfg.CookieDomain)) // Use session cookie domain
	}

	if len(cfg.CSRFTrustedOrigins) > 0 {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins(cfg.CSRFTrustedOrigins))
	}

	return &CookieManager{
		cookieName:     cfg.CookieName,
		cookieSecure:   cfg.CookieSecure,
		cookieDomain:   cfg.CookieDomain,
		cookiePath:     cfg.CookiePath,
		cookieMaxAge:   cfg.CookieMaxAge,
		cookieHTTPOnly: cfg.CookieHTTPOnly,
		cookieSameSite: sameSiteHttp,
		csrfProtect:    csrf.Protect([]byte(cfg.CSRFAuthKey), csrfOpts...),
	}, nil
}

// SetCookie sets the session cookie with the given token
func (m *CookieManager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, m.newCookie(token, int(m.cookieMaxAge.Seconds())))
}

// GetCookie retrieves the session token from the cookie
func (m *CookieManager) GetCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrNoCookie
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}
	if cookie.Value == "" {
		return "", ErrInvalidCookie
	}
	return cookie.Value, nil
}

// ClearCookie removes the session cookie
func (m *CookieManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, m.newCookie("", -1))
}

func (m *CookieManager) newCookie(value string, maxAge int) *http.Cookie {
	cookie := &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     m.cookiePath,
		MaxAge:   maxAge,
		HttpOnly: m.cookieHTTPOnly,
		Secure:   m.cookieSecure,
		SameSite: m.cookieSameSite,
	}
	if m.cookieDomain != "" {
		cookie.Domain = m.cookieDomain
	}
	return cookie
}

// CSRFProtect returns a middleware that protects against CSRF attacks
func (m *CookieManager) CSRFProtect() func(http.Handler) http.Handler {
	return m.csrfProtect
}

// GenerateCSRFToken generates a CSRF token for the given request.
// The request must have passed through CSRFProtect.
func (m *CookieManager) GenerateCSRFToken(r *http.Request) string {
	return csrf.Token(r)
}

func csrfFailureHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Forbidden - CSRF token invalid", http.StatusForbidden)
}
