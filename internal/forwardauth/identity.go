package forwardauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Identity source names, used as metric labels
const (
	IdentitySourceHeader = "header"
	IdentitySourceOIDC   = "oidc"
)

// Identity errors
var (
	// ErrNoIdentity means the login request carried no usable identity
	ErrNoIdentity = errors.New("no identity presented")
	// ErrIdentityUnavailable means the identity provider could not be reached
	ErrIdentityUnavailable = errors.New("identity provider unavailable")
)

// IdentitySource reads the identity the upstream authenticator asserted on a
// login request. The gateway never checks credentials itself.
type IdentitySource interface {
	Identify(r *http.Request) (string, error)
	Name() string
}

// HeaderIdentitySource trusts a header set by the authenticator in front of
// the login route, such as oauth2-proxy's X-Auth-Request-Email
type HeaderIdentitySource struct {
	header string
}

// NewHeaderIdentitySource creates a HeaderIdentitySource
func NewHeaderIdentitySource(header string) *HeaderIdentitySource {
	return &HeaderIdentitySource{header: header}
}

// Identify returns the trimmed header value
func (s *HeaderIdentitySource) Identify(r *http.Request) (string, error) {
	identity := strings.TrimSpace(r.Header.Get(s.header))
	if identity == "" {
		return "", fmt.Errorf("%w: missing %s header", ErrNoIdentity, s.header)
	}
	if !validIdentity(identity) {
		return "", fmt.Errorf("%w: malformed %s header", ErrNoIdentity, s.header)
	}
	return identity, nil
}

// Name returns the metric label of the source
func (s *HeaderIdentitySource) Name() string {
	return IdentitySourceHeader
}

// OIDCIdentitySource verifies a bearer ID token
type OIDCIdentitySource struct {
	verifier OIDCVerifierInterface
}

// NewOIDCIdentitySource creates an OIDCIdentitySource
func NewOIDCIdentitySource(verifier OIDCVerifierInterface) *OIDCIdentitySource {
	return &OIDCIdentitySource{verifier: verifier}
}

// Identify verifies the bearer token and extracts the identity claim
func (s *OIDCIdentitySource) Identify(r *http.Request) (string, error) {
	token, err := ExtractBearerToken(r.Header.Get(HeaderAuthorization))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}

	claims, isFault, err := s.verifier.VerifyToken(r.Context(), token)
	if err != nil {
		if isFault {
			return "", fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
		}
		return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}

	identity := claims.Identity()
	if identity == "" || !validIdentity(identity) {
		return "", fmt.Errorf("%w: token carries no identity claim", ErrNoIdentity)
	}
	return identity, nil
}

// Name returns the metric label of the source
func (s *OIDCIdentitySource) Name() string {
	return IdentitySourceOIDC
}

// validIdentity rejects values that cannot be echoed in a response header
func validIdentity(identity string) bool {
	for _, r := range identity {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}
