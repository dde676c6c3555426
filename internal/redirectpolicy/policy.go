/*
Copyright (c) Amazon Web Services
Distributed under the terms of the MIT license
*/

package redirectpolicy

import (
	"errors"
	"net/url"
	"strings"
)

// IsAllowed decides whether candidateURL may be used as a redirect target.
//
// Relative references and absolute URLs on ownOrigin's host are always
// allowed. Anything else must match a pattern in trusted. Malformed input
// is denied; the function never panics and never returns an error.
//
// Candidates containing CR, LF, backslashes or other control characters,
// candidates with leading or trailing spaces, relative references starting
// with "//" and URLs with a scheme other than http or https are treated as
// malformed.
func IsAllowed(candidateURL string, ownOrigin string, trusted TrustedDomainSet) bool {
	return isAllowed(candidateURL, originHost(ownOrigin), trusted)
}

// Policy binds the gateway's own origin to a trusted domain set so the login
// flow can check a redirect target with a single call. A Policy is immutable
// and safe for concurrent use.
type Policy struct {
	ownHost string
	trusted TrustedDomainSet
}

// NewPolicy creates a Policy for the given origin. The origin may be a full
// URL ("https://indico.example.org/") or a bare host.
func NewPolicy(ownOrigin string, trusted TrustedDomainSet) (*Policy, error) {
	host := originHost(ownOrigin)
	if host == "" {
		return nil, errors.New("own origin must include a host")
	}
	return &Policy{ownHost: host, trusted: trusted}, nil
}

// Allows reports whether the candidate may be followed
func (p *Policy) Allows(candidateURL string) bool {
	return isAllowed(candidateURL, p.ownHost, p.trusted)
}

// TrustedDomains returns the set the policy was built with
func (p *Policy) TrustedDomains() TrustedDomainSet {
	return p.trusted
}

func isAllowed(candidateURL string, ownHost string, trusted TrustedDomainSet) bool {
	// Header injection and the browser's backslash-as-slash leniency
	if strings.ContainsAny(candidateURL, "\r\n\\") {
		return false
	}
	// Browsers strip leading and trailing spaces and drop tabs, so " //host"
	// would be followed as scheme-relative.
	if strings.IndexFunc(candidateURL, isControl) >= 0 ||
		strings.TrimSpace(candidateURL) != candidateURL {
		return false
	}

	u, err := url.Parse(candidateURL)
	if err != nil {
		return false
	}

	// Relative reference: same origin by construction, except for
	// "///host" which browsers read as scheme-relative.
	if u.Scheme == "" && u.Host == "" {
		return !strings.HasPrefix(candidateURL, "//")
	}

	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return false
	}
	if ownHost != "" && host == ownHost {
		return true
	}

	if trusted.Len() == 0 {
		return false
	}
	normalized, err := normalizeDomain(host)
	if err != nil {
		return false
	}
	return trusted.Match(normalized)
}

// isControl matches C0 control characters and DEL
func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

// originHost extracts the lowercase, port-stripped host of an origin
func originHost(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}
	if !strings.Contains(origin, "://") {
		origin = "//" + origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
}
