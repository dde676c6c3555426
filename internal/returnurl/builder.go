/*
Copyright (c) Amazon Web Services
Distributed under the terms of the MIT license
*/

package returnurl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	// NextParam carries the return URL on the login URL
	NextParam = "next"
	// DefaultLoginPath is resolved against the base URL
	DefaultLoginPath = "login"
)

// ErrMissingIdentity is returned when the session layer reports an
// authenticated caller without an identity. It is never recovered locally.
var ErrMissingIdentity = errors.New("authenticated session carries no identity")

// Builder turns a ForwardedRequestContext into a Result. It holds only
// startup configuration and is safe for concurrent use.
type Builder struct {
	baseURL   *url.URL
	loginPath string
	bareLogin string
}

// NewBuilder creates a Builder rooted at baseURL. loginPath is a relative
// reference (DefaultLoginPath when empty) resolved against baseURL.
func NewBuilder(baseURL *url.URL, loginPath string) (*Builder, error) {
	if baseURL == nil || baseURL.Host == "" {
		return nil, errors.New("base URL must be absolute")
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base URL scheme must be http or https, got %q", baseURL.Scheme)
	}
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	if strings.Contains(loginPath, "?") {
		return nil, fmt.Errorf("login path %q must not carry a query", loginPath)
	}

	base := *baseURL
	b := &Builder{baseURL: &base, loginPath: loginPath}

	bare, err := b.resolve(loginPath)
	if err != nil {
		return nil, fmt.Errorf("invalid login path %q: %w", loginPath, err)
	}
	b.bareLogin = bare
	return b, nil
}

// Build returns Authenticated when isAuthenticated is set, otherwise a
// LoginRedirect whose next parameter points back at the original request.
// Missing or malformed forwarding headers fall back to the base URL's
// values; the only error is ErrMissingIdentity.
func (b *Builder) Build(ctx ForwardedRequestContext, isAuthenticated bool, identity string) (Result, error) {
	if isAuthenticated {
		if identity == "" {
			return nil, ErrMissingIdentity
		}
		return Authenticated{Identity: identity}, nil
	}

	path := ctx.OriginalURI()
	if path == "" {
		return LoginRedirect{URL: b.bareLogin}, nil
	}

	returnURL := b.ReturnURL(ctx)
	loginURL, err := b.resolve(b.loginPath + "?" + NextParam + "=" + returnURL)
	if err != nil {
		// Unparseable forwarded values: still send the caller to log in
		return LoginRedirect{URL: b.bareLogin}, nil
	}
	return LoginRedirect{URL: loginURL}, nil
}

// ReturnURL reconstructs "{protocol}://{host}{path}" for the context.
// It returns "" when the context carries no original URI.
func (b *Builder) ReturnURL(ctx ForwardedRequestContext) string {
	path := ctx.OriginalURI()
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if query := ctx.QueryString(); query != "" {
		if strings.Contains(path, "?") {
			path += "&" + query
		} else {
			path += "?" + query
		}
	}
	return b.effectiveProtocol(ctx) + "://" + b.effectiveHost(ctx) + path
}

// LoginURL returns the login URL without a next parameter
func (b *Builder) LoginURL() string {
	return b.bareLogin
}

// effectiveProtocol uses the first forwarded proto when it is http or https
func (b *Builder) effectiveProtocol(ctx ForwardedRequestContext) string {
	proto := ctx.Protocol()
	if i := strings.IndexByte(proto, ','); i >= 0 {
		proto = proto[:i]
	}
	proto = strings.ToLower(strings.TrimSpace(proto))
	if proto == "http" || proto == "https" {
		return proto
	}
	return b.baseURL.Scheme
}

// effectiveHost picks the first forwarded host that is not the gateway itself
func (b *Builder) effectiveHost(ctx ForwardedRequestContext) string {
	canonical := ctx.CanonicalHost()
	if canonical == "" {
		canonical = b.baseURL.Host
	}
	for _, host := range ctx.ForwardedHosts() {
		if !strings.EqualFold(host, canonical) {
			return host
		}
	}
	return canonical
}

func (b *Builder) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.baseURL.ResolveReference(u).String(), nil
}
