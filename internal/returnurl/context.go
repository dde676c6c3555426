/*
Copyright (c) Amazon Web Services
Distributed under the terms of the MIT license
*/

// Package returnurl rebuilds the caller's original destination from the
// reverse proxy's forwarding headers and turns it into a login redirect.
package returnurl

import (
	"net/http"
	"strings"
)

// Headers set by the reverse proxy on every forwarded request
const (
	HeaderForwardedProto = "X-Forwarded-Proto"
	HeaderForwardedHost  = "X-Forwarded-Host"
	HeaderForwardedURI   = "X-Forwarded-Uri"
)

// ForwardedRequestContext is the read-only view of one forwarded request.
// It is built fresh for every request and never shared.
type ForwardedRequestContext struct {
	protocol       string
	forwardedHosts []string
	originalURI    string
	queryString    string
	canonicalHost  string
}

// NewForwardedRequestContext builds a context from already-extracted values.
// forwardedHosts is copied; blank entries are dropped.
func NewForwardedRequestContext(
	protocol string,
	forwardedHosts []string,
	originalURI string,
	queryString string,
	canonicalHost string,
) ForwardedRequestContext {
	hosts := make([]string, 0, len(forwardedHosts))
	for _, h := range forwardedHosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return ForwardedRequestContext{
		protocol:       strings.TrimSpace(protocol),
		forwardedHosts: hosts,
		originalURI:    strings.TrimSpace(originalURI),
		queryString:    queryString,
		canonicalHost:  strings.TrimSpace(canonicalHost),
	}
}

// ContextFromRequest maps the proxy headers of r into a context.
// X-Forwarded-Host may list several hops separated by commas.
func ContextFromRequest(r *http.Request, canonicalHost string) ForwardedRequestContext {
	var hosts []string
	for _, value := range r.Header.Values(HeaderForwardedHost) {
		hosts = append(hosts, strings.Split(value, ",")...)
	}
	return NewForwardedRequestContext(
		r.Header.Get(HeaderForwardedProto),
		hosts,
		r.Header.Get(HeaderForwardedURI),
		r.URL.RawQuery,
		canonicalHost,
	)
}

// Protocol returns the forwarded scheme as received, possibly empty
func (c ForwardedRequestContext) Protocol() string { return c.protocol }

// ForwardedHosts returns a copy of the forwarded host chain
func (c ForwardedRequestContext) ForwardedHosts() []string {
	out := make([]string, len(c.forwardedHosts))
	copy(out, c.forwardedHosts)
	return out
}

// OriginalURI returns the path (and possibly query) the proxy saw
func (c ForwardedRequestContext) OriginalURI() string { return c.originalURI }

// QueryString returns the raw query of the validation request itself
func (c ForwardedRequestContext) QueryString() string { return c.queryString }

// CanonicalHost returns the gateway's own public host
func (c ForwardedRequestContext) CanonicalHost() string { return c.canonicalHost }
