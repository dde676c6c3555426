/*
Copyright (c) Amazon Web Services
Distributed under the terms of the MIT license
*/

// Package redirectpolicy decides whether a post-login redirect target may be
// followed. The baseline rule allows relative references and the gateway's own
// host; a TrustedDomainSet loaded at startup extends it with exact hostnames
// and wildcard-subdomain suffixes.
package redirectpolicy

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

// WildcardPrefix marks a pattern that matches any host ending in the pattern.
const WildcardPrefix = "."

// ErrInvalidPattern is returned when a trusted domain pattern cannot be parsed
var ErrInvalidPattern = errors.New("invalid trusted domain pattern")

// PatternKind distinguishes exact hostnames from wildcard suffixes
type PatternKind int

const (
	// PatternExact matches a single hostname
	PatternExact PatternKind = iota
	// PatternWildcard matches every host that ends with the pattern, e.g. ".example.org"
	PatternWildcard
)

// String returns a readable name for the kind
func (k PatternKind) String() string {
	switch k {
	case PatternExact:
		return "exact"
	case PatternWildcard:
		return "wildcard"
	default:
		return "unknown"
	}
}

// Pattern is a single normalised entry of a TrustedDomainSet.
// Wildcard patterns keep their leading separator in Value.
type Pattern struct {
	Value string
	Kind  PatternKind
}

// Matches reports whether the normalised host satisfies the pattern.
// Wildcard matching is a plain suffix comparison on the dotted pattern, so
// ".example.org" matches "a.example.org" and "a.b.example.org" but neither
// "example.org" nor "evilexample.org".
func (p Pattern) Matches(host string) bool {
	if host == "" {
		return false
	}
	switch p.Kind {
	case PatternExact:
		return host == p.Value
	case PatternWildcard:
		return strings.HasSuffix(host, p.Value)
	default:
		return false
	}
}

// String returns the pattern as it would appear in configuration
func (p Pattern) String() string {
	return p.Value
}

// TrustedDomainSet is an immutable, ordered list of trusted domain patterns.
// The zero value is an empty set, which trusts nothing beyond same-origin.
type TrustedDomainSet struct {
	patterns []Pattern
}

// NewTrustedDomainSet parses the raw patterns in order. Blank entries are
// skipped; any other malformed entry fails the whole set.
func NewTrustedDomainSet(raw ...string) (TrustedDomainSet, error) {
	patterns := make([]Pattern, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		p, err := ParsePattern(entry)
		if err != nil {
			return TrustedDomainSet{}, err
		}
		patterns = append(patterns, p)
	}
	return TrustedDomainSet{patterns: patterns}, nil
}

// ParsePattern parses one exact or wildcard pattern
func ParsePattern(raw string) (Pattern, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	kind := PatternExact
	if strings.HasPrefix(value, WildcardPrefix) {
		kind = PatternWildcard
		value = strings.TrimPrefix(value, WildcardPrefix)
	}

	host, err := normalizeDomain(value)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w %q: %v", ErrInvalidPattern, raw, err)
	}

	if kind == PatternWildcard {
		host = WildcardPrefix + host
	}
	return Pattern{Value: host, Kind: kind}, nil
}

// Len returns the number of patterns in the set
func (s TrustedDomainSet) Len() int {
	return len(s.patterns)
}

// Patterns returns a copy of the configured patterns in order
func (s TrustedDomainSet) Patterns() []Pattern {
	out := make([]Pattern, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// Strings returns the patterns in their configuration form
func (s TrustedDomainSet) Strings() []string {
	out := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		out[i] = p.Value
	}
	return out
}

// Match reports whether the normalised host satisfies any pattern, first match wins
func (s TrustedDomainSet) Match(host string) bool {
	for _, p := range s.patterns {
		if p.Matches(host) {
			return true
		}
	}
	return false
}

// normalizeDomain lowercases a hostname and converts it to its ASCII form.
// Ports, paths, credentials and empty labels are rejected.
func normalizeDomain(value string) (string, error) {
	value = strings.TrimSuffix(value, ".")
	if value == "" {
		return "", errors.New("empty domain")
	}
	if strings.ContainsAny(value, "/:@*?# \t") {
		return "", errors.New("domain must be a bare hostname")
	}
	for _, label := range strings.Split(value, ".") {
		if label == "" {
			return "", errors.New("empty label")
		}
	}

	ascii, err := idna.Lookup.ToASCII(value)
	if err != nil {
		return "", err
	}
	return strings.ToLower(ascii), nil
}
