// Package stringutil provides string utility functions.
package stringutil

import (
	"encoding/json"
	"strings"
)

// SanitizeIdentity escapes control characters and quotes in an identity so
// it can be logged or echoed in a header without breaking the line
func SanitizeIdentity(identity string) string {
	escaped, _ := json.Marshal(identity)
	// Remove the surrounding quotes that json.Marshal adds
	return string(escaped[1 : len(escaped)-1])
}

// SplitAndTrim splits s on sep, trims each part and drops empty ones
func SplitAndTrim(s string, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
