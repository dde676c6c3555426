package forwardauth

import (
	"errors"
	"strings"
)

const bearerPrefix = "Bearer "

// ExtractBearerToken returns the token of an "Authorization: Bearer" header
func ExtractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("missing authorization header")
	}
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", errors.New("authorization header is not a bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
