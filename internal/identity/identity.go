// Package identity turns bearer tokens into principals.
package identity

import (
	"context"
	"errors"
	"strings"

	"metarepo/internal/model"
)

// ErrUnavailable is returned when the identity provider cannot be reached.
var ErrUnavailable = errors.New("identity service unavailable")

// Authenticator resolves a bearer token. A rejected or expired token yields
// an error wrapping model.ErrAuthorization.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Principal, error)
}

const bearerPrefix = "Bearer "

// bearer normalises a token so it always carries the Bearer prefix.
func bearer(token string) string {
	return bearerPrefix + rawToken(token)
}

// rawToken strips the Bearer prefix.
func rawToken(token string) string {
	t := strings.TrimSpace(token)
	if t == strings.TrimSpace(bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(t, bearerPrefix))
}
