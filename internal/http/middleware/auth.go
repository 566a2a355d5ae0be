package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"metarepo/internal/identity"
	"metarepo/internal/model"
)

// PrincipalLocalKey is the key under which Auth stores the caller.
const PrincipalLocalKey = "principal"

// Auth resolves the Authorization header into a principal. Requests without
// a valid, unexpired token are answered with 401; an unreachable identity
// provider yields 503.
func Auth(a identity.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get(fiber.HeaderAuthorization)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		p, err := a.Authenticate(c.UserContext(), token)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrAuthorization):
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		case errors.Is(err, identity.ErrUnavailable):
			return fiber.NewError(fiber.StatusServiceUnavailable, "identity service unavailable")
		default:
			return err
		}

		c.Locals(PrincipalLocalKey, p)
		return c.Next()
	}
}

// PrincipalFrom returns the caller stored by Auth, or nil.
func PrincipalFrom(c *fiber.Ctx) *model.Principal {
	p, _ := c.Locals(PrincipalLocalKey).(*model.Principal)
	return p
}
