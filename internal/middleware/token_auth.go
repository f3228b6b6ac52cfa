package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/solwave/solwave/internal/auth"
)

// TokenAuth requires a bearer token matching the verifier's hash. It is a
// pass-through when the verifier is disabled.
func TokenAuth(v *auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !v.Enabled() {
			return c.Next()
		}
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		if err := v.Verify(token); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		return c.Next()
	}
}
