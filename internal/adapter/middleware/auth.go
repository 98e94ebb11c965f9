package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Mo-Nouir/database-tests/internal/core/security"
)

// OperatorOnly admits requests carrying "Authorization: Bearer <token>"
// where the token hashes to tokenHash. An empty tokenHash closes the route.
func OperatorOnly(tokenHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tokenHash == "" {
			return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "operator access is not configured", "code": "forbidden"})
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "missing operator token", "code": "unauthorized"})
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization header format", "code": "unauthorized"})
		}

		if !security.ValidateToken(parts[1], tokenHash) {
			slog.Warn("🚫 rejected operator token", "ip", c.IP(), "path", c.Path())
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid operator token", "code": "unauthorized"})
		}

		return c.Next()
	}
}
