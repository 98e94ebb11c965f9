package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	idempotencyLocal  = "idempotency_key"
	maxKeyLength      = 128
)

// Idempotency stores the Idempotency-Key header for the handler, which
// uses it as the transaction id. Replays are detected by the ledger's
// duplicate-id check rather than a response cache.
func Idempotency() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := strings.TrimSpace(c.Get(IdempotencyHeader))
		if key == "" {
			return c.Next()
		}
		if len(key) > maxKeyLength {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": "Idempotency-Key is too long",
				"code":  "invalid_request",
			})
		}

		c.Locals(idempotencyLocal, key)
		return c.Next()
	}
}

// IdempotencyKey returns the key stored by Idempotency, or "".
func IdempotencyKey(c *fiber.Ctx) string {
	key, _ := c.Locals(idempotencyLocal).(string)
	return key
}
