package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/medlemshub/medlemshub/internal/pkg/env"
)

// InternalTokenMiddleware guards operational endpoints with a static bearer
// token from the named environment variable. An unset token keeps the
// endpoint closed rather than open.
func InternalTokenMiddleware(envKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := strings.TrimSpace(env.GetEnv(envKey, ""))
		got := extractBearerToken(c)
		if expected == "" || got == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_token"})
		}
		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
