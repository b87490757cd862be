package middlewares

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// APITokenMiddleware guards the control surface with a static bearer token.
// Requests must carry "Authorization: Bearer <token>".
func APITokenMiddleware(token string) fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get("Authorization")

		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || presented == "" {
			log.Warn().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Request without bearer token rejected")

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			log.Warn().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Request with invalid bearer token rejected")

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid bearer token",
			})
		}

		return c.Next()
	}
}
