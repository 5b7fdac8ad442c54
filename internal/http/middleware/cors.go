package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// CORS lets browsers read the public landing and API responses. Only safe
// methods are exposed.
func CORS() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Access-Control-Allow-Origin", "*")
		c.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		c.Set("Access-Control-Allow-Headers", "Origin, Accept, "+APIKeyHeader+", "+RequestIDHeader)
		c.Set("Access-Control-Expose-Headers", RequestIDHeader+", X-RateLimit-Remaining")
		c.Set("Access-Control-Max-Age", "86400")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
