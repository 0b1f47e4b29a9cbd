package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets a default Cache-Control header on GET responses
// that the handler left unset.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || c.GetRespHeader(fiber.HeaderCacheControl) != "" {
			return err
		}
		if ttl := cacheControlFor(c.Path()); ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}

func cacheControlFor(path string) string {
	switch {
	case path == "/v1/health" || path == "/v1/ready" || path == "/metrics":
		return "no-cache"
	case strings.HasPrefix(path, "/v1/sessions/"):
		// Session state changes on every cycle.
		return "no-store"
	case path == "/v1/tiles" || path == "/v1/links":
		// Pure functions of the query string.
		return "public, max-age=86400"
	case strings.HasPrefix(path, "/v1/cycles/"):
		return "private, max-age=60"
	case path == "/v1/cycles":
		return "private, max-age=5"
	case strings.HasPrefix(path, "/docs"):
		return "public, max-age=3600"
	}
	return ""
}
