package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"paperdigest/internal/services"
)

// Monitoring records every request in the API monitor. Errors from later
// handlers are rendered here, so the recorded status is the one the client sees.
// prefix is the path of the group Monitoring is mounted on.
func Monitoring(monitor *services.APIMonitor, prefix string) fiber.Handler {
	prefix = strings.TrimSuffix(prefix, "/")

	return func(c *fiber.Ctx) error {
		start := time.Now()

		if chainErr := c.Next(); chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		entry := services.RequestLog{
			Timestamp:     start.UTC(),
			Endpoint:      routePattern(c, prefix),
			Method:        c.Method(),
			UserID:        UserID(c),
			DurationMs:    float64(time.Since(start).Microseconds()) / 1000,
			StatusCode:    c.Response().StatusCode(),
			OperationType: operationType(c.Method()),
		}
		if code, ok := c.Locals("error_code").(string); ok {
			entry.ErrorCode = code
			entry.ErrorMessage, _ = c.Locals("error_message").(string)
		}

		monitor.Record(entry)
		return nil
	}
}

// routePattern prefers the matched route ("/api/summaries/:id") over the raw
// path so ids do not fan out into separate endpoints. When no route matched,
// c.Route() is still the group middleware itself, whose path is prefix.
func routePattern(c *fiber.Ctx, prefix string) string {
	route := c.Route()
	if route == nil {
		return c.Path()
	}

	path := strings.TrimSuffix(route.Path, "/")
	if path == "" || path == prefix || strings.HasSuffix(path, "*") {
		return c.Path()
	}
	return route.Path
}

func operationType(method string) string {
	switch method {
	case fiber.MethodPost:
		return "create"
	case fiber.MethodGet, fiber.MethodHead:
		return "read"
	case fiber.MethodPatch, fiber.MethodPut:
		return "update"
	case fiber.MethodDelete:
		return "delete"
	}
	return ""
}
