package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"paperdigest/internal/database"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db *database.DB
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "ok"
	code := fiber.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		status = "unhealthy"
		dbStatus = "unreachable"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"database":  dbStatus,
		"dialect":   string(h.db.Dialect),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
