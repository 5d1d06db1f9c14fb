package handlers

import (
	"github.com/gofiber/fiber/v2"

	"paperdigest/internal/services"
)

// MetricsHandler exposes the in-memory API monitor to admins
type MetricsHandler struct {
	monitor *services.APIMonitor
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(monitor *services.APIMonitor) *MetricsHandler {
	return &MetricsHandler{monitor: monitor}
}

// GetEndpointMetrics returns per-endpoint request statistics
// GET /api/metrics
func (h *MetricsHandler) GetEndpointMetrics(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	c.Set(fiber.HeaderPragma, "no-cache")
	c.Set(fiber.HeaderExpires, "0")
	return c.JSON(h.monitor.Snapshot())
}
