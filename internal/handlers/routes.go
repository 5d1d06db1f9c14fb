package handlers

import (
	"github.com/gofiber/fiber/v2"

	"paperdigest/internal/config"
	"paperdigest/internal/database"
	"paperdigest/internal/middleware"
	"paperdigest/internal/services"
	"paperdigest/pkg/auth"
)

// Dependencies are the collaborators the HTTP routes need.
// JWTAuth, Throttle, Monitor and RateLimit may be nil.
type Dependencies struct {
	Config    *config.Config
	DB        *database.DB
	JWTAuth   *auth.LocalJWTAuth
	Users     *services.UserService
	Quota     *services.QuotaService
	Summaries *services.SummaryService
	Throttle  *services.GenerationThrottle
	Monitor   *services.APIMonitor
	RateLimit *middleware.RateLimitConfig
}

// RegisterRoutes mounts /health and every /api route on app.
// app must use middleware.ErrorHandler.
func RegisterRoutes(app *fiber.App, deps Dependencies) {
	healthHandler := NewHealthHandler(deps.DB)
	summaryHandler := NewSummaryHandler(deps.Summaries, deps.Quota, deps.Throttle)
	userHandler := NewUserHandler(deps.Users, deps.Quota)

	app.Get("/health", healthHandler.Handle)

	const apiPrefix = "/api"
	api := app.Group(apiPrefix)
	if deps.Monitor != nil {
		api.Use(middleware.Monitoring(deps.Monitor, apiPrefix))
	}

	chain := []fiber.Handler{middleware.LocalAuthMiddleware(deps.JWTAuth, deps.Users)}
	if deps.RateLimit != nil {
		chain = append(chain, middleware.AuthenticatedRateLimiter(deps.RateLimit))
	}
	with := func(h ...fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, chain...), h...)
	}

	// Summaries (generate-ai is registered before :id)
	api.Post("/summaries/generate-ai", with(summaryHandler.GenerateAI)...)
	api.Post("/summaries", with(summaryHandler.Create)...)
	api.Get("/summaries", with(summaryHandler.List)...)
	api.Get("/summaries/:id", with(summaryHandler.Get)...)
	api.Patch("/summaries/:id", with(summaryHandler.Update)...)
	api.Delete("/summaries/:id", with(summaryHandler.Delete)...)

	// Users
	api.Get("/users/me", with(userHandler.GetProfile)...)
	api.Get("/users/ai-usage", with(userHandler.GetAIUsage)...)
	api.Delete("/users/me", with(userHandler.DeleteAccount)...)

	// Admin
	if deps.Monitor != nil && deps.Config != nil {
		metricsHandler := NewMetricsHandler(deps.Monitor)
		api.Get("/metrics", with(middleware.AdminMiddleware(deps.Config), metricsHandler.GetEndpointMetrics)...)
	}
}
