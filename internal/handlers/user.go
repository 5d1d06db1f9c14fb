package handlers

import (
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"

	"paperdigest/internal/apierror"
	"paperdigest/internal/middleware"
	"paperdigest/internal/models"
	"paperdigest/internal/services"
)

// UserHandler handles profile, quota and account endpoints
type UserHandler struct {
	users *services.UserService
	quota *services.QuotaService
}

// NewUserHandler creates a new user handler
func NewUserHandler(users *services.UserService, quota *services.QuotaService) *UserHandler {
	return &UserHandler{
		users: users,
		quota: quota,
	}
}

// GetProfile returns the caller's profile with the current month's usage
// GET /api/users/me
func (h *UserHandler) GetProfile(c *fiber.Ctx) error {
	status, err := h.quota.Usage(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}

	return c.JSON(models.UserProfileResponse{
		ID:                   status.UserID,
		AIUsageCount:         status.UsageCount,
		UsagePeriodStart:     status.PeriodStart,
		MonthlyLimit:         status.Limit,
		RemainingGenerations: status.Remaining(),
	})
}

// GetAIUsage reports whether the caller can generate another AI summary this month
// GET /api/users/ai-usage
func (h *UserHandler) GetAIUsage(c *fiber.Ctx) error {
	status, err := h.quota.Usage(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}

	remaining := status.Remaining()
	return c.JSON(models.AIUsageResponse{
		CanGenerate:          remaining > 0,
		UsageCount:           status.UsageCount,
		MonthlyLimit:         status.Limit,
		RemainingGenerations: remaining,
		PeriodStart:          status.PeriodStart,
		PeriodEnd:            status.PeriodEnd,
	})
}

// DeleteAccount removes the caller's account and all of their summaries
// DELETE /api/users/me
func (h *UserHandler) DeleteAccount(c *fiber.Ctx) error {
	var req models.DeleteAccountRequest
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return apierror.Validation("Request body is not valid JSON", "")
		}
	}

	if req.Confirmation != models.DeleteAccountConfirmation {
		return apierror.InvalidConfirmation(`Account deletion requires confirmation "DELETE"`)
	}

	userID := middleware.UserID(c)
	if err := h.users.DeleteAccount(c.UserContext(), userID); err != nil {
		return err
	}

	log.Printf("🗑️  [USER] Account deletion completed for %s", userID)
	c.Set(fiber.HeaderCacheControl, cacheControlNoStore)
	return c.JSON(fiber.Map{
		"message": "Account deleted successfully",
	})
}
