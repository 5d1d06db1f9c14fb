package handlers

import (
	"github.com/gofiber/fiber/v2"

	"paperdigest/internal/apierror"
	"paperdigest/internal/middleware"
	"paperdigest/internal/models"
	"paperdigest/internal/services"
)

const (
	cacheControlPrivate = "private, max-age=0, must-revalidate"
	cacheControlNoStore = "no-store, no-cache, must-revalidate"
)

// SummaryHandler handles research summary endpoints
type SummaryHandler struct {
	summaries *services.SummaryService
	quota     *services.QuotaService
	throttle  *services.GenerationThrottle
}

// NewSummaryHandler creates a new summary handler
func NewSummaryHandler(summaries *services.SummaryService, quota *services.QuotaService, throttle *services.GenerationThrottle) *SummaryHandler {
	return &SummaryHandler{
		summaries: summaries,
		quota:     quota,
		throttle:  throttle,
	}
}

// Create stores a manually written summary
// POST /api/summaries
func (h *SummaryHandler) Create(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.CreateSummaryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	title, err := validateTitle(req.Title)
	if err != nil {
		return err
	}
	content, err := completeContent(req.Content)
	if err != nil {
		return err
	}

	summary, err := h.summaries.Create(c.UserContext(), userID, title, content)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(summary)
}

// GenerateAI stores a model-generated summary and consumes one monthly generation
// POST /api/summaries/generate-ai
func (h *SummaryHandler) GenerateAI(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.GenerateAISummaryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	title, err := validateTitle(req.Title)
	if err != nil {
		return err
	}
	content, err := completeContent(req.Content)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if h.throttle != nil {
		if err := h.throttle.Allow(ctx, userID); err != nil {
			return err
		}
	}

	decision, err := h.quota.CheckAndConsume(ctx, userID)
	if err != nil {
		return err
	}

	summary, usageAfter, err := h.summaries.CreateAI(ctx, userID, title, content, req.AIModelName, decision)
	if err != nil {
		return err
	}

	remaining := decision.Limit - usageAfter
	if remaining < 0 {
		remaining = 0
	}

	return c.Status(fiber.StatusCreated).JSON(models.GenerateAISummaryResponse{
		Summary:              summary,
		RemainingGenerations: remaining,
	})
}

// List returns one page of the caller's summaries
// GET /api/summaries
func (h *SummaryHandler) List(c *fiber.Ctx) error {
	query, err := parseListQuery(c)
	if err != nil {
		return err
	}

	list, err := h.summaries.List(c.UserContext(), middleware.UserID(c), query)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderCacheControl, cacheControlPrivate)
	return c.JSON(list)
}

// Get returns a single summary
// GET /api/summaries/:id
func (h *SummaryHandler) Get(c *fiber.Ctx) error {
	id, err := summaryID(c)
	if err != nil {
		return err
	}

	summary, err := h.summaries.Get(c.UserContext(), middleware.UserID(c), id)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderCacheControl, cacheControlPrivate)
	return c.JSON(summary)
}

// Update applies a partial update to title and/or content sections
// PATCH /api/summaries/:id
func (h *SummaryHandler) Update(c *fiber.Ctx) error {
	id, err := summaryID(c)
	if err != nil {
		return err
	}

	var req models.UpdateSummaryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if req.Title == nil && req.Content == nil {
		return apierror.Validation("At least one of title or content must be provided", "")
	}

	var title *string
	if req.Title != nil {
		trimmed, err := validateTitle(*req.Title)
		if err != nil {
			return err
		}
		title = &trimmed
	}

	if req.Content != nil && req.Content.IsEmpty() {
		return apierror.Validation("content must include at least one section", "content")
	}

	summary, err := h.summaries.Update(c.UserContext(), middleware.UserID(c), id, title, req.Content)
	if err != nil {
		return err
	}

	return c.JSON(summary)
}

// Delete removes a summary
// DELETE /api/summaries/:id
func (h *SummaryHandler) Delete(c *fiber.Ctx) error {
	id, err := summaryID(c)
	if err != nil {
		return err
	}

	deletedID, err := h.summaries.Delete(c.UserContext(), middleware.UserID(c), id)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderCacheControl, cacheControlNoStore)
	return c.JSON(models.DeleteSummaryResponse{
		Message:   "Summary deleted successfully",
		DeletedID: deletedID,
	})
}
