package middleware

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"paperdigest/internal/apierror"
	"paperdigest/internal/services"
)

// ErrorHandler renders every error returned by a handler or middleware in the
// uniform {"error": {...}} shape. Install it as fiber.Config.ErrorHandler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		err = fromFiberError(fiberErr)
	}

	resp := apierror.Classify(err)
	if resp.Kind == apierror.KindStorage || resp.Kind == apierror.KindInternal {
		log.Printf("❌ [API] %s %s failed (%s): %v", c.Method(), c.Path(), resp.Body.Error.Code, err)
	}

	c.Locals("error_code", resp.Body.Error.Code)
	c.Locals("error_message", resp.Body.Error.Message)
	services.RecordAPIError(resp.Body.Error.Code)

	if retry, ok := resp.Body.Error.Details["retry_after"].(int); ok {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
	}

	return c.Status(resp.Status).JSON(resp.Body)
}

// fromFiberError maps framework errors (routing, body limits) onto the taxonomy
func fromFiberError(e *fiber.Error) error {
	switch e.Code {
	case fiber.StatusNotFound:
		return apierror.NotFound("The requested endpoint does not exist")
	case fiber.StatusMethodNotAllowed:
		return apierror.NotFound("The requested endpoint does not exist")
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUnprocessableEntity, fiber.StatusUnsupportedMediaType:
		return apierror.Validation(e.Message, "")
	case fiber.StatusUnauthorized:
		return apierror.Unauthorized("")
	case fiber.StatusForbidden:
		return apierror.Forbidden("")
	case fiber.StatusTooManyRequests:
		return apierror.RateLimited("", 0)
	default:
		return apierror.Internal(e)
	}
}
