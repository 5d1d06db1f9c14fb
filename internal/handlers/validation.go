package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"paperdigest/internal/apierror"
	"paperdigest/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// parseBody decodes a JSON request body into out and runs struct validation
func parseBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return apierror.Validation("Request body is required", "")
	}

	if err := json.Unmarshal(c.Body(), out); err != nil {
		return bodyError(err)
	}

	if err := validate.Struct(out); err != nil {
		var valErrs validator.ValidationErrors
		if errors.As(err, &valErrs) {
			return apierror.FromValidation(valErrs)
		}
		return apierror.Validation("Validation failed", "")
	}
	return nil
}

func bodyError(err error) error {
	var (
		unknown *models.UnknownSectionError
		invalid *models.InvalidSectionError
		typeErr *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &unknown):
		return apierror.Validation(fmt.Sprintf("Unknown content section: %s", unknown.Key), "content."+unknown.Key)
	case errors.As(err, &invalid):
		return apierror.Validation(fmt.Sprintf("Content section %s must be a string", invalid.Key), "content."+invalid.Key)
	case errors.As(err, &typeErr):
		return apierror.Validation(fmt.Sprintf("Invalid type for field %s", typeErr.Field), typeErr.Field)
	default:
		return apierror.Validation("Request body is not valid JSON", "")
	}
}

// validateTitle trims and checks a summary title
func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apierror.Validation("title is required", "title")
	}
	if n := len([]rune(title)); n > models.MaxTitleLength {
		return "", apierror.Validation(fmt.Sprintf("title must be at most %d characters", models.MaxTitleLength), "title")
	}
	return title, nil
}

// completeContent requires all six sections
func completeContent(patch *models.ContentPatch) (models.SummaryContent, error) {
	if patch == nil {
		return models.SummaryContent{}, apierror.Validation("content is required", "content")
	}
	content, ok := patch.Complete()
	if !ok {
		missing := patch.Missing()
		return models.SummaryContent{}, &apierror.Error{
			Kind:    apierror.KindValidation,
			Message: fmt.Sprintf("content.%s is required", missing[0]),
			Field:   "content." + missing[0],
			Details: map[string]interface{}{"missing_sections": missing},
		}
	}
	return content, nil
}

// summaryID validates the :id path parameter
func summaryID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if len(id) != 36 {
		return "", apierror.InvalidParameter("Invalid summary ID format", "id")
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", apierror.InvalidParameter("Invalid summary ID format", "id")
	}
	return strings.ToLower(id), nil
}

// parseListQuery validates list query parameters and applies defaults
func parseListQuery(c *fiber.Ctx) (models.SummaryListQuery, error) {
	q := models.SummaryListQuery{
		Page:  1,
		Limit: models.DefaultPageSize,
		Sort:  models.DefaultSortField,
		Order: models.DefaultSortDirection,
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return q, apierror.Validation("page must be a positive integer", "page")
		}
		q.Page = page
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return q, apierror.Validation("limit must be an integer", "limit")
		}
		q.Limit = limit
	}

	if raw := c.Query("sort"); raw != "" {
		switch raw {
		case "created_at", "updated_at", "title":
			q.Sort = raw
		default:
			return q, apierror.Validation("sort must be one of: created_at, updated_at, title", "sort")
		}
	}

	if raw := c.Query("order"); raw != "" {
		switch raw {
		case "asc", "desc":
			q.Order = raw
		default:
			return q, apierror.Validation("order must be one of: asc, desc", "order")
		}
	}

	if raw := c.Query("creation_type"); raw != "" {
		ct := models.CreationType(raw)
		if !ct.Valid() {
			return q, apierror.Validation("creation_type must be one of: manual, ai", "creation_type")
		}
		q.CreationType = ct
	}

	return q.Normalize(), nil
}
