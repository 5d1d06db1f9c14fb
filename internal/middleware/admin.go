package middleware

import (
	"github.com/gofiber/fiber/v2"

	"paperdigest/internal/apierror"
	"paperdigest/internal/config"
)

// AdminMiddleware checks if the authenticated user is an admin: either the
// token carries role "admin" or the subject is listed in SUPERADMIN_USER_IDS.
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := UserID(c)
		if userID == "" {
			return apierror.Unauthorized("")
		}

		role, _ := c.Locals("user_role").(string)
		if role != "admin" && !IsSuperadmin(userID, cfg) {
			return apierror.Forbidden("Admin access required")
		}

		c.Locals("is_superadmin", true)
		return c.Next()
	}
}

// IsSuperadmin is a helper function to check if a user ID is a superadmin
func IsSuperadmin(userID string, cfg *config.Config) bool {
	for _, adminID := range cfg.SuperadminUserIDs {
		if adminID == userID {
			return true
		}
	}
	return false
}
