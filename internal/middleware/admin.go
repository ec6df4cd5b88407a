package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/arcadia-social/arcadia-credits/internal/identity"
)

// AdminOnly gates a route group to authenticated admins. It must run after
// SessionAuth, which populates the role local.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(UserRoleKey).(string)
		if role == "" {
			return fiber.NewError(http.StatusUnauthorized, "authentication required")
		}
		if role != string(identity.RoleAdmin) {
			return fiber.NewError(http.StatusForbidden, "admin privileges required")
		}
		return c.Next()
	}
}
