package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/arcadia-social/arcadia-credits/internal/identity"
	"github.com/arcadia-social/arcadia-credits/internal/session"
)

const (
	// UserIDKey is the fiber locals key carrying the authenticated user id.
	UserIDKey = "user_id"
	// UserRoleKey is the fiber locals key carrying the authenticated user role.
	UserRoleKey = "user_role"
)

// SessionAuth resolves the bearer token into a user and stores the identity
// in request locals. Requests without a valid session are rejected.
func SessionAuth(sessions session.Store, users identity.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}

		userID, err := sessions.Resolve(c.UserContext(), token)
		if err != nil {
			if err == session.ErrExpired {
				return fiber.NewError(http.StatusUnauthorized, "session expired")
			}
			return fiber.NewError(http.StatusInternalServerError, "session lookup failed")
		}

		user, err := users.FindByID(c.UserContext(), userID)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "unknown session user")
		}

		c.Locals(UserIDKey, user.ID)
		c.Locals(UserRoleKey, string(user.Role))
		c.Locals(sessionTokenKey, token)

		return c.Next()
	}
}

const sessionTokenKey = "session_token"

// SessionToken returns the bearer token the current request authenticated
// with, for logout.
func SessionToken(c *fiber.Ctx) string {
	token, _ := c.Locals(sessionTokenKey).(string)
	return token
}
