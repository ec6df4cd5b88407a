package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/arcadia-social/arcadia-credits/internal/identity"
	"github.com/arcadia-social/arcadia-credits/internal/middleware"
	"github.com/arcadia-social/arcadia-credits/internal/session"
)

type authHandler struct {
	ids      *identity.Service
	sessions session.Store
}

func newAuthHandler(ids *identity.Service, sessions session.Store) *authHandler {
	return &authHandler{ids: ids, sessions: sessions}
}

type credentialsRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

// Register creates a user and their wallet.
func (h *authHandler) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.ids.Register(c.UserContext(), identity.Credentials{Handle: req.Handle, Password: req.Password})
	if err != nil {
		if errors.Is(err, identity.ErrHandleTaken) {
			return fiber.NewError(http.StatusConflict, "handle already taken")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user_id":    user.ID,
		"handle":     user.Handle,
		"created_at": user.CreatedAt,
	})
}

// Login validates credentials and issues a session token.
func (h *authHandler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.ids.Authenticate(c.UserContext(), identity.Credentials{Handle: req.Handle, Password: req.Password})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	}
	token, err := h.sessions.Issue(c.UserContext(), user.ID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "session issue failed")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user_id": user.ID,
		"token":   token,
	})
}

// Logout revokes the session the request authenticated with.
func (h *authHandler) Logout(c *fiber.Ctx) error {
	token := middleware.SessionToken(c)
	if token == "" {
		return fiber.NewError(http.StatusBadRequest, "no session token")
	}
	if err := h.sessions.Revoke(c.UserContext(), token); err != nil {
		return fiber.NewError(http.StatusInternalServerError, "session revoke failed")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}
