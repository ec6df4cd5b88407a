package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arcadia-social/arcadia-credits/internal/identity"
	"github.com/arcadia-social/arcadia-credits/internal/session"
)

func setupAuthApp(t *testing.T) (*fiber.App, string, string) {
	t.Helper()
	users := identity.NewMemoryRepository()
	sessions := session.NewMemoryStore(time.Hour)
	ctx := context.Background()

	member := identity.User{ID: "u-member", Handle: "member", Role: identity.RoleUser, CreatedAt: time.Now()}
	admin := identity.User{ID: "u-admin", Handle: "admin", Role: identity.RoleAdmin, CreatedAt: time.Now()}
	for _, u := range []identity.User{member, admin} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	memberToken, err := sessions.Issue(ctx, member.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	adminToken, err := sessions.Issue(ctx, admin.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	app := fiber.New()
	app.Use(SessionAuth(sessions, users))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": c.Locals(UserIDKey)})
	})
	admins := app.Group("/admin", AdminOnly())
	admins.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	return app, memberToken, adminToken
}

func get(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestSessionAuth(t *testing.T) {
	app, memberToken, _ := setupAuthApp(t)

	if got := get(t, app, "/whoami", memberToken); got != fiber.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", got)
	}
	if got := get(t, app, "/whoami", ""); got != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", got)
	}
	if got := get(t, app, "/whoami", "bogus"); got != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 with unknown token, got %d", got)
	}
}

func TestAdminOnly(t *testing.T) {
	app, memberToken, adminToken := setupAuthApp(t)

	if got := get(t, app, "/admin/ping", adminToken); got != fiber.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", got)
	}
	if got := get(t, app, "/admin/ping", memberToken); got != fiber.StatusForbidden {
		t.Fatalf("expected 403 for member, got %d", got)
	}
}
