package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/arcadia-social/arcadia-credits/internal/config"
	"github.com/arcadia-social/arcadia-credits/internal/credits"
	"github.com/arcadia-social/arcadia-credits/internal/identity"
	"github.com/arcadia-social/arcadia-credits/internal/ledger"
	"github.com/arcadia-social/arcadia-credits/internal/loans"
	"github.com/arcadia-social/arcadia-credits/internal/middleware"
	"github.com/arcadia-social/arcadia-credits/internal/notification"
	"github.com/arcadia-social/arcadia-credits/internal/session"
	"github.com/arcadia-social/arcadia-credits/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. When DB or Cache
// are nil the in-memory backends are used; that is only allowed in dev.
func Setup(app *fiber.App, d Deps) error {
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	// Stores
	var walletStore wallet.Store
	var entries ledger.Ledger
	var loanStore loans.Store
	var users identity.Repository
	if d.DB != nil {
		walletStore = wallet.NewPostgresStore(d.DB)
		entries = ledger.NewPostgresLedger(d.DB)
		loanStore = loans.NewPostgresStore(d.DB)
		users = identity.NewPostgresRepository(d.DB)
	} else {
		walletStore = wallet.NewMemoryStore()
		entries = ledger.NewInMemory()
		loanStore = loans.NewMemoryStore()
		users = identity.NewMemoryRepository()
	}

	var sessions session.Store
	if d.Cache != nil {
		sessions = session.NewRedisStore(d.Cache, d.Cfg.SessionTTL)
	} else {
		sessions = session.NewMemoryStore(d.Cfg.SessionTTL)
	}

	// Services
	notifier := notification.NewLoggerNotifier(d.Logger)
	engine := credits.NewEngine(walletStore, entries, notifier, d.Logger, credits.Params{
		StartingBalance: d.Cfg.StartingBalance,
	})
	identitySvc := identity.NewService(users, engine)
	loanSvc := loans.NewService(loanStore, engine, identitySvc, notifier, d.Logger, loans.Params{
		MinPrincipal:  d.Cfg.MinPrincipal,
		MaxPrincipal:  d.Cfg.MaxPrincipal,
		MinAccountAge: d.Cfg.MinAccountAge,
	})

	creditsHandler := credits.NewHandler(engine)
	loansHandler := loans.NewHandler(loanSvc)
	authHandler := newAuthHandler(identitySvc, sessions)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	api.Post("/identity/register", authHandler.Register)
	api.Post("/auth/login", middleware.LoginRateLimit(d.Cache, d.Cfg.LoginPerMinute), authHandler.Login)

	// Protected routes
	protected := api.Group("", middleware.SessionAuth(sessions, users))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	protected.Post("/auth/logout", authHandler.Logout)

	protected.Get("/wallet", creditsHandler.Wallet)
	protected.Get("/transactions", creditsHandler.Statement)
	protected.Post("/transfers", creditsHandler.Transfer)
	protected.Post("/purchases", creditsHandler.Spend)
	protected.Post("/rewards", creditsHandler.Earn)
	protected.Post("/topups", creditsHandler.RequestTopUp)
	protected.Post("/withdrawals", creditsHandler.RequestWithdraw)

	protected.Post("/loans", loansHandler.Request)
	protected.Get("/loans", loansHandler.List)
	protected.Post("/loans/:id/repay", loansHandler.Repay)

	admin := protected.Group("/admin", middleware.AdminOnly())
	admin.Get("/transactions", creditsHandler.ListAll)
	admin.Post("/requests/:id/decision", creditsHandler.Decide)
	admin.Post("/loans/:id/decision", loansHandler.Decide)
	admin.Get("/loans/overdue", loansHandler.Overdue)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
