package credits

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arcadia-social/arcadia-credits/internal/ledger"
	"github.com/arcadia-social/arcadia-credits/internal/middleware"
	"github.com/arcadia-social/arcadia-credits/internal/money"
	"github.com/arcadia-social/arcadia-credits/internal/wallet"
)

// Handler exposes the credit ledger over HTTP.
type Handler struct {
	engine *Engine
}

// NewHandler builds a credits HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type amountRequest struct {
	Amount string `json:"amount"`
	Note   string `json:"note"`
	OpID   string `json:"op_id"`
}

type transferRequest struct {
	ToUserID string `json:"to_user_id"`
	Amount   string `json:"amount"`
	Note     string `json:"note"`
	OpID     string `json:"op_id"`
}

type entryResponse struct {
	ID           int64   `json:"id"`
	OpID         string  `json:"op_id"`
	FromUserID   *string `json:"from_user_id,omitempty"`
	ToUserID     *string `json:"to_user_id,omitempty"`
	Amount       string  `json:"amount"`
	Kind         string  `json:"kind"`
	Status       string  `json:"status"`
	Note         string  `json:"note,omitempty"`
	BalanceAfter string  `json:"balance_after,omitempty"`
	CreatedAt    string  `json:"created_at"`
	ResolvedAt   string  `json:"resolved_at,omitempty"`
}

func toEntryResponse(entry ledger.Entry) entryResponse {
	resp := entryResponse{
		ID:         entry.ID,
		OpID:       entry.OpID,
		FromUserID: entry.FromUserID,
		ToUserID:   entry.ToUserID,
		Amount:     money.Format(entry.Amount),
		Kind:       string(entry.Kind),
		Status:     string(entry.Status),
		Note:       entry.Note,
		CreatedAt:  entry.CreatedAt.Format(time.RFC3339Nano),
	}
	if entry.Status == ledger.StatusCompleted {
		resp.BalanceAfter = money.Format(entry.BalanceAfter)
	}
	if entry.ResolvedAt != nil {
		resp.ResolvedAt = entry.ResolvedAt.Format(time.RFC3339Nano)
	}
	return resp
}

// Wallet returns the caller's account and balance.
func (h *Handler) Wallet(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	acct, err := h.engine.WalletOf(c.UserContext(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user_id":          acct.UserID,
		"balance":          money.Format(acct.Balance),
		"starting_balance": money.Format(acct.StartingBalance),
		"updated_at":       acct.UpdatedAt,
	})
}

// Statement pages the caller's ledger view, newest first.
func (h *Handler) Statement(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	limit := c.QueryInt("limit", 50)
	before := int64(c.QueryInt("before", 0))

	entries, err := h.engine.StatementFor(c.UserContext(), userID, limit, before)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entries": toEntryResponses(entries)})
}

// Transfer moves credits from the caller to another wallet.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	entry, err := h.engine.Transfer(c.UserContext(), userID, req.ToUserID, amount, req.Note, req.OpID)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toEntryResponse(entry))
}

// Spend debits the caller's wallet; the single primitive shop and pet
// features call.
func (h *Handler) Spend(c *fiber.Ctx) error {
	return h.singleSided(c, true)
}

// Earn credits the caller's wallet with a play bonus.
func (h *Handler) Earn(c *fiber.Ctx) error {
	return h.singleSided(c, false)
}

func (h *Handler) singleSided(c *fiber.Ctx, debit bool) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	var entry ledger.Entry
	if debit {
		entry, err = h.engine.Debit(c.UserContext(), userID, amount, ledger.KindPurchase, req.Note, req.OpID)
	} else {
		entry, err = h.engine.Credit(c.UserContext(), userID, amount, ledger.KindBonus, req.Note, req.OpID)
	}
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toEntryResponse(entry))
}

// RequestTopUp records a pending funds-injection request for admin review.
func (h *Handler) RequestTopUp(c *fiber.Ctx) error {
	return h.request(c, true)
}

// RequestWithdraw records a pending funds-extraction request for admin review.
func (h *Handler) RequestWithdraw(c *fiber.Ctx) error {
	return h.request(c, false)
}

func (h *Handler) request(c *fiber.Ctx, topUp bool) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	var entry ledger.Entry
	if topUp {
		entry, err = h.engine.RequestTopUp(c.UserContext(), userID, amount, req.Note, req.OpID)
	} else {
		entry, err = h.engine.RequestWithdraw(c.UserContext(), userID, amount, req.Note, req.OpID)
	}
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusAccepted).JSON(toEntryResponse(entry))
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

// Decide applies an admin approve/reject decision to a pending request.
func (h *Handler) Decide(c *fiber.Ctx) error {
	entryID, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid entry id")
	}
	var req decisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	var approve bool
	switch req.Decision {
	case "approve":
		approve = true
	case "reject":
	default:
		return fiber.NewError(http.StatusBadRequest, "decision must be approve or reject")
	}

	entry, err := h.engine.DecideRequest(c.UserContext(), int64(entryID), approve, req.Note)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toEntryResponse(entry))
}

// ListAll pages the full ledger for admin screens.
func (h *Handler) ListAll(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	before := int64(c.QueryInt("before", 0))
	entries, err := h.engine.AllEntries(c.UserContext(), limit, before)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entries": toEntryResponses(entries)})
}

func toEntryResponses(entries []ledger.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toEntryResponse(entry))
	}
	return out
}

// httpError maps domain sentinels onto HTTP statuses. Business outcomes are
// 4xx so clients can tell them apart from the retryable 409/503 pair.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSelfTransfer), errors.Is(err, ledger.ErrInvalidEntry):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrRecipientNotFound), errors.Is(err, wallet.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrNotPending), errors.Is(err, ErrConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
