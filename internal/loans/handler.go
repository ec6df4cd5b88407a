package loans

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/arcadia-social/arcadia-credits/internal/credits"
	"github.com/arcadia-social/arcadia-credits/internal/middleware"
	"github.com/arcadia-social/arcadia-credits/internal/money"
)

// Handler exposes loan endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a loans HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type requestLoan struct {
	Principal         string `json:"principal"`
	HourlyRatePercent string `json:"hourly_rate_percent"`
	DurationHours     int    `json:"duration_hours"`
}

type loanResponse struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	Principal         string `json:"principal"`
	HourlyRatePercent string `json:"hourly_rate_percent"`
	DurationHours     int    `json:"duration_hours"`
	TotalOwed         string `json:"total_owed"`
	Status            string `json:"status"`
	DueAt             string `json:"due_at,omitempty"`
	DecidedAt         string `json:"decided_at,omitempty"`
	Note              string `json:"note,omitempty"`
	CreatedAt         string `json:"created_at"`
}

func toLoanResponse(loan Loan) loanResponse {
	resp := loanResponse{
		ID:                loan.ID,
		UserID:            loan.UserID,
		Principal:         money.Format(loan.Principal),
		HourlyRatePercent: loan.HourlyRatePercent.String(),
		DurationHours:     loan.DurationHours,
		TotalOwed:         money.Format(loan.TotalOwed),
		Status:            string(loan.Status),
		Note:              loan.Note,
		CreatedAt:         loan.CreatedAt.Format(time.RFC3339Nano),
	}
	if loan.DueAt != nil {
		resp.DueAt = loan.DueAt.Format(time.RFC3339Nano)
	}
	if loan.DecidedAt != nil {
		resp.DecidedAt = loan.DecidedAt.Format(time.RFC3339Nano)
	}
	return resp
}

// Request creates a pending loan for the caller.
func (h *Handler) Request(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	var req requestLoan
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	principal, err := money.Parse(req.Principal)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	rate, err := decimal.NewFromString(req.HourlyRatePercent)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid hourly rate")
	}

	loan, err := h.service.Request(c.UserContext(), userID, principal, rate, req.DurationHours)
	if err != nil {
		return loanHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(toLoanResponse(loan))
}

// List shows the caller's loans.
func (h *Handler) List(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	loans, err := h.service.ListForUser(c.UserContext(), userID)
	if err != nil {
		return loanHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"loans": toLoanResponses(loans)})
}

// Repay collects the amount owed on the caller's approved loan.
func (h *Handler) Repay(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	loanID := c.Params("id")

	loan, err := h.service.Get(c.UserContext(), loanID)
	if err != nil {
		return loanHTTPError(err)
	}
	if loan.UserID != userID {
		return fiber.NewError(http.StatusNotFound, ErrNotFound.Error())
	}

	paid, err := h.service.Repay(c.UserContext(), loanID)
	if err != nil {
		return loanHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(toLoanResponse(paid))
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

// Decide applies an admin approve/reject decision.
func (h *Handler) Decide(c *fiber.Ctx) error {
	loanID := c.Params("id")
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

	loan, err := h.service.Decide(c.UserContext(), loanID, approve, req.Note)
	if err != nil {
		return loanHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(toLoanResponse(loan))
}

// Overdue lists approved loans past their due time, for admin reporting.
func (h *Handler) Overdue(c *fiber.Ctx) error {
	loans, err := h.service.Overdue(c.UserContext())
	if err != nil {
		return loanHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"loans": toLoanResponses(loans)})
}

func toLoanResponses(loans []Loan) []loanResponse {
	out := make([]loanResponse, 0, len(loans))
	for _, loan := range loans {
		out = append(out, toLoanResponse(loan))
	}
	return out
}

func loanHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotEligible):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, credits.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, credits.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, credits.ErrConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, credits.ErrUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
