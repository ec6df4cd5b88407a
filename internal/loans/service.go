package loans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arcadia-social/arcadia-credits/internal/credits"
	"github.com/arcadia-social/arcadia-credits/internal/ledger"
	"github.com/arcadia-social/arcadia-credits/internal/money"
	"github.com/arcadia-social/arcadia-credits/internal/notification"
)

// ErrNotEligible indicates the user fails the eligibility gate: account too
// young or an open loan outstanding. A business outcome, not a failure.
var ErrNotEligible = errors.New("not eligible for a loan")

// Funds is the slice of the credit engine the loan service needs to move
// money at disbursement and repayment.
type Funds interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, kind ledger.Kind, note, opID string) (ledger.Entry, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal, kind ledger.Kind, note, opID string) (ledger.Entry, error)
}

// Directory answers when an account was registered, for the age gate.
type Directory interface {
	RegisteredAt(ctx context.Context, userID string) (time.Time, error)
}

// Params bounds loan requests.
type Params struct {
	MinPrincipal  decimal.Decimal
	MaxPrincipal  decimal.Decimal
	MinAccountAge time.Duration
}

// Service runs the loan lifecycle: eligibility, interest computation,
// admin decision and repayment.
type Service struct {
	store     Store
	funds     Funds
	directory Directory
	notifier  notification.Notifier
	logger    *slog.Logger
	params    Params
}

// NewService wires the loan service. The notifier may be nil.
func NewService(store Store, funds Funds, directory Directory, notifier notification.Notifier, logger *slog.Logger, params Params) *Service {
	return &Service{store: store, funds: funds, directory: directory, notifier: notifier, logger: logger, params: params}
}

func (s *Service) notify(ctx context.Context, kind, userID, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: userID, Body: body}); err != nil {
		s.logger.Warn("notification failed", "kind", kind, "error", err)
	}
}

// CheckEligibility is true iff the account is old enough and the user has no
// loan in pending or approved state. A rejected or paid loan frees the gate
// immediately.
func (s *Service) CheckEligibility(ctx context.Context, userID string) (bool, error) {
	registeredAt, err := s.directory.RegisteredAt(ctx, userID)
	if err != nil {
		return false, err
	}
	if time.Since(registeredAt) < s.params.MinAccountAge {
		return false, nil
	}
	open, err := s.store.OpenLoanFor(ctx, userID)
	if err != nil {
		return false, err
	}
	return !open, nil
}

// Request creates a pending loan. Interest is simple (non-compounding) over
// the stated duration and fixed at creation; no funds move until approval.
func (s *Service) Request(ctx context.Context, userID string, principal, hourlyRatePercent decimal.Decimal, durationHours int) (Loan, error) {
	principal = money.Round2(principal)
	if principal.LessThan(s.params.MinPrincipal) || principal.GreaterThan(s.params.MaxPrincipal) {
		return Loan{}, credits.ErrInvalidAmount
	}
	if hourlyRatePercent.IsNegative() || durationHours <= 0 {
		return Loan{}, credits.ErrInvalidAmount
	}

	eligible, err := s.CheckEligibility(ctx, userID)
	if err != nil {
		return Loan{}, err
	}
	if !eligible {
		return Loan{}, ErrNotEligible
	}

	interest := money.Round2(principal.Mul(hourlyRatePercent).Div(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(int64(durationHours))))
	now := time.Now().UTC()
	dueAt := now.Add(time.Duration(durationHours) * time.Hour)

	loan := Loan{
		ID:                uuid.NewString(),
		UserID:            userID,
		Principal:         principal,
		HourlyRatePercent: hourlyRatePercent,
		DurationHours:     durationHours,
		TotalOwed:         principal.Add(interest),
		Status:            StatusPending,
		DueAt:             &dueAt,
		CreatedAt:         now,
	}
	if err := s.store.Create(ctx, loan); err != nil {
		return Loan{}, err
	}
	return loan, nil
}

// Decide applies an admin decision. Approval transitions the loan first (the
// status compare-and-set is what keeps two admins from both succeeding) and
// then disburses the principal; the disbursement operation id is derived
// from the loan id, so re-running an approval after a transient failure
// cannot double-credit.
func (s *Service) Decide(ctx context.Context, loanID string, approve bool, note string) (Loan, error) {
	if !approve {
		rejected, err := s.store.UpdateStatus(ctx, loanID, StatusPending, StatusRejected, note)
		if err != nil {
			return Loan{}, err
		}
		s.notify(ctx, notification.KindLoanDecided, rejected.UserID, "loan application rejected")
		return rejected, nil
	}

	loan, err := s.store.UpdateStatus(ctx, loanID, StatusPending, StatusApproved, note)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Re-approving an approved loan retries a possibly missed
			// disbursement; the derived operation id keeps it idempotent.
			current, getErr := s.store.Get(ctx, loanID)
			if getErr != nil {
				return Loan{}, getErr
			}
			if current.Status != StatusApproved {
				return Loan{}, ErrInvalidTransition
			}
			loan = current
		} else {
			return Loan{}, err
		}
	}

	opID := fmt.Sprintf("loan:disburse:%s", loan.ID)
	if _, err := s.funds.Credit(ctx, loan.UserID, loan.Principal, ledger.KindLoanDisbursement, "loan disbursement", opID); err != nil {
		s.logger.Error("loan approved but disbursement failed, re-approve to retry",
			"loan_id", loan.ID, "user_id", loan.UserID, "error", err)
		return Loan{}, err
	}
	s.notify(ctx, notification.KindLoanDecided, loan.UserID, fmt.Sprintf("loan approved, %s disbursed", money.Format(loan.Principal)))
	return loan, nil
}

// Repay collects the full amount owed and closes the loan. If the debit
// fails for insufficient funds the loan stays approved.
func (s *Service) Repay(ctx context.Context, loanID string) (Loan, error) {
	loan, err := s.store.Get(ctx, loanID)
	if err != nil {
		return Loan{}, err
	}
	if loan.Status != StatusApproved {
		return Loan{}, ErrInvalidTransition
	}

	opID := fmt.Sprintf("loan:repay:%s", loan.ID)
	if _, err := s.funds.Debit(ctx, loan.UserID, loan.TotalOwed, ledger.KindLoanRepayment, "loan repayment", opID); err != nil {
		return Loan{}, err
	}

	paid, err := s.store.UpdateStatus(ctx, loanID, StatusApproved, StatusPaid, "")
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// A concurrent repayment won; the debit above deduplicated on the
			// operation id, so nothing was collected twice.
			return s.store.Get(ctx, loanID)
		}
		return Loan{}, err
	}
	s.notify(ctx, notification.KindLoanRepaid, paid.UserID, fmt.Sprintf("loan settled, %s collected", money.Format(paid.TotalOwed)))
	return paid, nil
}

// Get fetches a loan.
func (s *Service) Get(ctx context.Context, loanID string) (Loan, error) {
	return s.store.Get(ctx, loanID)
}

// ListForUser returns the user's loans, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Loan, error) {
	return s.store.ListForUser(ctx, userID)
}

// Overdue reports approved loans past their due time.
func (s *Service) Overdue(ctx context.Context) ([]Loan, error) {
	approved, err := s.store.ListApproved(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var overdue []Loan
	for _, loan := range approved {
		if loan.Overdue(now) {
			overdue = append(overdue, loan)
		}
	}
	return overdue, nil
}
