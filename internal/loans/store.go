package loans

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates no loan exists with the given id.
	ErrNotFound = errors.New("loan not found")

	// ErrInvalidTransition rejects a status change whose precondition no
	// longer holds; the compare step lost, so the loan was decided elsewhere.
	ErrInvalidTransition = errors.New("invalid loan transition")
)

// Store persists loan records. UpdateStatus follows the same per-row
// compare-and-set discipline as wallet balances: the update applies only if
// the stored status still matches from.
type Store interface {
	Create(ctx context.Context, loan Loan) error
	Get(ctx context.Context, id string) (Loan, error)
	// OpenLoanFor reports whether the user has a loan in pending or approved
	// state, the eligibility gate.
	OpenLoanFor(ctx context.Context, userID string) (bool, error)
	// UpdateStatus transitions from -> to atomically, recording the decision
	// note and timestamp. Returns ErrInvalidTransition if the stored status
	// is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status, note string) (Loan, error)
	ListForUser(ctx context.Context, userID string) ([]Loan, error)
	// ListApproved returns loans still in approved state, for overdue
	// reporting.
	ListApproved(ctx context.Context) ([]Loan, error)
}
