package loans

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status tracks a loan through its lifecycle. Valid transitions are
// pending -> approved -> paid and pending -> rejected; anything else is an
// invalid transition.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

// Open reports whether the status still blocks a new loan request.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusApproved
}

// Loan is a short-duration credit advance with simple interest. TotalOwed is
// computed once at creation and never changes.
type Loan struct {
	ID                string
	UserID            string
	Principal         decimal.Decimal
	HourlyRatePercent decimal.Decimal
	DurationHours     int
	TotalOwed         decimal.Decimal
	Status            Status
	DueAt             *time.Time
	DecidedAt         *time.Time
	Note              string
	CreatedAt         time.Time
}

// Overdue reports whether an approved loan is past its due time. A reporting
// concern only; no penalty applies.
func (l Loan) Overdue(now time.Time) bool {
	return l.Status == StatusApproved && l.DueAt != nil && now.After(*l.DueAt)
}
