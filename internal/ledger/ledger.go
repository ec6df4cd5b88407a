package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidEntry rejects malformed entries before append: non-positive
	// amount, no wallet on either side, or a kind/status pairing outside the
	// allowed set.
	ErrInvalidEntry = errors.New("invalid ledger entry")

	// ErrDuplicateOperation indicates an entry with the same operation id was
	// already appended; the stored entry is returned alongside it so retries
	// are idempotent.
	ErrDuplicateOperation = errors.New("duplicate operation")

	// ErrNotPending indicates the entry has already been resolved.
	ErrNotPending = errors.New("entry is not pending")

	// ErrInvalidTransition rejects resolutions other than pending to a
	// terminal status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound indicates no entry exists with the given id.
	ErrNotFound = errors.New("entry not found")
)

// Kind classifies a balance-affecting event.
type Kind string

const (
	KindTransfer         Kind = "transfer"
	KindPurchase         Kind = "purchase"
	KindTopUp            Kind = "top_up"
	KindWithdrawal       Kind = "withdrawal"
	KindBonus            Kind = "bonus"
	KindLoanDisbursement Kind = "loan_disbursement"
	KindLoanRepayment    Kind = "loan_repayment"
)

// Status tracks an entry through the two-phase workflows. Completed and
// rejected are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

// Entry is one immutable record of a balance-affecting event. Amount is
// always positive; direction is implied by which of FromUserID/ToUserID is
// populated. BalanceAfter is only meaningful for completed entries and holds
// the affected wallet's balance right after the mutation (for transfers, the
// debited wallet's).
type Entry struct {
	ID           int64
	OpID         string
	FromUserID   *string
	ToUserID     *string
	Amount       decimal.Decimal
	Kind         Kind
	Status       Status
	Note         string
	BalanceAfter decimal.Decimal
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// EffectiveAt is the instant the entry's wallet mutation was applied:
// resolution time for two-phase entries, creation time otherwise. Replaying
// completed entries in this order from the starting balance reproduces the
// current balance.
func (e Entry) EffectiveAt() time.Time {
	if e.ResolvedAt != nil {
		return *e.ResolvedAt
	}
	return e.CreatedAt
}

// Touches reports whether the entry affects the given user's wallet.
func (e Entry) Touches(userID string) bool {
	if e.FromUserID != nil && *e.FromUserID == userID {
		return true
	}
	return e.ToUserID != nil && *e.ToUserID == userID
}

// Validate checks the invariants enforced at append time.
func (e Entry) Validate() error {
	if !e.Amount.IsPositive() {
		return ErrInvalidEntry
	}
	if e.FromUserID == nil && e.ToUserID == nil {
		return ErrInvalidEntry
	}
	switch e.Status {
	case StatusCompleted:
	case StatusPending:
		// Only the admin-decided workflows start out pending.
		if e.Kind != KindTopUp && e.Kind != KindWithdrawal {
			return ErrInvalidEntry
		}
	default:
		return ErrInvalidEntry
	}
	switch e.Kind {
	case KindTransfer:
		if e.FromUserID == nil || e.ToUserID == nil {
			return ErrInvalidEntry
		}
	case KindPurchase, KindWithdrawal, KindLoanRepayment:
		if e.FromUserID == nil || e.ToUserID != nil {
			return ErrInvalidEntry
		}
	case KindTopUp, KindBonus, KindLoanDisbursement:
		if e.ToUserID == nil || e.FromUserID != nil {
			return ErrInvalidEntry
		}
	default:
		return ErrInvalidEntry
	}
	return nil
}

// Ledger is a durable, ordered, append-only log of entries. Completed and
// rejected rows are never edited or deleted.
type Ledger interface {
	// Append assigns the id and timestamp and stores the entry. If an entry
	// with the same operation id already exists it is returned together with
	// ErrDuplicateOperation.
	Append(ctx context.Context, entry Entry) (Entry, error)
	// ResolvePending moves a pending entry to completed or rejected. The
	// status check-and-update is atomic, so exactly one caller wins.
	// balanceAfter records the post-mutation balance on approval and is
	// ignored for rejections.
	ResolvePending(ctx context.Context, id int64, status Status, note string, balanceAfter decimal.Decimal) (Entry, error)
	Get(ctx context.Context, id int64) (Entry, error)
	FindByOpID(ctx context.Context, opID string) (Entry, error)
	// ListForUser returns entries touching the user, newest first. A zero
	// before cursor starts from the latest entry; passing the id of the last
	// seen entry resumes the listing.
	ListForUser(ctx context.Context, userID string, limit int, before int64) ([]Entry, error)
	ListAll(ctx context.Context, limit int, before int64) ([]Entry, error)
}
