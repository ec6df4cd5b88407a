package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arcadia-social/arcadia-credits/internal/ledger"
	"github.com/arcadia-social/arcadia-credits/internal/money"
	"github.com/arcadia-social/arcadia-credits/internal/notification"
	"github.com/arcadia-social/arcadia-credits/internal/wallet"
)

var (
	// ErrInvalidAmount rejects non-positive amounts before any mutation.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSelfTransfer rejects transfers where source and destination match.
	ErrSelfTransfer = errors.New("cannot transfer to own wallet")

	// ErrRecipientNotFound indicates the destination wallet does not exist.
	ErrRecipientNotFound = errors.New("recipient wallet not found")

	// ErrInsufficientFunds indicates the source balance cannot cover the
	// amount. A business outcome, not a system failure.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict surfaces when the compare-and-set retry budget is
	// exhausted. Retryable: the caller should re-read state first.
	ErrConflict = errors.New("balance contention, retry")

	// ErrUnavailable surfaces storage timeouts. Retryable; the caller must
	// not assume the operation did or did not apply.
	ErrUnavailable = errors.New("storage unavailable")
)

// Params tunes the engine. Zero values fall back to sensible defaults.
type Params struct {
	StartingBalance decimal.Decimal
	CASAttempts     int
	RetryBackoff    time.Duration
}

const (
	defaultCASAttempts  = 5
	defaultRetryBackoff = 2 * time.Millisecond
)

// Engine is the only component that mutates wallet balances. Every change is
// a read-compute-compare-and-set cycle with bounded retries, and every
// committed change is documented by exactly one ledger entry.
type Engine struct {
	wallets  wallet.Store
	entries  ledger.Ledger
	notifier notification.Notifier
	logger   *slog.Logger
	params   Params
}

// NewEngine wires the engine over its two stores. The notifier may be nil.
func NewEngine(wallets wallet.Store, entries ledger.Ledger, notifier notification.Notifier, logger *slog.Logger, params Params) *Engine {
	if params.CASAttempts <= 0 {
		params.CASAttempts = defaultCASAttempts
	}
	if params.RetryBackoff <= 0 {
		params.RetryBackoff = defaultRetryBackoff
	}
	return &Engine{wallets: wallets, entries: entries, notifier: notifier, logger: logger, params: params}
}

func (e *Engine) notify(ctx context.Context, kind, userID, body string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, notification.Message{Kind: kind, Destination: userID, Body: body}); err != nil {
		e.logger.Warn("notification failed", slog.String("kind", kind), slog.Any("error", err))
	}
}

// CreateWallet provisions the one wallet a user owns, seeded with the
// configured starting balance. Called once at registration.
func (e *Engine) CreateWallet(ctx context.Context, userID string) error {
	return e.wallets.Create(ctx, userID, e.params.StartingBalance)
}

// WalletOf returns the user's account.
func (e *Engine) WalletOf(ctx context.Context, userID string) (wallet.Account, error) {
	return e.wallets.Get(ctx, userID)
}

// Accounts lists every account, for admin overviews.
func (e *Engine) Accounts(ctx context.Context) ([]wallet.Account, error) {
	return e.wallets.List(ctx)
}

// StatementFor pages the user's ledger view, newest first.
func (e *Engine) StatementFor(ctx context.Context, userID string, limit int, before int64) ([]ledger.Entry, error) {
	return e.entries.ListForUser(ctx, userID, limit, before)
}

// AllEntries pages the full ledger, newest first.
func (e *Engine) AllEntries(ctx context.Context, limit int, before int64) ([]ledger.Entry, error) {
	return e.entries.ListAll(ctx, limit, before)
}

// Entry fetches a single ledger entry.
func (e *Engine) Entry(ctx context.Context, id int64) (ledger.Entry, error) {
	return e.entries.Get(ctx, id)
}

// Transfer atomically moves amount from one wallet to another and appends a
// single completed entry referencing both. No partial transfer is ever
// observable: if the credit side cannot commit, the debit is compensated.
func (e *Engine) Transfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal, note, opID string) (ledger.Entry, error) {
	amount = money.Round2(amount)
	if !amount.IsPositive() {
		return ledger.Entry{}, ErrInvalidAmount
	}
	if fromUserID == toUserID {
		return ledger.Entry{}, ErrSelfTransfer
	}
	if _, err := e.wallets.Get(ctx, toUserID); err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return ledger.Entry{}, ErrRecipientNotFound
		}
		return ledger.Entry{}, e.storeErr(ctx, err)
	}

	opID, existing, done, err := e.checkOp(ctx, opID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if done {
		return existing, nil
	}

	fromBalance, err := e.applyDelta(ctx, fromUserID, amount.Neg())
	if err != nil {
		return ledger.Entry{}, err
	}

	if _, err := e.applyDelta(ctx, toUserID, amount); err != nil {
		e.compensate(ctx, fromUserID, amount, opID)
		return ledger.Entry{}, err
	}

	entry, err := e.entries.Append(ctx, ledger.Entry{
		OpID:         opID,
		FromUserID:   &fromUserID,
		ToUserID:     &toUserID,
		Amount:       amount,
		Kind:         ledger.KindTransfer,
		Status:       ledger.StatusCompleted,
		Note:         note,
		BalanceAfter: fromBalance,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateOperation) {
			// A concurrent retry with the same operation id committed first.
			// Undo our double application and report its entry.
			e.compensate(ctx, fromUserID, amount, opID)
			e.compensate(ctx, toUserID, amount.Neg(), opID)
			return entry, nil
		}
		// The append did not commit, so the balances must be rolled back:
		// a mutation without its entry breaks replay, and a retry on the
		// same operation id would apply the delta again.
		e.compensate(ctx, fromUserID, amount, opID)
		e.compensate(ctx, toUserID, amount.Neg(), opID)
		return ledger.Entry{}, e.storeErr(ctx, err)
	}
	e.notify(ctx, notification.KindTransferReceived, toUserID, fmt.Sprintf("received %s from %s", money.Format(amount), fromUserID))
	return entry, nil
}

// Debit removes amount from a single wallet and appends a completed entry.
// This is the primitive external features call for purchases and repayments.
func (e *Engine) Debit(ctx context.Context, userID string, amount decimal.Decimal, kind ledger.Kind, note, opID string) (ledger.Entry, error) {
	return e.singleSided(ctx, userID, amount, kind, note, opID, true)
}

// Credit adds amount to a single wallet and appends a completed entry. Used
// for play rewards, approved top-ups and loan disbursements.
func (e *Engine) Credit(ctx context.Context, userID string, amount decimal.Decimal, kind ledger.Kind, note, opID string) (ledger.Entry, error) {
	return e.singleSided(ctx, userID, amount, kind, note, opID, false)
}

func (e *Engine) singleSided(ctx context.Context, userID string, amount decimal.Decimal, kind ledger.Kind, note, opID string, debit bool) (ledger.Entry, error) {
	amount = money.Round2(amount)
	if !amount.IsPositive() {
		return ledger.Entry{}, ErrInvalidAmount
	}

	opID, existing, done, err := e.checkOp(ctx, opID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if done {
		return existing, nil
	}

	delta := amount
	if debit {
		delta = amount.Neg()
	}
	balance, err := e.applyDelta(ctx, userID, delta)
	if err != nil {
		return ledger.Entry{}, err
	}

	pending := ledger.Entry{
		OpID:         opID,
		Amount:       amount,
		Kind:         kind,
		Status:       ledger.StatusCompleted,
		Note:         note,
		BalanceAfter: balance,
	}
	if debit {
		pending.FromUserID = &userID
	} else {
		pending.ToUserID = &userID
	}

	entry, err := e.entries.Append(ctx, pending)
	if err != nil {
		// Duplicate or not, the delta applied above is not documented by an
		// entry of our own, so it must be rolled back before returning.
		e.compensate(ctx, userID, delta.Neg(), opID)
		if errors.Is(err, ledger.ErrDuplicateOperation) {
			return entry, nil
		}
		return ledger.Entry{}, e.storeErr(ctx, err)
	}
	return entry, nil
}

// RequestTopUp records a pending funds-injection request. No wallet mutation
// happens until an admin decides it.
func (e *Engine) RequestTopUp(ctx context.Context, userID string, amount decimal.Decimal, note, opID string) (ledger.Entry, error) {
	amount = money.Round2(amount)
	if !amount.IsPositive() {
		return ledger.Entry{}, ErrInvalidAmount
	}
	if _, err := e.wallets.Get(ctx, userID); err != nil {
		return ledger.Entry{}, e.storeErr(ctx, err)
	}
	return e.appendPending(ctx, ledger.Entry{
		OpID:     opID,
		ToUserID: &userID,
		Amount:   amount,
		Kind:     ledger.KindTopUp,
		Status:   ledger.StatusPending,
		Note:     note,
	})
}

// RequestWithdraw records a pending funds-extraction request. The balance is
// checked up front so obviously uncovered requests fail fast, but no hold is
// placed; DecideRequest re-checks funds at approval time.
func (e *Engine) RequestWithdraw(ctx context.Context, userID string, amount decimal.Decimal, note, opID string) (ledger.Entry, error) {
	amount = money.Round2(amount)
	if !amount.IsPositive() {
		return ledger.Entry{}, ErrInvalidAmount
	}
	acct, err := e.wallets.Get(ctx, userID)
	if err != nil {
		return ledger.Entry{}, e.storeErr(ctx, err)
	}
	if acct.Balance.LessThan(amount) {
		return ledger.Entry{}, ErrInsufficientFunds
	}
	return e.appendPending(ctx, ledger.Entry{
		OpID:       opID,
		FromUserID: &userID,
		Amount:     amount,
		Kind:       ledger.KindWithdrawal,
		Status:     ledger.StatusPending,
		Note:       note,
	})
}

func (e *Engine) appendPending(ctx context.Context, pending ledger.Entry) (ledger.Entry, error) {
	opID, existing, done, err := e.checkOp(ctx, pending.OpID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if done {
		return existing, nil
	}
	pending.OpID = opID

	entry, err := e.entries.Append(ctx, pending)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateOperation) {
			return entry, nil
		}
		return ledger.Entry{}, e.storeErr(ctx, err)
	}
	return entry, nil
}

// DecideRequest applies an admin decision to a pending top-up or withdrawal.
// Approval mutates the wallet first and then resolves the entry; the resolve
// step is a status compare-and-set, so when two admins race the loser's
// wallet mutation is compensated and reported as ErrNotPending.
func (e *Engine) DecideRequest(ctx context.Context, entryID int64, approve bool, adminNote string) (ledger.Entry, error) {
	entry, err := e.entries.Get(ctx, entryID)
	if err != nil {
		return ledger.Entry{}, e.storeErr(ctx, err)
	}
	if entry.Status != ledger.StatusPending {
		return ledger.Entry{}, ledger.ErrNotPending
	}

	if !approve {
		resolved, err := e.entries.ResolvePending(ctx, entryID, ledger.StatusRejected, adminNote, decimal.Zero)
		if err != nil {
			if errors.Is(err, ledger.ErrNotPending) {
				return ledger.Entry{}, err
			}
			return ledger.Entry{}, e.storeErr(ctx, err)
		}
		e.notify(ctx, notification.KindRequestDecided, requestOwner(entry), fmt.Sprintf("%s request rejected", entry.Kind))
		return resolved, nil
	}

	var userID string
	var delta decimal.Decimal
	switch entry.Kind {
	case ledger.KindTopUp:
		userID = *entry.ToUserID
		delta = entry.Amount
	case ledger.KindWithdrawal:
		userID = *entry.FromUserID
		delta = entry.Amount.Neg()
	default:
		return ledger.Entry{}, ledger.ErrInvalidEntry
	}

	balance, err := e.applyDelta(ctx, userID, delta)
	if err != nil {
		return ledger.Entry{}, err
	}

	resolved, err := e.entries.ResolvePending(ctx, entryID, ledger.StatusCompleted, adminNote, balance)
	if err != nil {
		// Whether another admin's decision won or the resolve itself failed,
		// the entry is not completed, so the applied delta must not stand.
		e.compensate(ctx, userID, delta.Neg(), fmt.Sprintf("decide:%d", entryID))
		if errors.Is(err, ledger.ErrNotPending) {
			return ledger.Entry{}, err
		}
		return ledger.Entry{}, e.storeErr(ctx, err)
	}
	e.notify(ctx, notification.KindRequestDecided, userID, fmt.Sprintf("%s request approved", entry.Kind))
	return resolved, nil
}

func requestOwner(entry ledger.Entry) string {
	if entry.Kind == ledger.KindTopUp && entry.ToUserID != nil {
		return *entry.ToUserID
	}
	if entry.FromUserID != nil {
		return *entry.FromUserID
	}
	return ""
}

// applyDelta runs one bounded read-compute-CAS cycle against a wallet.
func (e *Engine) applyDelta(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	backoff := e.params.RetryBackoff
	for attempt := 0; attempt < e.params.CASAttempts; attempt++ {
		acct, err := e.wallets.Get(ctx, userID)
		if err != nil {
			return decimal.Zero, e.storeErr(ctx, err)
		}
		next := acct.Balance.Add(delta)
		if next.IsNegative() {
			return decimal.Zero, ErrInsufficientFunds
		}
		ok, err := e.wallets.CompareAndSetBalance(ctx, userID, acct.Balance, next)
		if err != nil {
			return decimal.Zero, e.storeErr(ctx, err)
		}
		if ok {
			return next, nil
		}
		select {
		case <-ctx.Done():
			return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return decimal.Zero, ErrConflict
}

// compensate reapplies an inverse delta with a generous retry budget. It is
// only used to undo one half of a failed two-step mutation; failure here is
// logged loudly because it leaves the ledger and balances divergent.
func (e *Engine) compensate(ctx context.Context, userID string, delta decimal.Decimal, opID string) {
	for attempt := 0; attempt < e.params.CASAttempts*4; attempt++ {
		acct, err := e.wallets.Get(ctx, userID)
		if err != nil {
			break
		}
		next := acct.Balance.Add(delta)
		if next.IsNegative() {
			break
		}
		ok, err := e.wallets.CompareAndSetBalance(ctx, userID, acct.Balance, next)
		if err != nil {
			break
		}
		if ok {
			return
		}
		time.Sleep(e.params.RetryBackoff)
	}
	e.logger.Error("compensating balance update failed, manual reconciliation required",
		"user_id", userID, "delta", delta.String(), "op_id", opID)
}

// checkOp resolves the idempotency key before any mutation. A blank key gets
// a fresh uuid; a known key short-circuits to the recorded entry so retries
// cannot double-apply.
func (e *Engine) checkOp(ctx context.Context, opID string) (string, ledger.Entry, bool, error) {
	if opID == "" {
		return uuid.NewString(), ledger.Entry{}, false, nil
	}
	existing, err := e.entries.FindByOpID(ctx, opID)
	if err == nil {
		return opID, existing, true, nil
	}
	if errors.Is(err, ledger.ErrNotFound) {
		return opID, ledger.Entry{}, false, nil
	}
	return "", ledger.Entry{}, false, e.storeErr(ctx, err)
}

// storeErr maps deadline failures onto the retryable ErrUnavailable and
// passes domain sentinels through untouched.
func (e *Engine) storeErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, wallet.ErrNotFound), errors.Is(err, wallet.ErrAlreadyExists),
		errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrInvalidEntry),
		errors.Is(err, ledger.ErrNotPending), errors.Is(err, ledger.ErrInvalidTransition):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}
