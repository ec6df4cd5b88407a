package wallet

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates no account exists for the user.
	ErrNotFound = errors.New("wallet not found")

	// ErrAlreadyExists indicates an account was already created for the user.
	ErrAlreadyExists = errors.New("wallet already exists")
)

// Store persists credit accounts. CompareAndSetBalance is the only balance
// mutation primitive: a plain read-then-write is not part of the contract,
// which is what prevents lost updates when two operations race on the same
// account.
type Store interface {
	Create(ctx context.Context, userID string, startingBalance decimal.Decimal) error
	Get(ctx context.Context, userID string) (Account, error)
	// CompareAndSetBalance updates the balance only if the stored value still
	// equals expected. It returns false (and no error) when the comparison
	// fails, signalling the caller to re-read and retry.
	CompareAndSetBalance(ctx context.Context, userID string, expected, next decimal.Decimal) (bool, error)
	List(ctx context.Context) ([]Account, error)
}
