package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a user's single credit balance. One account per user, created
// at registration and never deleted. Balance never goes negative after a
// committed operation.
type Account struct {
	UserID          string
	Balance         decimal.Decimal
	StartingBalance decimal.Decimal
	UpdatedAt       time.Time
}
