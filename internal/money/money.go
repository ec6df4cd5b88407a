package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Credits are a fixed-point quantity with two fraction digits. Amounts are
// rounded half-up at the point they are persisted; intermediate math may
// carry more precision.
const fractionDigits = 2

// Round2 rounds an amount half-up to two fraction digits. Amounts are never
// negative in the ledger, so half-away-from-zero and half-up coincide.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(fractionDigits)
}

// Parse converts a user-supplied amount string into a decimal, rejecting
// anything that is not a plain number with at most two fraction digits.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Exponent() < -fractionDigits {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d fraction digits", raw, fractionDigits)
	}
	return amount, nil
}

// Format renders an amount with exactly two fraction digits.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(fractionDigits)
}
