package shared

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountScale is the number of decimal digits allowed on money values
const MaxAmountScale = 2

// MaxAmount is the largest money value the stores can hold (NUMERIC(12, 2))
var MaxAmount = decimal.RequireFromString("9999999999.99")

// ParseAmount parses a decimal string such as "60.00" without losing its scale
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, ErrAmountRequired
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmountFormat
	}
	return amount, nil
}

// ExceedsMax reports whether amount is larger than MaxAmount
func ExceedsMax(amount decimal.Decimal) bool {
	return amount.GreaterThan(MaxAmount)
}

// ExceedsScale reports whether amount carries more than MaxAmountScale decimal digits.
// Trailing zeros do not count, so "60.100" is accepted.
func ExceedsScale(amount decimal.Decimal) bool {
	return !amount.Equal(amount.Truncate(MaxAmountScale))
}
