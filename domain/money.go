package domain

import (
	"github.com/shopspring/decimal"
)

// ParseMoney parses a decimal money string. An empty string is zero, matching
// how unset cost fields behave.
func ParseMoney(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError("amount", "not a valid decimal amount")
	}
	return d, nil
}

// FormatMoney renders a decimal with exactly two fraction digits, the wire
// format for every monetary field.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
