package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

var million = decimal.NewFromInt(1_000_000)

// ParseISK parses a signed ISK amount with at most two decimal places.
// Thousands separators are accepted.
func ParseISK(input string) (decimal.Decimal, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(input), ",", "")
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	unsigned := strings.TrimLeft(trimmed, "+-")
	if len(trimmed)-len(unsigned) > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.SplitN(unsigned, ".", 2)
	if parts[0] != "" && !isDigits(parts[0]) {
		return decimal.Zero, ErrInvalidAmount
	}
	if len(parts) == 2 {
		if parts[1] == "" || !isDigits(parts[1]) {
			return decimal.Zero, ErrInvalidAmount
		}
		if len(parts[1]) > 2 {
			return decimal.Zero, ErrTooManyDecimals
		}
	} else if parts[0] == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(strings.TrimPrefix(trimmed, "+"))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return value, nil
}

// FormatISK renders an amount with thousands separators and two decimals,
// e.g. "-1,234,567.80".
func FormatISK(value decimal.Decimal) string {
	fixed := value.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	if value.IsNegative() && !value.Round(2).IsZero() {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// Millions renders value / 1e6 with two decimals, the unit used in player
// facing notices.
func Millions(value decimal.Decimal) string {
	return value.Div(million).StringFixed(2)
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
