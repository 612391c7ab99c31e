package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits kept for balances, prices and amounts.
const MoneyScale = 2

// ErrMalformedAmount is returned for amounts that are not plain decimals with at most two fractional digits.
var ErrMalformedAmount = errors.New("malformed amount")

// ParseAmount parses a decimal string such as "6.00". The sign is not checked here;
// non-positive amounts are rejected by the ledger operations themselves.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	if !d.Equal(d.Round(MoneyScale)) {
		return decimal.Zero, fmt.Errorf("%w: %q has more than %d fractional digits", ErrMalformedAmount, s, MoneyScale)
	}
	return d, nil
}

// FormatAmount renders d with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}
