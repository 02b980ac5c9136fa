// Package money provides decimal amount parsing and validation shared by the
// wallet and trading services. All balances, prices and carbon quantities are
// arbitrary-precision decimals; floats never touch ledger math.
package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Parse parses a decimal amount string. Empty strings and malformed numbers
// are rejected.
func Parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParsePositive parses a decimal amount string and requires it to be > 0.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// RequirePositive validates an already-parsed amount.
func RequirePositive(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
