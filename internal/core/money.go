// Package core provides money parsing and handling utilities.
//
// Amounts are stored as signed integer cents. Parsing and formatting go
// through decimal values so that no float ever reaches a persisted amount.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a signed fixed-point amount with two fractional digits.
type Money struct {
	Cents int64
}

// MaxAbsCents bounds a single amount to 100 billion units. Sums of amounts
// within the bound stay far from int64 overflow.
const MaxAbsCents int64 = 10_000_000_000_000

var maxAbs = decimal.NewFromInt(MaxAbsCents)

// Cents builds a Money from an integer number of cents.
func Cents(c int64) Money {
	return Money{Cents: c}
}

// ParseMoney converts a decimal string to Money with half-up rounding.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted, and the
// value may be signed. Non-numeric input, NaN and infinities are rejected with
// ErrInvalidAmount.
//
// Examples:
//
//	ParseMoney("12.34")   -> 1234 cents
//	ParseMoney("-45,50")  -> -4550 cents
//	ParseMoney("12.345")  -> 1235 cents
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal rounds d to cents. Values beyond MaxAbsCents are rejected.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	c := d.Shift(2).Round(0)
	if c.Abs().GreaterThan(maxAbs) {
		return Money{}, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d.String())
	}
	return Money{Cents: c.IntPart()}, nil
}

// MoneyFromFloat converts f to Money, rejecting NaN and infinities.
func MoneyFromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(decimal.NewFromFloat(f))
}

// Decimal returns the amount as a decimal with two fractional digits.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount as "-45.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }
func (m Money) IsZero() bool      { return m.Cents == 0 }

// MarshalJSON encodes the amount as a fixed two-digit string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts quoted or bare decimal numbers.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return ErrInvalidAmount
	}
	s = strings.Trim(s, `"`)
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
