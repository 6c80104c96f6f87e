// Package core provides money parsing and handling utilities.
//
// Amounts cross the system boundary as decimal strings in major units and
// are stored as integer cents. Conversions go through shopspring/decimal so
// "12.34" becomes exactly 1234 cents.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// ErrAmountTooLarge is an ErrInvalidAmount whose cents do not fit in an int64.
var ErrAmountTooLarge = fmt.Errorf("%w: too large", ErrInvalidAmount)

// ParseMajor parses a decimal major-unit amount. A comma is accepted as the
// decimal separator when no dot is present.
func ParseMajor(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParsePositiveMajor parses s and rejects zero and negative amounts.
func ParsePositiveMajor(s string) (decimal.Decimal, error) {
	d, err := ParseMajor(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if _, err := MoneyFromMajor(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// MoneyFromMajor converts a major-unit amount to cents, multiplying by 100
// and truncating toward zero. Amounts outside the int64 cents range return
// ErrAmountTooLarge.
func MoneyFromMajor(amount decimal.Decimal) (Money, error) {
	cents := amount.Mul(hundred).Truncate(0)
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return Money{}, ErrAmountTooLarge
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Major returns the amount in major units.
func (m Money) Major() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float64 returns the major-unit value for display and aggregation output.
func (m Money) Float64() float64 {
	return m.Major().InexactFloat64()
}

// String formats the amount with two decimal places.
func (m Money) String() string {
	return m.Major().StringFixed(2)
}

// CentsToMajor converts an aggregated cents value (possibly fractional, as
// produced by an average) to major units.
func CentsToMajor(cents float64) float64 {
	return decimal.NewFromFloat(cents).Div(hundred).InexactFloat64()
}
