// Package types provides value types shared across the ledger.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor units digits carried by an Amount.
const Scale = 2

var (
	// ErrAmountOverflow is returned when arithmetic leaves the int64 range.
	ErrAmountOverflow = errors.New("types: amount overflow")

	// ErrAmountFormat is returned when a decimal string cannot be represented
	// exactly in minor units.
	ErrAmountFormat = errors.New("types: invalid amount format")
)

var minorFactor = decimal.New(1, Scale)

// Amount is a monetary value in minor units (cents). All arithmetic is
// integer-only; decimal strings exist only at the edges.
//
// Examples:
//   - Amount(4000) = "40.00"
//   - Amount(5) = "0.05"
type Amount int64

// Zero is the zero Amount.
const Zero Amount = 0

// ParseAmount converts a decimal string such as "40.00" or "12.5" into
// minor units. More than Scale fraction digits is rejected rather than
// rounded.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrAmountFormat)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrAmountFormat, s)
	}

	minor := d.Mul(minorFactor)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", ErrAmountFormat, s, Scale)
	}
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || minor.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, ErrAmountOverflow
	}

	return Amount(minor.IntPart()), nil
}

// MustParseAmount is like ParseAmount but panics on error. Use for
// hardcoded values.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Minor returns the raw minor-unit value.
func (a Amount) Minor() int64 { return int64(a) }

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// IsNegative returns true if the amount is less than zero.
func (a Amount) IsNegative() bool { return a < 0 }

// Negate returns the amount with the opposite sign.
func (a Amount) Negate() Amount { return -a }

// Add returns a + other, or ErrAmountOverflow.
func (a Amount) Add(other Amount) (Amount, error) {
	if (other > 0 && a > math.MaxInt64-other) || (other < 0 && a < math.MinInt64-other) {
		return 0, ErrAmountOverflow
	}
	return a + other, nil
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

// String formats the amount in major units with exactly Scale decimals.
func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// MarshalJSON encodes the amount as a decimal string ("40.00") so that
// clients never see floating point values.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: amounts must be strings", ErrAmountFormat)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Sum adds amounts, stopping at the first overflow.
func Sum(values ...Amount) (Amount, error) {
	var total Amount
	for _, v := range values {
		next, err := total.Add(v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}
