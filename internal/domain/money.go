package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places every stored amount carries.
const MoneyScale = 2

// MaxMoney is the largest amount a balance or a single record can hold.
const MaxMoney = Money(math.MaxInt64)

var (
	centsPerUnit = decimal.New(1, MoneyScale)
	maxCents     = decimal.NewFromInt(math.MaxInt64)
	minCents     = decimal.NewFromInt(math.MinInt64)
)

// Money is a fixed-point amount stored as integer cents (10^-2).
// Arithmetic on Money is exact; percentage math goes through shopspring/decimal
// and is rounded back with MoneyFromDecimal.
type Money int64

// NewMoneyFromCents creates a Money value from minor units.
func NewMoneyFromCents(cents int64) Money {
	return Money(cents)
}

// ParseMoney parses a decimal string such as "40", "40.5" or "40.00".
// More than two fractional digits is rejected rather than rounded.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal", ErrInvalidAmount, s)
	}
	if d.Exponent() < -MoneyScale && !d.Equal(d.Truncate(MoneyScale)) {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, MoneyScale)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal converts a decimal to Money, rounding half away from zero
// to two places. For the non-negative amounts the ledger handles this is
// round-half-up. Values that do not fit in int64 cents are rejected.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Round(MoneyScale).Mul(centsPerUnit)
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d.String())
	}
	return Money(cents.IntPart()), nil
}

// Cents returns the amount in minor units.
func (m Money) Cents() int64 {
	return int64(m)
}

// Decimal converts the amount to a shopspring decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -MoneyScale)
}

func (m Money) IsPositive() bool { return m > 0 }

func (m Money) IsNegative() bool { return m < 0 }

func (m Money) Add(other Money) Money { return m + other }

func (m Money) Sub(other Money) Money { return m - other }

// CheckedAdd returns m + other, or ErrInvalidAmount when the sum overflows.
func (m Money) CheckedAdd(other Money) (Money, error) {
	sum := m + other
	if (other > 0 && sum < m) || (other < 0 && sum > m) {
		return 0, fmt.Errorf("%w: %s + %s overflows", ErrInvalidAmount, m, other)
	}
	return sum, nil
}

// String renders the amount with exactly two decimals, e.g. "58.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(MoneyScale)
}

// MarshalJSON serializes the amount as a string to keep precision at the API boundary.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a JSON string ("40.00") or a JSON number (40.00).
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
