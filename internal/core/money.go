package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is returned when arithmetic is attempted between two
// Money values of different currencies.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// Money is an immutable fixed-point monetary value: integer minor units
// (cents, paise, ...) plus an ISO 4217 currency code. Amounts are never
// negative; operations that would produce a negative amount fail instead.
type Money struct {
	amount   int64
	currency string
}

// NewMoney validates and constructs a Money value.
func NewMoney(amountMinorUnits int64, currency string) (Money, error) {
	if amountMinorUnits < 0 {
		return Money{}, fmt.Errorf("money amount cannot be negative, got %d", amountMinorUnits)
	}
	if len(currency) != 3 {
		return Money{}, fmt.Errorf("invalid currency code %q", currency)
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return Money{}, fmt.Errorf("invalid currency code %q", currency)
		}
	}
	return Money{amount: amountMinorUnits, currency: currency}, nil
}

// MustMoney is NewMoney for compile-time-known values; panics on bad input.
func MustMoney(amountMinorUnits int64, currency string) Money {
	m, err := NewMoney(amountMinorUnits, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Amount() int64    { return m.amount }
func (m Money) Currency() string { return m.currency }
func (m Money) IsZero() bool     { return m.amount == 0 }

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.amount, m.currency)
}

// Decimal returns the amount in minor units as a decimal, for exact cost
// averaging math.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.amount)
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}

// Add returns m + other. Fails on currency mismatch.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount + other.amount, currency: m.currency}, nil
}

// Sub returns m - other. Fails on currency mismatch or a negative result.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	if other.amount > m.amount {
		return Money{}, fmt.Errorf("money subtraction underflow: %s - %s", m, other)
	}
	return Money{amount: m.amount - other.amount, currency: m.currency}, nil
}

// MulInt scales the amount by a non-negative quantity.
func (m Money) MulInt(qty int64) (Money, error) {
	if qty < 0 {
		return Money{}, fmt.Errorf("cannot multiply money by negative quantity %d", qty)
	}
	return Money{amount: m.amount * qty, currency: m.currency}, nil
}

// Cmp returns -1, 0 or 1. Fails on currency mismatch.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case m.amount < other.amount:
		return -1, nil
	case m.amount > other.amount:
		return 1, nil
	default:
		return 0, nil
	}
}
