// README: Common money value object used across modules.
package types

import (
	"errors"
	"fmt"
	"math"
)

const DefaultCurrency = "USD"

// Money holds an amount in minor units (cents) so arithmetic stays exact.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

var ErrBadAmount = errors.New("amount must be a non-negative value with at most two decimals")

// MoneyFromFloat converts a major-unit value (e.g. 19.99) into Money.
// Values with more than two decimal places are rejected, not rounded.
func MoneyFromFloat(v float64, currency string) (Money, error) {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return Money{}, ErrBadAmount
	}
	cents := v * 100
	rounded := math.Round(cents)
	if math.Abs(cents-rounded) > 1e-6 {
		return Money{}, ErrBadAmount
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: int64(rounded), Currency: currency}, nil
}

// Cents builds Money directly from minor units.
func Cents(amount int64, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: amount, Currency: currency}
}

func (m Money) Float64() float64 { return float64(m.Amount) / 100 }

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount + o.Amount, Currency: m.currencyOr(o.Currency)}
}

func (m Money) MulN(n int64) Money {
	return Money{Amount: m.Amount * n, Currency: m.Currency}
}

func (m Money) IsZero() bool { return m.Amount == 0 }

func (m Money) String() string {
	return fmt.Sprintf("%.2f %s", m.Float64(), m.currencyOr(DefaultCurrency))
}

func (m Money) currencyOr(fallback string) string {
	if m.Currency != "" {
		return m.Currency
	}
	return fallback
}
