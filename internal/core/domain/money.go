package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	TZS Currency = "TZS"
)

// minorUnits lists currencies whose minor unit is not two decimal places.
var minorUnits = map[Currency]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"CLP": 0,
	"ISK": 0,
	"UGX": 0,
	"BHD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

// ParseCurrency normalizes a 3-letter currency code.
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}
	return Currency(code), nil
}

// Exponent returns the number of decimal places of the currency's minor unit.
func (c Currency) Exponent() int32 {
	if exp, ok := minorUnits[c]; ok {
		return exp
	}
	return 2
}

// Money holds an amount in minor units.
// Example: 1000 TZS is stored as 100000. $10.50 is stored as 1050.
type Money struct {
	Amount   int64
	Currency Currency
}

func NewMoney(amount int64, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Add adds two amounts of the same currency, rejecting int64 overflow.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: cannot add %s to %s", ErrCurrencyMismatch, other.Currency, m.Currency)
	}
	if (other.Amount > 0 && m.Amount > math.MaxInt64-other.Amount) ||
		(other.Amount < 0 && m.Amount < math.MinInt64-other.Amount) {
		return Money{}, ErrAmountOutOfRange
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Subtract subtracts an amount of the same currency. The result may be negative;
// callers decide whether that is acceptable.
func (m Money) Subtract(other Money) (Money, error) {
	return m.Add(Money{Amount: -other.Amount, Currency: other.Currency})
}

func (m Money) String() string {
	return decimal.New(m.Amount, -m.Currency.Exponent()).StringFixed(m.Currency.Exponent()) + " " + string(m.Currency)
}

// RoundingMode selects how FX conversions are rounded to the target minor unit.
type RoundingMode string

const (
	RoundHalfEven RoundingMode = "half_even"
	RoundHalfUp   RoundingMode = "half_up"
	RoundDown     RoundingMode = "down"
)

func ParseRoundingMode(s string) (RoundingMode, error) {
	switch mode := RoundingMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case RoundHalfEven, RoundHalfUp, RoundDown:
		return mode, nil
	case "":
		return RoundHalfEven, nil
	default:
		return "", fmt.Errorf("unknown rounding mode %q", s)
	}
}

// Exchange rates are stored as NUMERIC(20, 10): at most RateScale fractional
// digits and strictly below MaxRate.
const RateScale = 10

var MaxRate = decimal.New(1, 10)

// ValidateRate rejects rates the ledger cannot store exactly.
func ValidateRate(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return fmt.Errorf("%w: rate %s", ErrCurrencyMismatchWithoutRate, rate)
	}
	if !rate.Equal(rate.Truncate(RateScale)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidExchangeRate, rate, RateScale)
	}
	if rate.GreaterThanOrEqual(MaxRate) {
		return fmt.Errorf("%w: %s must be below %s", ErrInvalidExchangeRate, rate, MaxRate)
	}
	return nil
}

// Convert converts an amount in minor units of from into minor units of to
// using rate (units of to per unit of from), rounded with mode.
func Convert(amount int64, from, to Currency, rate decimal.Decimal, mode RoundingMode) (int64, error) {
	if !rate.IsPositive() {
		return 0, fmt.Errorf("%w: rate %s", ErrCurrencyMismatchWithoutRate, rate)
	}

	converted := decimal.New(amount, -from.Exponent()).Mul(rate).Shift(to.Exponent())

	switch mode {
	case RoundHalfUp:
		converted = converted.Round(0)
	case RoundDown:
		converted = converted.Truncate(0)
	default:
		converted = converted.RoundBank(0)
	}

	if !converted.BigInt().IsInt64() {
		return 0, ErrAmountOutOfRange
	}
	return converted.IntPart(), nil
}
