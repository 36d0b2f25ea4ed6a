package incentive

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// MoneyPlaces is the number of decimal places payouts are rounded to.
const MoneyPlaces = 2

// Money is an amount in a single ISO-4217 currency.
// Arithmetic between two values requires the same currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney validates the currency code and returns the value.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if err := validateCurrency(currency); err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// ZeroMoney returns a zero amount in the currency.
func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func validateCurrency(code string) error {
	if len(code) != 3 {
		return invalid("currency", "%q is not a 3-letter ISO code", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return invalid("currency", "%q is not a 3-letter ISO code", code)
		}
	}
	return nil
}

func (m Money) sameCurrency(o Money) error {
	if m.Currency != o.Currency {
		return invalid("currency", "mismatch %s vs %s", m.Currency, o.Currency)
	}
	return nil
}

// Add returns m+o. Fails on currency mismatch.
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

// Sub returns m-o. Fails on currency mismatch.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}, nil
}

// Cmp compares two amounts of the same currency (-1, 0, +1).
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	return m.Amount.Cmp(o.Amount), nil
}

func (m Money) Mul(f decimal.Decimal) Money { return Money{Amount: m.Amount.Mul(f), Currency: m.Currency} }
func (m Money) Round() Money                { return Money{Amount: m.Amount.Round(MoneyPlaces), Currency: m.Currency} }
func (m Money) IsZero() bool                { return m.Amount.IsZero() }
func (m Money) IsNegative() bool            { return m.Amount.IsNegative() }
func (m Money) IsPositive() bool            { return m.Amount.IsPositive() }

// Equal reports whether both currency and amount match.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

func (m Money) String() string {
	return m.Amount.StringFixed(MoneyPlaces) + " " + m.Currency
}

// =============================================================================
// PERCENTAGE
// =============================================================================

// Percentage is a non-negative percent value. 120 means 120%.
type Percentage struct {
	Value decimal.Decimal `json:"value"`
}

var hundred = decimal.NewFromInt(100)

// NewPercentage rejects negative values.
func NewPercentage(v decimal.Decimal) (Percentage, error) {
	if v.IsNegative() {
		return Percentage{}, invalid("percentage", "must not be negative, got %s", v)
	}
	return Percentage{Value: v}, nil
}

// Pct builds a Percentage from a float literal. Intended for tests and fixtures.
func Pct(v float64) Percentage {
	return Percentage{Value: decimal.NewFromFloat(v)}
}

// Fraction returns the percentage as a ratio (120% -> 1.2).
func (p Percentage) Fraction() decimal.Decimal { return p.Value.Div(hundred) }

func (p Percentage) LessThan(o Percentage) bool { return p.Value.LessThan(o.Value) }
func (p Percentage) Equal(o Percentage) bool    { return p.Value.Equal(o.Value) }
func (p Percentage) String() string             { return p.Value.String() + "%" }

// =============================================================================
// DATE RANGE
// =============================================================================

// DateRange is an inclusive range of calendar days in UTC.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Date returns midnight UTC for the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return Date(t.Year(), t.Month(), t.Day())
}

// NewDateRange normalizes both ends to day granularity and checks start <= end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: truncateDay(start), End: truncateDay(end)}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate checks the range is well-formed.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return invalid("period", "start and end are required")
	}
	if truncateDay(r.End).Before(truncateDay(r.Start)) {
		return invalid("period", "end %s before start %s", r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	return nil
}

// Contains returns true if the day of t is within [Start, End].
func (r DateRange) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(truncateDay(r.Start)) && !d.After(truncateDay(r.End))
}

// Covers returns true if o lies entirely inside r.
func (r DateRange) Covers(o DateRange) bool {
	return r.Contains(o.Start) && r.Contains(o.End)
}

// Days returns the number of days in the range, both ends included.
func (r DateRange) Days() int {
	return int(truncateDay(r.End).Sub(truncateDay(r.Start)).Hours()/24) + 1
}

// Key is a stable identifier for the range, used in uniqueness checks.
func (r DateRange) Key() string {
	return r.Start.Format(time.DateOnly) + "/" + r.End.Format(time.DateOnly)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
}
