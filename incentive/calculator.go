/*
calculator.go - Turns performance facts into a bounded payout

PURPOSE:
  Calculate is the pure core of a calculation run. Given a plan and the
  facts for one employee and period it produces a new Calculation in status
  Calculated (or Ineligible). It performs no I/O; the Engine persists the
  result and handles supersede.

FORMULA:
  achievement = actual / target * 100
  gross       = flat slab ? rate
                          : target * rate/100 * min(achievement, cap)/100
  gross       = gross * prorataFactor
  gross       = clamp(gross, minimumPayout, maximumPayout)   (annotated)
  net         = max(gross - deduction(gross), 0)              (annotated)

  Amounts are rounded to MoneyPlaces after clamping. The minimum payout is
  only applied to a positive gross: a zero-rate slab pays nothing.

SEE ALSO:
  - achievement.go: ComputeAchievement
  - slab.go: ResolveSlab
  - engine.go: Engine.Calculate (persistence + supersede)
*/
package incentive

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DeductionFunc returns the amount to deduct from a gross payout.
type DeductionFunc func(gross Money) (Money, error)

// NoDeduction deducts nothing.
func NoDeduction(gross Money) (Money, error) {
	return ZeroMoney(gross.Currency), nil
}

// RateDeduction deducts a percentage of gross.
func RateDeduction(rate Percentage) DeductionFunc {
	return func(gross Money) (Money, error) {
		return gross.Mul(rate.Fraction()), nil
	}
}

// FixedDeduction deducts a fixed amount.
func FixedDeduction(amount Money) DeductionFunc {
	return func(gross Money) (Money, error) {
		if amount.Currency != gross.Currency {
			return Money{}, invalid("deduction", "currency %s differs from payout currency %s", amount.Currency, gross.Currency)
		}
		return amount, nil
	}
}

// Facts are the raw performance inputs for one employee and period.
type Facts struct {
	ActualValue   decimal.Decimal
	BaselineValue decimal.Decimal
	// TenureDays worked in the period. Nil means the whole period.
	TenureDays *int
	Deduction  DeductionFunc
}

// CalculateInput identifies what is being calculated and by whom.
type CalculateInput struct {
	EmployeeID string
	Period     DateRange
	Facts      Facts
	Actor      string
	At         time.Time
}

// Calculate produces a new, unsaved Calculation. ID and Version are left for the caller.
func Calculate(plan *Plan, in CalculateInput) (*Calculation, error) {
	if plan == nil {
		return nil, invalid("plan", "is required")
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if plan.Status != PlanActive {
		return nil, &InvalidStateError{Entity: "plan", ID: plan.ID, Status: string(plan.Status), Action: "calculate"}
	}
	if in.EmployeeID == "" {
		return nil, invalid("employee_id", "is required")
	}
	if err := in.Period.Validate(); err != nil {
		return nil, err
	}
	if !plan.EffectivePeriod.Covers(in.Period) {
		return nil, invalid("period", "%s is outside plan effective period %s", in.Period, plan.EffectivePeriod)
	}

	periodDays := in.Period.Days()
	tenure := periodDays
	if in.Facts.TenureDays != nil {
		tenure = *in.Facts.TenureDays
	}

	ach, err := ComputeAchievement(plan.Target, AchievementInput{
		Actual:     in.Facts.ActualValue,
		Baseline:   in.Facts.BaselineValue,
		TenureDays: tenure,
		PeriodDays: periodDays,
		Proratable: plan.Proratable,
	})
	if err != nil {
		return nil, err
	}

	calc := &Calculation{
		EmployeeID:            in.EmployeeID,
		PlanID:                plan.ID,
		Period:                in.Period,
		TargetValue:           plan.Target.TargetValue,
		ActualValue:           in.Facts.ActualValue,
		AchievementPercentage: ach.Percentage,
		GrossIncentive:        ZeroMoney(plan.Currency),
		NetIncentive:          ZeroMoney(plan.Currency),
		Status:                StatusCalculated,
		CalculatedAt:          in.At,
		CalculatedBy:          in.Actor,
	}
	if plan.Proratable {
		f := ach.ProrataFactor
		calc.ProrataFactor = &f
	}

	if !ach.Eligible {
		calc.Status = StatusIneligible
		calc.AdjustmentReason = fmt.Sprintf("achievement %s below minimum threshold %s%%", ach.Percentage, plan.Target.MinimumThreshold)
		return calc, nil
	}

	slab, err := ResolveSlab(plan.Slabs, ach.Percentage)
	if err != nil {
		var nse *NoApplicableSlabError
		if errors.As(err, &nse) {
			nse.PlanID = plan.ID
		}
		return nil, err
	}
	calc.AppliedSlabID = slab.ID

	var notes []string

	gross := grossFor(plan, slab, ach.Percentage)
	gross = gross.Mul(ach.ProrataFactor)

	if plan.MaximumPayout != nil && gross.Amount.GreaterThan(plan.MaximumPayout.Amount) {
		notes = append(notes, fmt.Sprintf("capped at maximum payout %s (computed %s)", *plan.MaximumPayout, gross.Round()))
		gross = *plan.MaximumPayout
	}
	if plan.MinimumPayout != nil && gross.IsPositive() && gross.Amount.LessThan(plan.MinimumPayout.Amount) {
		notes = append(notes, fmt.Sprintf("raised to minimum payout %s (computed %s)", *plan.MinimumPayout, gross.Round()))
		gross = *plan.MinimumPayout
	}
	gross = gross.Round()

	deduct := in.Facts.Deduction
	if deduct == nil {
		deduct = NoDeduction
	}
	deduction, err := deduct(gross)
	if err != nil {
		return nil, fmt.Errorf("deduction: %w", err)
	}
	if deduction.IsNegative() {
		return nil, invalid("deduction", "must not be negative, got %s", deduction)
	}
	net, err := gross.Sub(deduction)
	if err != nil {
		return nil, err
	}
	if net.IsNegative() {
		notes = append(notes, fmt.Sprintf("deduction %s exceeds gross, net floored at zero", deduction.Round()))
		net = ZeroMoney(gross.Currency)
	}

	calc.GrossIncentive = gross
	calc.NetIncentive = net.Round()
	calc.AdjustmentReason = strings.Join(notes, "; ")
	return calc, nil
}

func grossFor(plan *Plan, slab Slab, achievement Percentage) Money {
	if slab.IsFlat {
		return Money{Amount: slab.PayoutRate, Currency: plan.Currency}
	}
	counted := achievement
	if limit := plan.payoutCap(); limit.LessThan(counted) {
		counted = limit
	}
	amount := plan.Target.TargetValue.
		Mul(slab.PayoutRate.Div(hundred)).
		Mul(counted.Fraction())
	return Money{Amount: amount, Currency: plan.Currency}
}
