package incentive

import "github.com/shopspring/decimal"

// AchievementPlaces is the precision achievement percentages are rounded to.
const AchievementPlaces = 4

// AchievementInput is the raw performance data for one employee and period.
type AchievementInput struct {
	Actual     decimal.Decimal
	Baseline   decimal.Decimal // only used for incremental targets
	TenureDays int
	PeriodDays int
	Proratable bool
}

// Achievement is the outcome of measuring performance against a target.
type Achievement struct {
	Percentage Percentage
	// ProrataFactor is a ratio in [0, 1]. It is 1 when the plan is not proratable.
	ProrataFactor decimal.Decimal
	Eligible      bool
}

// ComputeAchievement measures actual against target and derives the proration factor.
//
// Proration never touches the achievement percentage: achievement reflects
// performance, proration reflects how much of the period the employee worked.
func ComputeAchievement(target Target, in AchievementInput) (Achievement, error) {
	if err := target.Validate(); err != nil {
		return Achievement{}, err
	}
	if in.Actual.IsNegative() {
		return Achievement{}, invalid("actual", "must not be negative, got %s", in.Actual)
	}
	if in.PeriodDays <= 0 {
		return Achievement{}, invalid("period_days", "must be positive, got %d", in.PeriodDays)
	}
	if in.TenureDays < 0 {
		return Achievement{}, invalid("tenure_days", "must not be negative, got %d", in.TenureDays)
	}

	measured := in.Actual
	if target.AchievementType == AchievementIncremental {
		measured = decimal.Max(in.Actual.Sub(in.Baseline), decimal.Zero)
	}
	pct := measured.Div(target.TargetValue).Mul(hundred).Round(AchievementPlaces)

	factor := decimal.NewFromInt(1)
	if in.Proratable {
		worked := in.TenureDays
		if worked > in.PeriodDays {
			worked = in.PeriodDays
		}
		factor = decimal.NewFromInt(int64(worked)).Div(decimal.NewFromInt(int64(in.PeriodDays))).Round(AchievementPlaces)
	}

	return Achievement{
		Percentage:    Percentage{Value: pct},
		ProrataFactor: factor,
		Eligible:      !pct.LessThan(target.MinimumThreshold),
	}, nil
}
