package incentive_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incentive-engine/incentive"
)

func calcInput(actual string) incentive.CalculateInput {
	return incentive.CalculateInput{
		EmployeeID: "emp-1",
		Period:     q1,
		Facts:      incentive.Facts{ActualValue: dec(actual)},
		Actor:      "hr-admin",
		At:         time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCalculate_StandardScenario(t *testing.T) {
	// GIVEN: Slabs 0/0.5/1.0%, target 100000, actual 120000
	plan := standardPlan()

	// WHEN: Calculating
	calc, err := incentive.Calculate(plan, calcInput("120000"))
	require.NoError(t, err)

	// THEN: 120% achievement, top slab, gross 1000
	assert.Equal(t, incentive.StatusCalculated, calc.Status)
	assert.Equal(t, "120%", calc.AchievementPercentage.String())
	assert.Equal(t, "s2", calc.AppliedSlabID)
	assert.Equal(t, "1000.00 USD", calc.GrossIncentive.String())
	assert.Equal(t, "1000.00 USD", calc.NetIncentive.String())
	assert.Empty(t, calc.AdjustmentReason)
	assert.Nil(t, calc.ProrataFactor)
}

func TestCalculate_Proration(t *testing.T) {
	// GIVEN: A proratable plan and an employee who worked half the quarter
	plan := standardPlan()
	plan.Proratable = true
	in := calcInput("120000")
	in.Facts.TenureDays = intPtr(q1.Days() / 2)
	require.Equal(t, 90, q1.Days())

	// WHEN: Calculating
	calc, err := incentive.Calculate(plan, in)
	require.NoError(t, err)

	// THEN: Gross is halved, achievement untouched
	assert.Equal(t, "500.00 USD", calc.GrossIncentive.String())
	assert.Equal(t, "120%", calc.AchievementPercentage.String())
	require.NotNil(t, calc.ProrataFactor)
	assert.Equal(t, "0.5", calc.ProrataFactor.String())
}

func TestCalculate_MaximumPayoutClampIsAnnotated(t *testing.T) {
	plan := standardPlan()
	ceiling := usd("800")
	plan.MaximumPayout = &ceiling

	calc, err := incentive.Calculate(plan, calcInput("120000"))
	require.NoError(t, err)

	assert.Equal(t, "800.00 USD", calc.GrossIncentive.String())
	assert.Contains(t, calc.AdjustmentReason, "maximum payout")
	assert.Contains(t, calc.AdjustmentReason, "1000.00")
}

func TestCalculate_MinimumPayout(t *testing.T) {
	plan := standardPlan()
	floor := usd("600")
	plan.MinimumPayout = &floor

	// 90% -> 0.5% of 100000 * 0.9 = 450 -> raised to 600
	calc, err := incentive.Calculate(plan, calcInput("90000"))
	require.NoError(t, err)
	assert.Equal(t, "600.00 USD", calc.GrossIncentive.String())
	assert.Contains(t, calc.AdjustmentReason, "minimum payout")

	// 60% -> zero-rate slab pays nothing; minimum does not apply
	calc, err = incentive.Calculate(plan, calcInput("60000"))
	require.NoError(t, err)
	assert.True(t, calc.GrossIncentive.IsZero())
	assert.Equal(t, "s0", calc.AppliedSlabID)
}

func TestCalculate_PayoutCapRaisesAboveTargetReward(t *testing.T) {
	plan := standardPlan()
	uncapped := incentive.Pct(200)
	plan.PayoutCap = &uncapped

	calc, err := incentive.Calculate(plan, calcInput("120000"))
	require.NoError(t, err)
	assert.Equal(t, "1200.00 USD", calc.GrossIncentive.String())
}

func TestCalculate_FlatSlab(t *testing.T) {
	plan := standardPlan()
	plan.Slabs[2].IsFlat = true
	plan.Slabs[2].PayoutRate = dec("2500")

	calc, err := incentive.Calculate(plan, calcInput("150000"))
	require.NoError(t, err)
	assert.Equal(t, "2500.00 USD", calc.GrossIncentive.String())
}

func TestCalculate_Deductions(t *testing.T) {
	plan := standardPlan()

	in := calcInput("120000")
	in.Facts.Deduction = incentive.RateDeduction(incentive.Pct(10))
	calc, err := incentive.Calculate(plan, in)
	require.NoError(t, err)
	assert.Equal(t, "1000.00 USD", calc.GrossIncentive.String())
	assert.Equal(t, "900.00 USD", calc.NetIncentive.String())

	in.Facts.Deduction = incentive.FixedDeduction(usd("1500"))
	calc, err = incentive.Calculate(plan, in)
	require.NoError(t, err)
	assert.True(t, calc.NetIncentive.IsZero())
	assert.Contains(t, calc.AdjustmentReason, "net floored at zero")

	in.Facts.Deduction = incentive.FixedDeduction(incentive.Money{Amount: dec("1"), Currency: "EUR"})
	_, err = incentive.Calculate(plan, in)
	assert.ErrorIs(t, err, incentive.ErrValidation)
}

func TestCalculate_Ineligible(t *testing.T) {
	// GIVEN: Actual below the 50% minimum threshold
	calc, err := incentive.Calculate(standardPlan(), calcInput("40000"))
	require.NoError(t, err)

	// THEN: Ineligible with zero incentive but achievement recorded
	assert.Equal(t, incentive.StatusIneligible, calc.Status)
	assert.True(t, calc.GrossIncentive.IsZero())
	assert.True(t, calc.NetIncentive.IsZero())
	assert.Equal(t, "40%", calc.AchievementPercentage.String())
	assert.Empty(t, calc.AppliedSlabID)
}

func TestCalculate_Deterministic(t *testing.T) {
	a, err := incentive.Calculate(standardPlan(), calcInput("97531.13"))
	require.NoError(t, err)
	b, err := incentive.Calculate(standardPlan(), calcInput("97531.13"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCalculate_Rejections(t *testing.T) {
	t.Run("plan not active", func(t *testing.T) {
		plan := standardPlan()
		plan.Status = incentive.PlanDraft
		_, err := incentive.Calculate(plan, calcInput("1"))
		assert.ErrorIs(t, err, incentive.ErrInvalidState)
	})
	t.Run("period outside plan", func(t *testing.T) {
		in := calcInput("1")
		in.Period = incentive.DateRange{Start: incentive.Date(2024, 12, 1), End: incentive.Date(2025, 1, 31)}
		_, err := incentive.Calculate(standardPlan(), in)
		assert.ErrorIs(t, err, incentive.ErrValidation)
	})
	t.Run("zero target", func(t *testing.T) {
		plan := standardPlan()
		plan.Target.TargetValue = dec("0")
		_, err := incentive.Calculate(plan, calcInput("1"))
		assert.ErrorIs(t, err, incentive.ErrValidation)
	})
	t.Run("overlapping slabs", func(t *testing.T) {
		plan := standardPlan()
		plan.Slabs[0].UpperBoundPct = decPtr("85")
		_, err := incentive.Calculate(plan, calcInput("1"))
		assert.ErrorIs(t, err, incentive.ErrValidation)
	})
	t.Run("missing employee", func(t *testing.T) {
		in := calcInput("1")
		in.EmployeeID = ""
		_, err := incentive.Calculate(standardPlan(), in)
		assert.ErrorIs(t, err, incentive.ErrValidation)
	})
}
