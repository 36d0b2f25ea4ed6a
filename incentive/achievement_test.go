package incentive_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incentive-engine/incentive"
)

func TestComputeAchievement_Percentage(t *testing.T) {
	target := standardPlan().Target

	for _, tc := range []struct{ actual, want string }{
		{"120000", "120"},
		{"100000", "100"},
		{"33333", "33.333"},
		{"0", "0"},
		{"12345.67", "12.3457"},
	} {
		a, err := incentive.ComputeAchievement(target, incentive.AchievementInput{
			Actual: dec(tc.actual), TenureDays: 90, PeriodDays: 90,
		})
		require.NoError(t, err)
		assert.True(t, dec(tc.want).Equal(a.Percentage.Value), "actual %s: got %s", tc.actual, a.Percentage)
	}
}

func TestComputeAchievement_ZeroTargetFailsFast(t *testing.T) {
	target := standardPlan().Target
	target.TargetValue = dec("0")

	_, err := incentive.ComputeAchievement(target, incentive.AchievementInput{
		Actual: dec("100"), TenureDays: 10, PeriodDays: 10,
	})
	assert.ErrorIs(t, err, incentive.ErrValidation)
}

func TestComputeAchievement_BelowThresholdIsIneligible(t *testing.T) {
	target := standardPlan().Target // threshold 50%

	a, err := incentive.ComputeAchievement(target, incentive.AchievementInput{
		Actual: dec("49999"), TenureDays: 90, PeriodDays: 90,
	})
	require.NoError(t, err)
	assert.False(t, a.Eligible)
	assert.Equal(t, "49.999%", a.Percentage.String(), "achievement is still reported")

	a, err = incentive.ComputeAchievement(target, incentive.AchievementInput{
		Actual: dec("50000"), TenureDays: 90, PeriodDays: 90,
	})
	require.NoError(t, err)
	assert.True(t, a.Eligible)
}

func TestComputeAchievement_ProrationScalesFactorNotAchievement(t *testing.T) {
	target := standardPlan().Target

	a, err := incentive.ComputeAchievement(target, incentive.AchievementInput{
		Actual: dec("120000"), TenureDays: 45, PeriodDays: 90, Proratable: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "120%", a.Percentage.String())
	assert.Equal(t, "0.5", a.ProrataFactor.String())

	// Tenure longer than the period is capped
	a, err = incentive.ComputeAchievement(target, incentive.AchievementInput{
		Actual: dec("1"), TenureDays: 400, PeriodDays: 90, Proratable: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "1", a.ProrataFactor.String())

	// Not proratable: always 1
	a, err = incentive.ComputeAchievement(target, incentive.AchievementInput{
		Actual: dec("1"), TenureDays: 3, PeriodDays: 90,
	})
	require.NoError(t, err)
	assert.Equal(t, "1", a.ProrataFactor.String())
}

func TestComputeAchievement_Incremental(t *testing.T) {
	target := incentive.Target{
		TargetValue:     dec("20000"),
		AchievementType: incentive.AchievementIncremental,
	}

	a, err := incentive.ComputeAchievement(target, incentive.AchievementInput{
		Actual: dec("130000"), Baseline: dec("100000"), TenureDays: 1, PeriodDays: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "150%", a.Percentage.String())

	// Shrinking below baseline floors at zero
	a, err = incentive.ComputeAchievement(target, incentive.AchievementInput{
		Actual: dec("90000"), Baseline: dec("100000"), TenureDays: 1, PeriodDays: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "0%", a.Percentage.String())
}

func TestComputeAchievement_InvalidInputs(t *testing.T) {
	target := standardPlan().Target
	for name, in := range map[string]incentive.AchievementInput{
		"negative actual": {Actual: dec("-1"), TenureDays: 1, PeriodDays: 1},
		"zero period":     {Actual: dec("1"), TenureDays: 1, PeriodDays: 0},
		"negative tenure": {Actual: dec("1"), TenureDays: -1, PeriodDays: 1},
	} {
		_, err := incentive.ComputeAchievement(target, in)
		assert.ErrorIs(t, err, incentive.ErrValidation, name)
	}
}
