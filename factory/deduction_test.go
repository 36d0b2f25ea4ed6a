package factory_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/incentive"
)

func usd(s string) incentive.Money {
	return incentive.Money{Amount: decimal.RequireFromString(s), Currency: "USD"}
}

func TestCompileDeduction(t *testing.T) {
	cases := []struct {
		expr  string
		gross string
		want  string
	}{
		{"gross * 0.1", "1000", "100.00 USD"},
		{"gross > 5000.0 ? 250.0 : 0.0", "6000", "250.00 USD"},
		{"gross > 5000.0 ? 250.0 : 0.0", "4000", "0.00 USD"},
		{"gross / 3.0", "100", "33.33 USD"},
	}
	for _, tc := range cases {
		fn, err := factory.CompileDeduction(tc.expr)
		require.NoError(t, err, tc.expr)

		got, err := fn(usd(tc.gross))
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got.String(), "%s on %s", tc.expr, tc.gross)
	}
}

func TestCompileDeduction_Rejections(t *testing.T) {
	for _, expr := range []string{
		"gross *",      // syntax
		"salary * 0.1", // unknown variable
		"gross > 10.0", // bool result
		"1",            // int result
	} {
		_, err := factory.CompileDeduction(expr)
		assert.ErrorIs(t, err, incentive.ErrValidation, expr)
	}
}

func TestCompileDeduction_NegativeResultFails(t *testing.T) {
	fn, err := factory.CompileDeduction("0.0 - gross")
	require.NoError(t, err)

	_, err = fn(usd("100"))
	assert.ErrorIs(t, err, incentive.ErrValidation)
}

func TestCompileDeduction_FeedsCalculator(t *testing.T) {
	fn, err := factory.CompileDeduction("gross * 0.05")
	require.NoError(t, err)

	plan, err := factory.ParsePlanYAML([]byte(salesYAML))
	require.NoError(t, err)

	calc, err := incentive.Calculate(plan, incentive.CalculateInput{
		EmployeeID: "emp-1",
		Period:     incentive.DateRange{Start: incentive.Date(2025, 1, 1), End: incentive.Date(2025, 3, 31)},
		Facts:      incentive.Facts{ActualValue: decimal.NewFromInt(120000), Deduction: fn},
	})
	require.NoError(t, err)
	assert.Equal(t, "1000.00 USD", calc.GrossIncentive.String())
	assert.Equal(t, "950.00 USD", calc.NetIncentive.String())
}
