package notify

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/incentive/store"
)

// approvalFixture returns an engine wired to n and the id of a fresh
// calculation on a one-level plan.
func approvalFixture(t *testing.T, n incentive.Notifier) (*incentive.Engine, string) {
	t.Helper()
	ctx := context.Background()

	upper := decimal.NewFromInt(100)
	mem := store.NewMemory()
	require.NoError(t, mem.SavePlan(ctx, incentive.Plan{
		ID:       "plan-1",
		Code:     "P1",
		Name:     "Plan",
		Status:   incentive.PlanActive,
		Currency: "USD",
		EffectivePeriod: incentive.DateRange{
			Start: incentive.Date(2025, time.January, 1),
			End:   incentive.Date(2025, time.December, 31),
		},
		Target: incentive.Target{TargetValue: decimal.NewFromInt(1000), AchievementType: incentive.AchievementAbsolute},
		Slabs: []incentive.Slab{
			{ID: "low", LowerBoundPct: decimal.Zero, UpperBoundPct: &upper, PayoutRate: decimal.Zero},
			{ID: "high", LowerBoundPct: upper, PayoutRate: decimal.NewFromInt(2)},
		},
		RequiresApproval: true,
		ApprovalLevels:   1,
		Approvers:        []string{"manager"},
	}))

	engine := incentive.NewEngine(mem, incentive.WithNotifier(n))
	calc, err := engine.Calculate(ctx, incentive.CalculationRequest{
		PlanID:     "plan-1",
		EmployeeID: "emp-1",
		Period:     incentive.DateRange{Start: incentive.Date(2025, time.January, 1), End: incentive.Date(2025, time.March, 31)},
		Facts:      incentive.Facts{ActualValue: decimal.NewFromInt(1200)},
		Actor:      "hr",
	})
	require.NoError(t, err)
	return engine, calc.ID
}
