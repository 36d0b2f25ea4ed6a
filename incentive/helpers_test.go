package incentive_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/incentive/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func usd(s string) incentive.Money {
	return incentive.Money{Amount: dec(s), Currency: "USD"}
}

func intPtr(n int) *int { return &n }

// standardSlabs: [0,80) -> 0%, [80,100) -> 0.5%, [100,inf) -> 1.0%
func standardSlabs() []incentive.Slab {
	return []incentive.Slab{
		{ID: "s0", LowerBoundPct: dec("0"), UpperBoundPct: decPtr("80"), PayoutRate: dec("0")},
		{ID: "s1", LowerBoundPct: dec("80"), UpperBoundPct: decPtr("100"), PayoutRate: dec("0.5")},
		{ID: "s2", LowerBoundPct: dec("100"), PayoutRate: dec("1.0")},
	}
}

var q1 = incentive.DateRange{
	Start: incentive.Date(2025, time.January, 1),
	End:   incentive.Date(2025, time.March, 31),
}

func standardPlan() *incentive.Plan {
	return &incentive.Plan{
		ID:       "plan-sales",
		Code:     "SALES-2025",
		Name:     "Sales 2025",
		Status:   incentive.PlanActive,
		Currency: "USD",
		EffectivePeriod: incentive.DateRange{
			Start: incentive.Date(2025, time.January, 1),
			End:   incentive.Date(2025, time.December, 31),
		},
		Target: incentive.Target{
			TargetValue:      dec("100000"),
			MinimumThreshold: dec("50"),
			AchievementType:  incentive.AchievementAbsolute,
		},
		Slabs:            standardSlabs(),
		RequiresApproval: true,
		ApprovalLevels:   2,
		Approvers:        []string{"manager", "director"},
	}
}

// fixedClock is a settable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []incentive.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n incentive.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) events() []incentive.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]incentive.EventType, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Event
	}
	return out
}

// failingAudit always fails.
type failingAudit struct{}

func (failingAudit) Record(context.Context, incentive.AuditRecord) error {
	return errors.New("audit sink unavailable")
}

type harness struct {
	engine   *incentive.Engine
	store    *store.Memory
	clock    *fixedClock
	notifier *recordingNotifier
}

func newHarness(t *testing.T, plan *incentive.Plan, opts ...incentive.Option) *harness {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SavePlan(context.Background(), *plan))

	clock := &fixedClock{now: time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	seq := 0
	var seqMu sync.Mutex
	base := []incentive.Option{
		incentive.WithAuditSink(mem),
		incentive.WithNotifier(notifier),
		incentive.WithClock(clock.Now),
		incentive.WithIDGenerator(func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("id-%03d", seq)
		}),
	}
	engine := incentive.NewEngine(mem, append(base, opts...)...)
	return &harness{engine: engine, store: mem, clock: clock, notifier: notifier}
}

func (h *harness) calculate(t *testing.T, employee, actual string) *incentive.Calculation {
	t.Helper()
	calc, err := h.engine.Calculate(context.Background(), incentive.CalculationRequest{
		PlanID:     "plan-sales",
		EmployeeID: employee,
		Period:     q1,
		Facts:      incentive.Facts{ActualValue: dec(actual)},
		Actor:      "hr-admin",
	})
	require.NoError(t, err)
	return calc
}

func (h *harness) pending(t *testing.T, calculationID string) *incentive.Approval {
	t.Helper()
	a, err := h.engine.CurrentPending(context.Background(), calculationID)
	require.NoError(t, err)
	require.NotNil(t, a, "expected a pending approval")
	return a
}
