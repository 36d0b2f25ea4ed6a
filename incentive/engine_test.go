package incentive_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incentive-engine/incentive"
)

var ctx = context.Background()

// =============================================================================
// CALCULATE AND RECALCULATE
// =============================================================================

func TestEngine_CalculateStoresLiveCalculation(t *testing.T) {
	h := newHarness(t, standardPlan())

	calc := h.calculate(t, "emp-1", "120000")

	assert.Equal(t, incentive.StatusCalculated, calc.Status)
	assert.Equal(t, 1, calc.Version)
	assert.Equal(t, "1000.00 USD", calc.NetIncentive.String())
	assert.Equal(t, "hr-admin", calc.CalculatedBy)

	stored, err := h.store.LoadCalculation(ctx, calc.ID)
	require.NoError(t, err)
	assert.Equal(t, calc.Version, stored.Version)
	assert.True(t, calc.NetIncentive.Equal(stored.NetIncentive))

	trail, err := h.store.AuditTrail(ctx, calc.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "calculate", trail[0].Action)
}

func TestEngine_CalculateUnknownPlan(t *testing.T) {
	h := newHarness(t, standardPlan())
	_, err := h.engine.Calculate(ctx, incentive.CalculationRequest{
		PlanID: "nope", EmployeeID: "emp-1", Period: q1,
		Facts: incentive.Facts{ActualValue: dec("1")},
	})
	assert.ErrorIs(t, err, incentive.ErrNotFound)
}

func TestEngine_RecalculateCalculatedRewritesInPlace(t *testing.T) {
	// GIVEN: A Calculated aggregate at 90%
	h := newHarness(t, standardPlan())
	first := h.calculate(t, "emp-1", "90000")
	require.Equal(t, "450.00 USD", first.GrossIncentive.String())

	// WHEN: Corrected actuals arrive
	second := h.calculate(t, "emp-1", "120000")

	// THEN: Same aggregate, version 2, prior revision archived
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, "1000.00 USD", second.GrossIncentive.String())

	revisions, err := h.store.ListRevisions(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, revisions, 1)
	assert.Equal(t, "450.00 USD", revisions[0].GrossIncentive.String())
	assert.Equal(t, 1, revisions[0].Version)

	live, err := h.store.FindLiveCalculation(ctx, "emp-1", "plan-sales", q1)
	require.NoError(t, err)
	assert.Equal(t, second.ID, live.ID)
}

func TestEngine_RecalculateAfterRejectionCreatesNewAggregate(t *testing.T) {
	h := newHarness(t, standardPlan())
	first := h.calculate(t, "emp-1", "120000")
	_, err := h.engine.SubmitForApproval(ctx, first.ID, "hr-admin")
	require.NoError(t, err)
	_, err = h.engine.Decide(ctx, h.pending(t, first.ID).ID, "manager", false, "wrong territory")
	require.NoError(t, err)

	second := h.calculate(t, "emp-1", "110000")

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, second.Version)
	assert.Equal(t, incentive.StatusCalculated, second.Status)

	old, err := h.store.LoadCalculation(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, old.Superseded)
	assert.Equal(t, incentive.StatusRejected, old.Status, "history is kept")

	live, err := h.store.FindLiveCalculation(ctx, "emp-1", "plan-sales", q1)
	require.NoError(t, err)
	assert.Equal(t, second.ID, live.ID)
}

func TestEngine_RecalculateBlockedOncePayoutIsCommitted(t *testing.T) {
	h := newHarness(t, standardPlan())
	calc := h.calculate(t, "emp-1", "120000")
	_, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)

	// Pending approval
	_, err = h.engine.Calculate(ctx, incentive.CalculationRequest{
		PlanID: "plan-sales", EmployeeID: "emp-1", Period: q1,
		Facts: incentive.Facts{ActualValue: dec("130000")}, Actor: "hr-admin",
	})
	assert.ErrorIs(t, err, incentive.ErrInvalidState)

	// Approved
	_, err = h.engine.Decide(ctx, h.pending(t, calc.ID).ID, "manager", true, "")
	require.NoError(t, err)
	_, err = h.engine.Decide(ctx, h.pending(t, calc.ID).ID, "director", true, "")
	require.NoError(t, err)
	_, err = h.engine.Calculate(ctx, incentive.CalculationRequest{
		PlanID: "plan-sales", EmployeeID: "emp-1", Period: q1,
		Facts: incentive.Facts{ActualValue: dec("130000")}, Actor: "hr-admin",
	})
	assert.ErrorIs(t, err, incentive.ErrInvalidState)

	stored, err := h.store.LoadCalculation(ctx, calc.ID)
	require.NoError(t, err)
	assert.Equal(t, incentive.StatusApproved, stored.Status)
	assert.False(t, stored.Superseded)
}

func TestEngine_DeductionExpressionNeedsCompiler(t *testing.T) {
	plan := standardPlan()
	plan.DeductionExpr = "gross * 0.1"

	h := newHarness(t, plan)
	_, err := h.engine.Calculate(ctx, incentive.CalculationRequest{
		PlanID: "plan-sales", EmployeeID: "emp-1", Period: q1,
		Facts: incentive.Facts{ActualValue: dec("120000")},
	})
	assert.ErrorIs(t, err, incentive.ErrValidation)

	compiled := 0
	h = newHarness(t, plan, incentive.WithDeductionCompiler(func(expr string) (incentive.DeductionFunc, error) {
		compiled++
		return incentive.RateDeduction(incentive.Pct(10)), nil
	}))
	calc := h.calculate(t, "emp-1", "120000")
	assert.Equal(t, 1, compiled)
	assert.Equal(t, "900.00 USD", calc.NetIncentive.String())
}

// =============================================================================
// SUBMIT AND DECIDE
// =============================================================================

func TestEngine_SubmitTwiceIsInvalidState(t *testing.T) {
	h := newHarness(t, standardPlan())
	calc := h.calculate(t, "emp-1", "120000")

	submitted, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)
	assert.Equal(t, incentive.StatusPendingApproval, submitted.Status)
	assert.Equal(t, 2, submitted.Version)

	_, err = h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	assert.ErrorIs(t, err, incentive.ErrInvalidState)

	approvals, err := h.store.LoadApprovals(ctx, calc.ID)
	require.NoError(t, err)
	assert.Len(t, approvals, 1, "no duplicate level 1")
}

func TestEngine_TwoLevelApproval(t *testing.T) {
	// GIVEN: A two-level plan (manager, director)
	h := newHarness(t, standardPlan())
	calc := h.calculate(t, "emp-1", "120000")
	_, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)

	// WHEN: Level 1 approves
	l1 := h.pending(t, calc.ID)
	assert.Equal(t, 1, l1.Level)
	assert.Equal(t, "manager", l1.ApproverID)
	after1, err := h.engine.Decide(ctx, l1.ID, "manager", true, "looks right")
	require.NoError(t, err)

	// THEN: Still pending, level 2 is open
	assert.Equal(t, incentive.StatusPendingApproval, after1.Status)
	l2 := h.pending(t, calc.ID)
	assert.Equal(t, 2, l2.Level)
	assert.Equal(t, "director", l2.ApproverID)

	// WHEN: Level 2 approves
	h.clock.Advance(time.Hour)
	after2, err := h.engine.Decide(ctx, l2.ID, "director", true, "")
	require.NoError(t, err)

	// THEN: Approved, no pending approval left
	assert.Equal(t, incentive.StatusApproved, after2.Status)
	pending, err := h.engine.CurrentPending(ctx, calc.ID)
	require.NoError(t, err)
	assert.Nil(t, pending)

	approvals, err := h.store.LoadApprovals(ctx, calc.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 2)
	for _, a := range approvals {
		assert.Equal(t, incentive.ApprovalApproved, a.Status)
		require.NotNil(t, a.DecidedAt)
	}

	assert.Equal(t, []incentive.EventType{
		incentive.EventApprovalPending,
		incentive.EventApprovalPending,
		incentive.EventApprovalApproved,
	}, h.notifier.events())
}

func TestEngine_RejectAtFirstLevelStopsChain(t *testing.T) {
	h := newHarness(t, standardPlan())
	calc := h.calculate(t, "emp-1", "120000")
	_, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)

	rejected, err := h.engine.Decide(ctx, h.pending(t, calc.ID).ID, "manager", false, "quota disputed")
	require.NoError(t, err)

	assert.Equal(t, incentive.StatusRejected, rejected.Status)
	assert.Equal(t, "quota disputed", rejected.RejectionReason)

	approvals, err := h.store.LoadApprovals(ctx, calc.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 1, "level 2 is never created")
	assert.Equal(t, incentive.ApprovalRejected, approvals[0].Status)
	assert.Contains(t, h.notifier.events(), incentive.EventApprovalRejected)
}

func TestEngine_DecideByWrongActorIsUnauthorized(t *testing.T) {
	h := newHarness(t, standardPlan())
	calc := h.calculate(t, "emp-1", "120000")
	_, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)
	l1 := h.pending(t, calc.ID)

	_, err = h.engine.Decide(ctx, l1.ID, "director", true, "")
	assert.ErrorIs(t, err, incentive.ErrUnauthorized)

	stored, err := h.store.LoadCalculation(ctx, calc.ID)
	require.NoError(t, err)
	assert.Equal(t, incentive.StatusPendingApproval, stored.Status)
	assert.Equal(t, 2, stored.Version, "nothing written")
}

func TestEngine_DelegateThenDecide(t *testing.T) {
	h := newHarness(t, standardPlan())
	calc := h.calculate(t, "emp-1", "120000")
	_, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)
	l1 := h.pending(t, calc.ID)

	delegated, err := h.engine.Delegate(ctx, l1.ID, "manager", "deputy")
	require.NoError(t, err)
	assert.Equal(t, l1.ID, delegated.ID)
	assert.Equal(t, 1, delegated.Level)
	assert.Equal(t, "deputy", delegated.DelegatedToID)

	// A third party cannot delegate
	_, err = h.engine.Delegate(ctx, l1.ID, "director", "someone")
	assert.ErrorIs(t, err, incentive.ErrUnauthorized)

	after, err := h.engine.Decide(ctx, l1.ID, "deputy", true, "on behalf of manager")
	require.NoError(t, err)
	assert.Equal(t, incentive.StatusPendingApproval, after.Status)
	assert.Equal(t, 2, h.pending(t, calc.ID).Level)
}

func TestEngine_ConcurrentDecideHasSingleWinner(t *testing.T) {
	plan := standardPlan()
	plan.ApprovalLevels = 1
	plan.Approvers = []string{"manager"}
	h := newHarness(t, plan)
	calc := h.calculate(t, "emp-1", "120000")
	_, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)
	l1 := h.pending(t, calc.ID)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.engine.Decide(ctx, l1.ID, "manager", i%2 == 0, "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t,
			errors.Is(err, incentive.ErrConcurrencyConflict) || errors.Is(err, incentive.ErrInvalidState),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)

	stored, err := h.store.LoadCalculation(ctx, calc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Version)
	assert.True(t, stored.Status == incentive.StatusApproved || stored.Status == incentive.StatusRejected)
}

func TestEngine_PlanWithoutApprovalAutoApproves(t *testing.T) {
	plan := standardPlan()
	plan.ApprovalLevels = 0
	plan.Approvers = nil
	h := newHarness(t, plan)
	calc := h.calculate(t, "emp-1", "120000")

	approved, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)
	assert.Equal(t, incentive.StatusApproved, approved.Status)

	approvals, err := h.store.LoadApprovals(ctx, calc.ID)
	require.NoError(t, err)
	assert.Empty(t, approvals)
}

// =============================================================================
// PAYMENT AND CANCELLATION
// =============================================================================

func TestEngine_MarkPaid(t *testing.T) {
	plan := standardPlan()
	plan.ApprovalLevels = 0
	h := newHarness(t, plan)
	calc := h.calculate(t, "emp-1", "120000")

	_, err := h.engine.MarkPaid(ctx, calc.ID, "BATCH-7")
	assert.ErrorIs(t, err, incentive.ErrInvalidState, "not approved yet")

	_, err = h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)

	_, err = h.engine.MarkPaid(ctx, calc.ID, "")
	assert.ErrorIs(t, err, incentive.ErrValidation)

	paid, err := h.engine.MarkPaid(ctx, calc.ID, "BATCH-7")
	require.NoError(t, err)
	assert.Equal(t, incentive.StatusPaid, paid.Status)
	assert.Equal(t, "BATCH-7", paid.PaymentReference)
	assert.Contains(t, h.notifier.events(), incentive.EventPaymentProcessed)

	_, err = h.engine.Cancel(ctx, calc.ID, "hr-admin", "too late")
	assert.ErrorIs(t, err, incentive.ErrInvalidState)
}

func TestEngine_CancelExpiresPendingApproval(t *testing.T) {
	h := newHarness(t, standardPlan())
	calc := h.calculate(t, "emp-1", "120000")
	_, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)
	l1 := h.pending(t, calc.ID)

	_, err = h.engine.Cancel(ctx, calc.ID, "hr-admin", "")
	assert.ErrorIs(t, err, incentive.ErrValidation)

	cancelled, err := h.engine.Cancel(ctx, calc.ID, "hr-admin", "employee left")
	require.NoError(t, err)
	assert.Equal(t, incentive.StatusCancelled, cancelled.Status)
	assert.Equal(t, "employee left", cancelled.CancellationReason)

	a, err := h.store.LoadApproval(ctx, l1.ID)
	require.NoError(t, err)
	assert.Equal(t, incentive.ApprovalExpired, a.Status)

	_, err = h.engine.Decide(ctx, l1.ID, "manager", true, "")
	assert.ErrorIs(t, err, incentive.ErrInvalidState)
}

// =============================================================================
// SIDE EFFECTS
// =============================================================================

func TestEngine_AuditAndNotifyFailuresDoNotFailOperations(t *testing.T) {
	h := newHarness(t, standardPlan(), incentive.WithAuditSink(failingAudit{}))
	h.notifier.err = errors.New("smtp down")

	calc := h.calculate(t, "emp-1", "120000")
	submitted, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)
	assert.Equal(t, incentive.StatusPendingApproval, submitted.Status)

	_, err = h.engine.Decide(ctx, h.pending(t, calc.ID).ID, "manager", true, "")
	require.NoError(t, err)

	stored, err := h.store.LoadCalculation(ctx, calc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Version, "state committed despite sink failures")
	assert.NotEmpty(t, h.notifier.events(), "delivery was still attempted")
}

func TestEngine_AuditTrailCoversTransitions(t *testing.T) {
	h := newHarness(t, standardPlan())
	calc := h.calculate(t, "emp-1", "120000")
	_, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)
	_, err = h.engine.Decide(ctx, h.pending(t, calc.ID).ID, "manager", false, "no")
	require.NoError(t, err)

	trail, err := h.store.AuditTrail(ctx, calc.ID)
	require.NoError(t, err)
	var actions []string
	for _, r := range trail {
		actions = append(actions, r.Action)
	}
	assert.Equal(t, []string{"calculate", "submit", "reject"}, actions)
	assert.Equal(t, "pending_approval", trail[2].OldValue)
	assert.Equal(t, "rejected", trail[2].NewValue)
	assert.Equal(t, "manager", trail[2].ActorID)
}

// =============================================================================
// ESCALATION
// =============================================================================

// submitAt submits a fresh calculation for employee at the harness clock plus offset.
func submitAt(t *testing.T, h *harness, employee string, offset time.Duration) *incentive.Calculation {
	t.Helper()
	calc := h.calculate(t, employee, "120000")
	h.clock.Advance(offset)
	_, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)
	h.clock.Advance(-offset)
	return calc
}

func TestEngine_ScanForEscalation_AlertMode(t *testing.T) {
	// GIVEN: Approvals opened 80h, 50h and 60h before the scan, SLA 72h
	h := newHarness(t, standardPlan())
	start := h.clock.Now()
	a := submitAt(t, h, "emp-a", 0)
	b := submitAt(t, h, "emp-b", 30*time.Hour)
	c := submitAt(t, h, "emp-c", 20*time.Hour)

	// WHEN: Scanning at start+80h
	report, err := h.engine.ScanForEscalation(ctx, start.Add(80*time.Hour), 72)
	require.NoError(t, err)

	// THEN: Only the 80h approval breached, the 60h one warned
	require.Len(t, report.Breached, 1)
	assert.Equal(t, a.ID, report.Breached[0].CalculationID)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, c.ID, report.Warnings[0].CalculationID)
	require.Len(t, report.Alerted, 1)
	assert.Empty(t, report.Escalated)
	assert.Empty(t, report.Failures)

	events := h.notifier.events()
	assert.Contains(t, events, incentive.EventSLABreach)
	assert.Contains(t, events, incentive.EventSLAWarning)

	// Nothing reassigned
	assert.Equal(t, "manager", h.pending(t, a.ID).ApproverID)
	assert.Equal(t, "manager", h.pending(t, b.ID).ApproverID)
}

func TestEngine_ScanForEscalation_AutoMode(t *testing.T) {
	h := newHarness(t, standardPlan(), incentive.WithEscalationPolicy(incentive.EscalationPolicy{
		Mode:       incentive.EscalateAuto,
		EscalateTo: "vp-sales",
		Workers:    2,
	}))
	start := h.clock.Now()
	a := submitAt(t, h, "emp-a", 0)
	b := submitAt(t, h, "emp-b", time.Hour)
	fresh := submitAt(t, h, "emp-c", 70*time.Hour)
	original := h.pending(t, a.ID)

	scanAt := start.Add(80 * time.Hour)
	report, err := h.engine.ScanForEscalation(ctx, scanAt, 72)
	require.NoError(t, err)

	require.Len(t, report.Breached, 2)
	require.Len(t, report.Escalated, 2)
	assert.Empty(t, report.Alerted)
	assert.Empty(t, report.Failures)

	for _, calc := range []*incentive.Calculation{a, b} {
		p := h.pending(t, calc.ID)
		assert.Equal(t, "vp-sales", p.ApproverID)
		assert.Equal(t, 1, p.Level)
		assert.Equal(t, scanAt, p.CreatedAt)
	}
	assert.Equal(t, "manager", h.pending(t, fresh.ID).ApproverID)

	closed, err := h.store.LoadApproval(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, incentive.ApprovalEscalated, closed.Status)

	// A second scan at the same instant finds nothing new to escalate
	again, err := h.engine.ScanForEscalation(ctx, scanAt, 72)
	require.NoError(t, err)
	assert.Empty(t, again.Breached)
	assert.Empty(t, again.Escalated)

	// The escalation target can carry the chain forward
	after, err := h.engine.Decide(ctx, h.pending(t, a.ID).ID, "vp-sales", true, "")
	require.NoError(t, err)
	assert.Equal(t, incentive.StatusPendingApproval, after.Status)
	assert.Equal(t, "director", h.pending(t, a.ID).ApproverID)
}

func TestEngine_ScanForEscalation_AlreadyWithTargetAlerts(t *testing.T) {
	plan := standardPlan()
	plan.Approvers = []string{"vp-sales", "director"}
	h := newHarness(t, plan, incentive.WithEscalationPolicy(incentive.EscalationPolicy{
		Mode:       incentive.EscalateAuto,
		EscalateTo: "vp-sales",
	}))
	start := h.clock.Now()
	submitAt(t, h, "emp-a", 0)

	report, err := h.engine.ScanForEscalation(ctx, start.Add(100*time.Hour), 72)
	require.NoError(t, err)
	assert.Empty(t, report.Escalated)
	require.Len(t, report.Alerted, 1)
}

func TestEngine_ScanForEscalation_RejectsBadSLA(t *testing.T) {
	h := newHarness(t, standardPlan())
	_, err := h.engine.ScanForEscalation(ctx, h.clock.Now(), 0)
	assert.ErrorIs(t, err, incentive.ErrValidation)
}

func TestEngine_ManualEscalate(t *testing.T) {
	h := newHarness(t, standardPlan())
	calc := h.calculate(t, "emp-1", "120000")
	_, err := h.engine.SubmitForApproval(ctx, calc.ID, "hr-admin")
	require.NoError(t, err)
	l1 := h.pending(t, calc.ID)

	opened, err := h.engine.Escalate(ctx, l1.ID, "hr-admin", "head-of-sales", "manager on leave")
	require.NoError(t, err)
	assert.Equal(t, "head-of-sales", opened.ApproverID)
	assert.Equal(t, 1, opened.Level)

	_, err = h.engine.Escalate(ctx, l1.ID, "hr-admin", "someone", "again")
	assert.ErrorIs(t, err, incentive.ErrInvalidState)
}
