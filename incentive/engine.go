/*
engine.go - Calculation and approval workflow engine

PURPOSE:
  Engine exposes the operations callers use: Calculate, SubmitForApproval,
  Decide, Delegate, Escalate, MarkPaid, Cancel and ScanForEscalation.
  Each operation follows the same shape:

    1. load the aggregate (calculation + approvals) and the plan
    2. compute the new state in memory (Calculate, StateMachine, Chain)
    3. commit inside Store.WithTx, conditional on the loaded version
    4. after commit, emit audit records and notifications

  Step 4 is best-effort. Audit and notification failures are logged and
  never change the outcome of the operation.

CONCURRENCY:
  The engine holds no mutable state of its own. A stale version surfaces as
  ConcurrencyConflictError and is returned to the caller; nothing is retried
  here. Operations on different calculations run fully in parallel.

SEE ALSO:
  - calculator.go: pure payout math
  - statemachine.go: CalculationLifecycle transition table
  - approval.go: Chain
  - escalation.go: ScanSLA
*/
package incentive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SystemActor is recorded as the actor for engine-initiated changes.
const SystemActor = "system"

// DeductionCompiler turns a plan's deduction expression into a DeductionFunc.
type DeductionCompiler func(expr string) (DeductionFunc, error)

// Engine runs the calculation and approval workflow.
type Engine struct {
	store      Store
	audit      AuditSink
	notifier   Notifier
	approvers  ApproverResolver
	metrics    Metrics
	log        *zap.Logger
	lifecycle  *StateMachine
	escalation EscalationPolicy
	compile    DeductionCompiler
	now        func() time.Time
	newID      func() string
}

// Option configures an Engine.
type Option func(*Engine)

func WithAuditSink(a AuditSink) Option                 { return func(e *Engine) { e.audit = a } }
func WithNotifier(n Notifier) Option                   { return func(e *Engine) { e.notifier = n } }
func WithApproverResolver(r ApproverResolver) Option   { return func(e *Engine) { e.approvers = r } }
func WithMetrics(m Metrics) Option                     { return func(e *Engine) { e.metrics = m } }
func WithLogger(l *zap.Logger) Option                  { return func(e *Engine) { e.log = l } }
func WithEscalationPolicy(p EscalationPolicy) Option   { return func(e *Engine) { e.escalation = p } }
func WithDeductionCompiler(c DeductionCompiler) Option { return func(e *Engine) { e.compile = c } }
func WithClock(now func() time.Time) Option            { return func(e *Engine) { e.now = now } }
func WithIDGenerator(f func() string) Option           { return func(e *Engine) { e.newID = f } }

// NewEngine creates an engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		audit:      nopAudit{},
		notifier:   nopNotifier{},
		approvers:  PlanApprovers{},
		metrics:    nopMetrics{},
		log:        zap.NewNop(),
		lifecycle:  CalculationLifecycle,
		escalation: EscalationPolicy{Mode: EscalateAlertOnly, WarningRatio: DefaultWarningRatio},
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// effects collects what to emit after a successful commit.
type effects struct {
	audit         []AuditRecord
	notifications []Notification
}

func (fx *effects) change(c Change) {
	fx.audit = append(fx.audit, AuditRecord{
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		Action:     string(c.Action),
		ActorID:    c.Actor,
		OldValue:   string(c.From),
		NewValue:   string(c.To),
		Reason:     c.Reason,
		At:         c.At,
	})
}

func (fx *effects) approval(a Approval, action, oldStatus, actor string, at time.Time) {
	fx.audit = append(fx.audit, AuditRecord{
		EntityType: "approval",
		EntityID:   a.ID,
		Action:     action,
		ActorID:    actor,
		OldValue:   oldStatus,
		NewValue:   string(a.Status),
		Reason:     a.Comments,
		At:         at,
	})
}

func (fx *effects) notify(event EventType, calc *Calculation, a *Approval, recipient string, at time.Time) {
	n := Notification{
		Event:         event,
		CalculationID: calc.ID,
		RecipientID:   recipient,
		At:            at,
		Payload: map[string]string{
			"employee_id":   calc.EmployeeID,
			"plan_id":       calc.PlanID,
			"net_incentive": calc.NetIncentive.String(),
		},
	}
	if a != nil {
		n.ApprovalID = a.ID
		n.Level = a.Level
	}
	fx.notifications = append(fx.notifications, n)
}

// emit delivers effects. Failures are logged and swallowed.
func (e *Engine) emit(ctx context.Context, fx *effects) {
	for _, rec := range fx.audit {
		if rec.ID == "" {
			rec.ID = e.newID()
		}
		if err := e.audit.Record(ctx, rec); err != nil {
			e.log.Warn("audit record failed",
				zap.String("entity_type", rec.EntityType),
				zap.String("entity_id", rec.EntityID),
				zap.String("action", rec.Action),
				zap.Error(err))
		}
	}
	for _, n := range fx.notifications {
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.log.Warn("notification failed",
				zap.String("event", string(n.Event)),
				zap.String("calculation_id", n.CalculationID),
				zap.String("approval_id", n.ApprovalID),
				zap.Error(err))
		}
	}
}

func (e *Engine) conflict(op string, err error) error {
	if errors.Is(err, ErrConcurrencyConflict) {
		e.metrics.ConflictDetected(op)
		e.log.Info("concurrency conflict", zap.String("operation", op), zap.Error(err))
	}
	return err
}

// =============================================================================
// CALCULATE
// =============================================================================

// CalculationRequest asks for a payout calculation.
type CalculationRequest struct {
	PlanID     string
	EmployeeID string
	Period     DateRange
	Facts      Facts
	Actor      string
}

// Calculate computes a payout and stores it as the live calculation for the
// (employee, plan, period) triple.
//
// An existing Calculated aggregate is rewritten in place with version+1 and
// its prior revision archived. A Rejected, Cancelled or Ineligible aggregate
// is marked superseded and a fresh aggregate replaces it. Anything further
// along fails with InvalidStateError.
func (e *Engine) Calculate(ctx context.Context, req CalculationRequest) (*Calculation, error) {
	if req.PlanID == "" {
		return nil, invalid("plan_id", "is required")
	}
	plan, err := e.store.LoadPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	facts := req.Facts
	if facts.Deduction == nil && plan.DeductionExpr != "" {
		if e.compile == nil {
			return nil, invalid("deduction_expr", "plan %s has a deduction expression but no compiler is configured", plan.ID)
		}
		if facts.Deduction, err = e.compile(plan.DeductionExpr); err != nil {
			return nil, err
		}
	}

	now := e.now()
	fresh, err := Calculate(plan, CalculateInput{
		EmployeeID: req.EmployeeID,
		Period:     req.Period,
		Facts:      facts,
		Actor:      req.Actor,
		At:         now,
	})
	if err != nil {
		return nil, err
	}

	fx := &effects{}
	err = e.store.WithTx(ctx, func(tx Store) error {
		live, err := tx.FindLiveCalculation(ctx, req.EmployeeID, plan.ID, fresh.Period)
		if err != nil {
			return err
		}

		if live != nil && live.Status == StatusCalculated && fresh.Status == StatusCalculated {
			prior := live.Clone()
			prior.Superseded = true
			work := live.Clone()
			change, err := e.lifecycle.Apply(work, ActionRecalculate, req.Actor, now, "recalculated")
			if err != nil {
				return err
			}
			fresh.ID = live.ID
			fresh.Version = work.Version
			if err := tx.ArchiveRevision(ctx, prior); err != nil {
				return err
			}
			if err := tx.SaveCalculation(ctx, fresh, live.Version); err != nil {
				return err
			}
			change.Reason = fmt.Sprintf("gross %s -> %s", live.GrossIncentive, fresh.GrossIncentive)
			fx.change(change)
			return nil
		}

		if live != nil {
			old := live.Clone()
			change, err := e.lifecycle.Apply(old, ActionSupersede, req.Actor, now, "superseded by recalculation")
			if err != nil {
				return err
			}
			old.Superseded = true
			if err := tx.SaveCalculation(ctx, old, live.Version); err != nil {
				return err
			}
			fx.change(change)
		}

		fresh.ID = e.newID()
		fresh.Version = 1
		if err := tx.SaveCalculation(ctx, fresh, 0); err != nil {
			return err
		}
		fx.audit = append(fx.audit, AuditRecord{
			EntityType: "calculation",
			EntityID:   fresh.ID,
			Action:     "calculate",
			ActorID:    req.Actor,
			NewValue:   string(fresh.Status),
			Reason:     fresh.AdjustmentReason,
			At:         now,
		})
		return nil
	})
	if err != nil {
		return nil, e.conflict("calculate", err)
	}

	e.metrics.CalculationRecorded(fresh.Status)
	e.log.Info("calculation recorded",
		zap.String("calculation_id", fresh.ID),
		zap.String("employee_id", fresh.EmployeeID),
		zap.String("plan_id", fresh.PlanID),
		zap.String("status", string(fresh.Status)),
		zap.String("gross", fresh.GrossIncentive.String()),
		zap.Int("version", fresh.Version))
	e.emit(ctx, fx)
	return fresh.Clone(), nil
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitForApproval moves a Calculated aggregate into the approval chain.
// Plans without approval levels (or not requiring approval) go straight to Approved.
func (e *Engine) SubmitForApproval(ctx context.Context, calculationID, actor string) (*Calculation, error) {
	calc, err := e.store.LoadCalculation(ctx, calculationID)
	if err != nil {
		return nil, err
	}
	plan, err := e.store.LoadPlan(ctx, calc.PlanID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	work := calc.Clone()
	fx := &effects{}

	if !plan.NeedsApproval() {
		change, err := e.lifecycle.Apply(work, ActionAutoApprove, actor, now, "plan requires no approval")
		if err != nil {
			return nil, err
		}
		if err := e.commit(ctx, "submit", work, calc.Version, nil); err != nil {
			return nil, err
		}
		fx.change(change)
		fx.notify(EventApprovalApproved, work, nil, work.EmployeeID, now)
		e.metrics.TransitionApplied(change.Action, change.To)
		e.emit(ctx, fx)
		return work, nil
	}

	change, err := e.lifecycle.Apply(work, ActionSubmit, actor, now, "")
	if err != nil {
		return nil, err
	}
	existing, err := e.store.LoadApprovals(ctx, calc.ID)
	if err != nil {
		return nil, err
	}
	chain := NewChain(calc.ID, plan.ApprovalLevels, existing)
	approver, err := e.approvers.ApproverFor(ctx, plan, work, 1)
	if err != nil {
		return nil, err
	}
	opened, err := chain.Open(e.newID(), approver, now)
	if err != nil {
		return nil, err
	}
	if err := e.commit(ctx, "submit", work, calc.Version, []Approval{opened}); err != nil {
		return nil, err
	}

	fx.change(change)
	fx.approval(opened, "opened", "", actor, now)
	fx.notify(EventApprovalPending, work, &opened, opened.ApproverID, now)
	e.metrics.TransitionApplied(change.Action, change.To)
	e.log.Info("calculation submitted",
		zap.String("calculation_id", work.ID),
		zap.String("approver_id", opened.ApproverID),
		zap.Int("levels", plan.ApprovalLevels))
	e.emit(ctx, fx)
	return work, nil
}

// commit writes the calculation conditionally on expectedVersion together with approvals.
func (e *Engine) commit(ctx context.Context, op string, calc *Calculation, expectedVersion int, approvals []Approval) error {
	err := e.store.WithTx(ctx, func(tx Store) error {
		if err := tx.SaveCalculation(ctx, calc, expectedVersion); err != nil {
			return err
		}
		for _, a := range approvals {
			if err := tx.SaveApproval(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	return e.conflict(op, err)
}

// =============================================================================
// APPROVAL ACTIONS
// =============================================================================

// aggregate is a calculation with its plan and approval chain.
type aggregate struct {
	calc  *Calculation
	plan  *Plan
	chain *Chain
}

func (e *Engine) loadByApproval(ctx context.Context, approvalID string) (*aggregate, error) {
	a, err := e.store.LoadApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	return e.loadAggregate(ctx, a.CalculationID)
}

func (e *Engine) loadAggregate(ctx context.Context, calculationID string) (*aggregate, error) {
	calc, err := e.store.LoadCalculation(ctx, calculationID)
	if err != nil {
		return nil, err
	}
	plan, err := e.store.LoadPlan(ctx, calc.PlanID)
	if err != nil {
		return nil, err
	}
	approvals, err := e.store.LoadApprovals(ctx, calc.ID)
	if err != nil {
		return nil, err
	}
	return &aggregate{calc: calc, plan: plan, chain: NewChain(calc.ID, plan.ApprovalLevels, approvals)}, nil
}

// CurrentPending returns the pending approval of a calculation, or nil.
func (e *Engine) CurrentPending(ctx context.Context, calculationID string) (*Approval, error) {
	agg, err := e.loadAggregate(ctx, calculationID)
	if err != nil {
		return nil, err
	}
	return agg.chain.CurrentPending(), nil
}

// Decide records an approval decision. Approval at the last level approves the
// calculation; approval at an earlier level opens the next level; rejection at
// any level rejects the calculation and expires whatever is still pending.
func (e *Engine) Decide(ctx context.Context, approvalID, actor string, approved bool, comments string) (*Calculation, error) {
	agg, err := e.loadByApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if agg.calc.Status != StatusPendingApproval {
		return nil, &InvalidStateError{Entity: "calculation", ID: agg.calc.ID, Status: string(agg.calc.Status), Action: "decide"}
	}

	now := e.now()
	d, err := agg.chain.Decide(approvalID, actor, approved, comments, now)
	if err != nil {
		return nil, err
	}

	work := agg.calc.Clone()
	fx := &effects{}
	touched := []Approval{d.Approval}
	var change Change
	var opened *Approval

	switch {
	case !approved:
		change, err = e.lifecycle.Apply(work, ActionReject, actor, now, comments)
		work.RejectionReason = comments
	case d.Final:
		change, err = e.lifecycle.Apply(work, ActionApprove, actor, now, comments)
	default:
		change, err = e.lifecycle.Apply(work, ActionAdvance, actor, now, fmt.Sprintf("level %d approved", d.Approval.Level))
		if err == nil {
			var approver string
			approver, err = e.approvers.ApproverFor(ctx, agg.plan, work, d.Approval.Level+1)
			if err == nil {
				var next Approval
				next, err = agg.chain.Open(e.newID(), approver, now)
				opened = &next
			}
		}
	}
	if err != nil {
		return nil, err
	}
	touched = append(touched, d.Expired...)
	if opened != nil {
		touched = append(touched, *opened)
	}

	if err := e.commit(ctx, "decide", work, agg.calc.Version, touched); err != nil {
		return nil, err
	}

	fx.change(change)
	fx.approval(d.Approval, string(d.Approval.Status), string(ApprovalPending), actor, now)
	for _, x := range d.Expired {
		fx.approval(x, "expired", string(ApprovalPending), actor, now)
	}
	switch {
	case opened != nil:
		fx.approval(*opened, "opened", "", actor, now)
		fx.notify(EventApprovalPending, work, opened, opened.ApproverID, now)
	case approved:
		fx.notify(EventApprovalApproved, work, &d.Approval, work.EmployeeID, now)
	default:
		fx.notify(EventApprovalRejected, work, &d.Approval, work.EmployeeID, now)
	}
	e.metrics.TransitionApplied(change.Action, change.To)
	e.log.Info("approval decided",
		zap.String("approval_id", approvalID),
		zap.String("calculation_id", work.ID),
		zap.Bool("approved", approved),
		zap.Int("level", d.Approval.Level),
		zap.String("status", string(work.Status)))
	e.emit(ctx, fx)
	return work, nil
}

// Delegate lets the current assignee hand a pending approval to toUserID.
func (e *Engine) Delegate(ctx context.Context, approvalID, actor, toUserID string) (*Approval, error) {
	agg, err := e.loadByApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	delegated, err := agg.chain.Delegate(approvalID, actor, toUserID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	work := agg.calc.Clone()
	change, err := e.lifecycle.Apply(work, ActionAdvance, actor, now, "delegated to "+toUserID)
	if err != nil {
		return nil, err
	}
	if err := e.commit(ctx, "delegate", work, agg.calc.Version, []Approval{delegated}); err != nil {
		return nil, err
	}

	fx := &effects{}
	fx.change(change)
	fx.audit = append(fx.audit, AuditRecord{
		EntityType: "approval",
		EntityID:   delegated.ID,
		Action:     "delegated",
		ActorID:    actor,
		NewValue:   toUserID,
		At:         now,
	})
	fx.notify(EventApprovalPending, work, &delegated, toUserID, now)
	e.metrics.TransitionApplied(change.Action, change.To)
	e.emit(ctx, fx)
	return &delegated, nil
}

// Escalate closes a pending approval and reopens its level for toUserID.
func (e *Engine) Escalate(ctx context.Context, approvalID, actor, toUserID, reason string) (*Approval, error) {
	return e.escalate(ctx, approvalID, actor, toUserID, reason, e.now())
}

func (e *Engine) escalate(ctx context.Context, approvalID, actor, toUserID, reason string, now time.Time) (*Approval, error) {
	agg, err := e.loadByApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	closed, opened, err := agg.chain.Escalate(approvalID, e.newID(), toUserID, reason, now)
	if err != nil {
		return nil, err
	}

	work := agg.calc.Clone()
	change, err := e.lifecycle.Apply(work, ActionAdvance, actor, now, "escalated to "+toUserID)
	if err != nil {
		return nil, err
	}
	if err := e.commit(ctx, "escalate", work, agg.calc.Version, []Approval{closed, opened}); err != nil {
		return nil, err
	}

	fx := &effects{}
	fx.change(change)
	fx.approval(closed, "escalated", string(ApprovalPending), actor, now)
	fx.approval(opened, "opened", "", actor, now)
	fx.notify(EventApprovalPending, work, &opened, toUserID, now)
	e.metrics.TransitionApplied(change.Action, change.To)
	e.log.Info("approval escalated",
		zap.String("approval_id", approvalID),
		zap.String("new_approval_id", opened.ID),
		zap.String("to", toUserID),
		zap.String("reason", reason))
	e.emit(ctx, fx)
	return &opened, nil
}

// =============================================================================
// PAYMENT AND CANCELLATION
// =============================================================================

// MarkPaid records that payroll released an Approved calculation in batchReference.
func (e *Engine) MarkPaid(ctx context.Context, calculationID, batchReference string) (*Calculation, error) {
	if batchReference == "" {
		return nil, invalid("batch_reference", "is required")
	}
	calc, err := e.store.LoadCalculation(ctx, calculationID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	work := calc.Clone()
	change, err := e.lifecycle.Apply(work, ActionMarkPaid, SystemActor, now, "batch "+batchReference)
	if err != nil {
		return nil, err
	}
	work.PaymentReference = batchReference
	if err := e.commit(ctx, "mark_paid", work, calc.Version, nil); err != nil {
		return nil, err
	}

	fx := &effects{}
	fx.change(change)
	fx.notify(EventPaymentProcessed, work, nil, work.EmployeeID, now)
	e.metrics.TransitionApplied(change.Action, change.To)
	e.emit(ctx, fx)
	return work, nil
}

// Cancel withdraws a non-terminal calculation and expires its pending approval.
func (e *Engine) Cancel(ctx context.Context, calculationID, actor, reason string) (*Calculation, error) {
	if reason == "" {
		return nil, invalid("reason", "is required")
	}
	agg, err := e.loadAggregate(ctx, calculationID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	work := agg.calc.Clone()
	change, err := e.lifecycle.Apply(work, ActionCancel, actor, now, reason)
	if err != nil {
		return nil, err
	}
	work.CancellationReason = reason
	expired := agg.chain.ExpirePending(now, "calculation cancelled: "+reason)
	if err := e.commit(ctx, "cancel", work, agg.calc.Version, expired); err != nil {
		return nil, err
	}

	fx := &effects{}
	fx.change(change)
	for _, x := range expired {
		fx.approval(x, "expired", string(ApprovalPending), actor, now)
	}
	e.metrics.TransitionApplied(change.Action, change.To)
	e.emit(ctx, fx)
	return work, nil
}

// =============================================================================
// ESCALATION SCAN
// =============================================================================

// ScanForEscalation finds pending approvals past slaHours and acts on them
// according to the escalation policy. Approvals nearing the SLA only get an
// early-warning notification. Every breached approval ends up in Escalated,
// Alerted or Failures; none is dropped.
//
// Each escalation goes through the same versioned path as Escalate, so an
// overlapping scan loses with ConcurrencyConflict or InvalidState instead of
// escalating twice.
func (e *Engine) ScanForEscalation(ctx context.Context, now time.Time, slaHours float64) (*EscalationReport, error) {
	if slaHours <= 0 {
		return nil, invalid("sla_hours", "must be positive, got %v", slaHours)
	}
	pending, err := e.store.ListPendingApprovals(ctx)
	if err != nil {
		return nil, err
	}
	policy := e.escalation
	scan := ScanSLA(pending, now, slaHours, policy.warningRatio())

	report := &EscalationReport{ScannedAt: now, Breached: scan.Breached, Warnings: scan.Warnings}
	fx := &effects{}

	for i := range scan.Warnings {
		a := scan.Warnings[i]
		fx.notifications = append(fx.notifications, slaNotification(EventSLAWarning, a, now, slaHours))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	workers := policy.Workers
	if workers <= 0 {
		workers = 4
	}
	g.SetLimit(workers)

	for i := range scan.Breached {
		a := scan.Breached[i]
		if policy.Mode != EscalateAuto || policy.EscalateTo == "" || a.Assignee() == policy.EscalateTo {
			report.Alerted = append(report.Alerted, a)
			fx.notifications = append(fx.notifications, slaNotification(EventSLABreach, a, now, slaHours))
			continue
		}
		g.Go(func() error {
			reason := fmt.Sprintf("SLA of %vh breached after %s", slaHours, a.Age(now).Round(time.Minute))
			opened, err := e.escalate(gctx, a.ID, SystemActor, policy.EscalateTo, reason, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.log.Warn("escalation failed", zap.String("approval_id", a.ID), zap.Error(err))
				report.Failures = append(report.Failures, EscalationFailure{ApprovalID: a.ID, Error: err.Error()})
				return nil
			}
			report.Escalated = append(report.Escalated, *opened)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	oldestFirst(report.Escalated)
	sortFailures(report.Failures)
	e.metrics.EscalationOutcome("warning", len(report.Warnings))
	e.metrics.EscalationOutcome("escalated", len(report.Escalated))
	e.metrics.EscalationOutcome("alerted", len(report.Alerted))
	e.metrics.EscalationOutcome("failed", len(report.Failures))
	e.log.Info("escalation scan complete",
		zap.Time("now", now),
		zap.Float64("sla_hours", slaHours),
		zap.Int("breached", len(report.Breached)),
		zap.Int("warnings", len(report.Warnings)),
		zap.Int("escalated", len(report.Escalated)),
		zap.Int("alerted", len(report.Alerted)),
		zap.Int("failures", len(report.Failures)))
	e.emit(ctx, fx)
	return report, nil
}

func slaNotification(event EventType, a Approval, now time.Time, slaHours float64) Notification {
	return Notification{
		Event:         event,
		CalculationID: a.CalculationID,
		ApprovalID:    a.ID,
		RecipientID:   a.Assignee(),
		Level:         a.Level,
		At:            now,
		Payload: map[string]string{
			"age_hours": fmt.Sprintf("%.1f", a.Age(now).Hours()),
			"sla_hours": fmt.Sprintf("%v", slaHours),
		},
	}
}

func sortFailures(list []EscalationFailure) {
	sort.Slice(list, func(i, j int) bool { return list[i].ApprovalID < list[j].ApprovalID })
}
