/*
store.go - Collaborators the engine calls but does not implement

PURPOSE:
  The engine is storage- and transport-agnostic. It reaches persistence,
  audit and notification only through the interfaces below.

CONDITIONAL WRITES:
  SaveCalculation(calc, expectedVersion) is the concurrency primitive.
    expectedVersion == 0  insert; fails with ConcurrencyConflictError if the
                          id exists or a live (non-superseded) calculation
                          already holds the (employee, plan, period) triple
    expectedVersion  > 0  update only if the stored version still equals
                          expectedVersion; otherwise ConcurrencyConflictError

  Approvals are children of the calculation. Every approval write happens in
  the same WithTx callback as a versioned calculation write, so the
  calculation version serializes all activity on the aggregate.

IMPLEMENTATIONS:
  - incentive/store: in-memory, for tests and development
  - store/sqlite: SQLite with a partial unique index on live triples
  - store/plancache: Redis read-through cache in front of LoadPlan
*/
package incentive

import (
	"context"
	"time"
)

// Store persists plans, calculations and approvals.
type Store interface {
	LoadPlan(ctx context.Context, id string) (*Plan, error)

	LoadCalculation(ctx context.Context, id string) (*Calculation, error)
	// FindLiveCalculation returns the non-superseded calculation for the triple, or nil.
	FindLiveCalculation(ctx context.Context, employeeID, planID string, period DateRange) (*Calculation, error)
	SaveCalculation(ctx context.Context, calc *Calculation, expectedVersion int) error
	// ArchiveRevision keeps a superseded revision of a calculation rewritten in place.
	ArchiveRevision(ctx context.Context, rev *Calculation) error
	ListRevisions(ctx context.Context, calculationID string) ([]Calculation, error)

	LoadApproval(ctx context.Context, id string) (*Approval, error)
	LoadApprovals(ctx context.Context, calculationID string) ([]Approval, error)
	SaveApproval(ctx context.Context, a Approval) error
	ListPendingApprovals(ctx context.Context) ([]Approval, error)

	// WithTx runs fn atomically. If fn returns an error nothing it wrote is kept.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditRecord is one state change, emitted after the change is committed.
type AuditRecord struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// AuditSink receives audit records. Failures are logged, never propagated.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// EventType classifies notifications.
type EventType string

const (
	EventApprovalPending  EventType = "approval_pending"
	EventApprovalApproved EventType = "approval_approved"
	EventApprovalRejected EventType = "approval_rejected"
	EventSLAWarning       EventType = "sla_warning"
	EventSLABreach        EventType = "sla_breach"
	EventPaymentProcessed EventType = "payment_processed"
)

// Notification is handed to the dispatcher after a committed change.
type Notification struct {
	Event         EventType         `json:"event"`
	CalculationID string            `json:"calculation_id"`
	ApprovalID    string            `json:"approval_id,omitempty"`
	RecipientID   string            `json:"recipient_id"`
	Level         int               `json:"level,omitempty"`
	At            time.Time         `json:"at"`
	Payload       map[string]string `json:"payload,omitempty"`
}

// Notifier delivers notifications. Delivery is fire-and-forget from the engine's side.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// =============================================================================
// APPROVER RESOLUTION
// =============================================================================

// ApproverResolver picks the approver for a level of a calculation's chain.
type ApproverResolver interface {
	ApproverFor(ctx context.Context, plan *Plan, calc *Calculation, level int) (string, error)
}

// PlanApprovers reads approvers from Plan.Approvers, one per level.
type PlanApprovers struct{}

func (PlanApprovers) ApproverFor(_ context.Context, plan *Plan, _ *Calculation, level int) (string, error) {
	if level < 1 || level > len(plan.Approvers) || plan.Approvers[level-1] == "" {
		return "", invalid("approvers", "plan %s has no approver for level %d", plan.ID, level)
	}
	return plan.Approvers[level-1], nil
}

// =============================================================================
// METRICS
// =============================================================================

// Metrics receives counters from the engine. See package metrics for Prometheus.
type Metrics interface {
	CalculationRecorded(status CalculationStatus)
	TransitionApplied(action Action, to CalculationStatus)
	ConflictDetected(operation string)
	EscalationOutcome(outcome string, n int)
}

type nopMetrics struct{}

func (nopMetrics) CalculationRecorded(CalculationStatus)     {}
func (nopMetrics) TransitionApplied(Action, CalculationStatus) {}
func (nopMetrics) ConflictDetected(string)                   {}
func (nopMetrics) EscalationOutcome(string, int)             {}

type nopAudit struct{}

func (nopAudit) Record(context.Context, AuditRecord) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }
