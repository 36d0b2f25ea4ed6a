package incentive

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CALCULATION - aggregate root
// =============================================================================

// CalculationStatus is the lifecycle state of a calculation.
type CalculationStatus string

const (
	StatusCalculated      CalculationStatus = "calculated"
	StatusPendingApproval CalculationStatus = "pending_approval"
	StatusApproved        CalculationStatus = "approved"
	StatusRejected        CalculationStatus = "rejected"
	StatusPaid            CalculationStatus = "paid"
	StatusCancelled       CalculationStatus = "cancelled"
	StatusIneligible      CalculationStatus = "ineligible"
)

// IsTerminal returns true for statuses that accept no further transitions.
func (s CalculationStatus) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusRejected, StatusCancelled, StatusIneligible:
		return true
	}
	return false
}

// Calculation is the payout computed for one (employee, plan, period).
// It is never deleted; it only moves through the state machine.
// Version increments on every persisted mutation and is the concurrency token.
type Calculation struct {
	ID                    string            `json:"id"`
	EmployeeID            string            `json:"employee_id"`
	PlanID                string            `json:"plan_id"`
	Period                DateRange         `json:"period"`
	TargetValue           decimal.Decimal   `json:"target_value"`
	ActualValue           decimal.Decimal   `json:"actual_value"`
	AchievementPercentage Percentage        `json:"achievement_percentage"`
	AppliedSlabID         string            `json:"applied_slab_id,omitempty"`
	GrossIncentive        Money             `json:"gross_incentive"`
	NetIncentive          Money             `json:"net_incentive"`
	ProrataFactor         *decimal.Decimal  `json:"prorata_factor,omitempty"`
	Status                CalculationStatus `json:"status"`
	CalculatedAt          time.Time         `json:"calculated_at"`
	CalculatedBy          string            `json:"calculated_by"`
	RejectionReason       string            `json:"rejection_reason,omitempty"`
	AdjustmentReason      string            `json:"adjustment_reason,omitempty"`
	CancellationReason    string            `json:"cancellation_reason,omitempty"`
	PaymentReference      string            `json:"payment_reference,omitempty"`
	Version               int               `json:"version"`
	Superseded            bool              `json:"superseded"`
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (c *Calculation) Clone() *Calculation {
	cp := *c
	if c.ProrataFactor != nil {
		f := *c.ProrataFactor
		cp.ProrataFactor = &f
	}
	return &cp
}

// SameResult reports whether two calculations carry identical computed figures.
func (c *Calculation) SameResult(o *Calculation) bool {
	return c.Status == o.Status &&
		c.AppliedSlabID == o.AppliedSlabID &&
		c.AchievementPercentage.Equal(o.AchievementPercentage) &&
		c.GrossIncentive.Equal(o.GrossIncentive) &&
		c.NetIncentive.Equal(o.NetIncentive) &&
		c.AdjustmentReason == o.AdjustmentReason
}

// =============================================================================
// APPROVAL - child of Calculation
// =============================================================================

// ApprovalStatus is the state of one approval record.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalEscalated ApprovalStatus = "escalated"
	ApprovalExpired   ApprovalStatus = "expired"
)

// Approval is one approver's decision slot at one level.
// Once decided it is immutable; while pending only the delegate may change.
type Approval struct {
	ID            string         `json:"id"`
	CalculationID string         `json:"calculation_id"`
	Level         int            `json:"level"`
	ApproverID    string         `json:"approver_id"`
	Status        ApprovalStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	DecidedAt     *time.Time     `json:"decided_at,omitempty"`
	DelegatedToID string         `json:"delegated_to_id,omitempty"`
	Comments      string         `json:"comments,omitempty"`
}

// CanAct returns true if actor is the approver or the current delegate.
func (a *Approval) CanAct(actor string) bool {
	if actor == "" {
		return false
	}
	return actor == a.ApproverID || (a.DelegatedToID != "" && actor == a.DelegatedToID)
}

// Assignee is who is expected to act next.
func (a *Approval) Assignee() string {
	if a.DelegatedToID != "" {
		return a.DelegatedToID
	}
	return a.ApproverID
}

// Age is how long the approval has been open at now.
func (a *Approval) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}
