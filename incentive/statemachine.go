package incentive

import (
	"sort"
	"time"
)

// =============================================================================
// ACTIONS
// =============================================================================

// Action is something that can be done to a calculation.
type Action string

const (
	ActionRecalculate Action = "recalculate"
	ActionSupersede   Action = "supersede" // status kept, aggregate retired by a newer calculation
	ActionSubmit      Action = "submit"
	ActionAutoApprove Action = "auto_approve"
	ActionAdvance     Action = "advance" // intermediate approval, delegation, escalation
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionMarkPaid    Action = "mark_paid"
	ActionCancel      Action = "cancel"
)

// =============================================================================
// TRANSITION TABLE - the single source of truth for legal moves
// =============================================================================

type transitionKey struct {
	from   CalculationStatus
	action Action
}

// StateMachine maps (status, action) to the next status.
type StateMachine struct {
	table map[transitionKey]CalculationStatus
}

// NewStateMachine returns an empty machine; configure it with Permit.
func NewStateMachine() *StateMachine {
	return &StateMachine{table: make(map[transitionKey]CalculationStatus)}
}

// Permit allows action to move a calculation from one status to another.
func (m *StateMachine) Permit(from CalculationStatus, action Action, to CalculationStatus) *StateMachine {
	m.table[transitionKey{from: from, action: action}] = to
	return m
}

// Next returns the status action leads to from status, or false if not permitted.
func (m *StateMachine) Next(from CalculationStatus, action Action) (CalculationStatus, bool) {
	to, ok := m.table[transitionKey{from: from, action: action}]
	return to, ok
}

// Permitted lists the actions allowed from status, sorted.
func (m *StateMachine) Permitted(from CalculationStatus) []Action {
	var out []Action
	for k := range m.table {
		if k.from == from {
			out = append(out, k.action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CalculationLifecycle is the transition table for calculations.
//
//	Calculated -> PendingApproval -> Approved | Rejected
//	Approved   -> Paid
//	any non-terminal -> Cancelled
//
// Supersede keeps the status and only retires the aggregate; it is allowed
// where no payout is committed.
var CalculationLifecycle = NewStateMachine().
	Permit(StatusCalculated, ActionRecalculate, StatusCalculated).
	Permit(StatusCalculated, ActionSubmit, StatusPendingApproval).
	Permit(StatusCalculated, ActionAutoApprove, StatusApproved).
	Permit(StatusCalculated, ActionCancel, StatusCancelled).
	Permit(StatusPendingApproval, ActionAdvance, StatusPendingApproval).
	Permit(StatusPendingApproval, ActionApprove, StatusApproved).
	Permit(StatusPendingApproval, ActionReject, StatusRejected).
	Permit(StatusPendingApproval, ActionCancel, StatusCancelled).
	Permit(StatusApproved, ActionMarkPaid, StatusPaid).
	Permit(StatusApproved, ActionCancel, StatusCancelled).
	Permit(StatusCalculated, ActionSupersede, StatusCalculated).
	Permit(StatusRejected, ActionSupersede, StatusRejected).
	Permit(StatusCancelled, ActionSupersede, StatusCancelled).
	Permit(StatusIneligible, ActionSupersede, StatusIneligible)

// =============================================================================
// TRANSITIONS
// =============================================================================

// Change is the domain event emitted by every applied transition.
type Change struct {
	EntityType string
	EntityID   string
	Action     Action
	From       CalculationStatus
	To         CalculationStatus
	Actor      string
	At         time.Time
	Reason     string
	Version    int
}

// Apply moves calc through action, bumps its version, and returns the change.
// calc is left untouched when the move is not permitted.
func (m *StateMachine) Apply(calc *Calculation, action Action, actor string, at time.Time, reason string) (Change, error) {
	to, ok := m.Next(calc.Status, action)
	if !ok {
		return Change{}, &InvalidStateError{
			Entity: "calculation",
			ID:     calc.ID,
			Status: string(calc.Status),
			Action: string(action),
		}
	}
	from := calc.Status
	calc.Status = to
	calc.Version++
	return Change{
		EntityType: "calculation",
		EntityID:   calc.ID,
		Action:     action,
		From:       from,
		To:         to,
		Actor:      actor,
		At:         at,
		Reason:     reason,
		Version:    calc.Version,
	}, nil
}
