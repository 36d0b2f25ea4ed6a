/*
approval.go - Multi-level approval chain for one calculation

PURPOSE:
  Chain owns the ordered Approval records of a single calculation and
  enforces how they move. It is pure: every method mutates the in-memory
  chain and returns the records it touched so the caller can persist them
  together with the calculation's version bump.

INVARIANTS:
  - at most one Pending approval at any time
  - levels start at 1 and are contiguous
  - only the approver or its delegate may decide
  - delegation keeps the level and the record, it only sets DelegatedToID
  - escalation closes the pending record as Escalated and opens a fresh
    Pending record at the same level for the escalation target

SEE ALSO:
  - engine.go: Decide, Delegate, Escalate wire the chain to the store
  - escalation.go: ScanSLA selects pending approvals past their SLA
*/
package incentive

import (
	"sort"
	"strconv"
	"time"
)

// Chain is the approval history of one calculation.
type Chain struct {
	CalculationID string
	Levels        int
	approvals     []Approval
}

// NewChain orders approvals by level then creation time.
func NewChain(calculationID string, levels int, approvals []Approval) *Chain {
	cp := make([]Approval, len(approvals))
	copy(cp, approvals)
	sort.SliceStable(cp, func(i, j int) bool {
		if cp[i].Level != cp[j].Level {
			return cp[i].Level < cp[j].Level
		}
		return cp[i].CreatedAt.Before(cp[j].CreatedAt)
	})
	return &Chain{CalculationID: calculationID, Levels: levels, approvals: cp}
}

// Approvals returns a copy of the history.
func (c *Chain) Approvals() []Approval {
	out := make([]Approval, len(c.approvals))
	copy(out, c.approvals)
	return out
}

// CurrentPending returns the pending approval, if any.
func (c *Chain) CurrentPending() *Approval {
	for i := range c.approvals {
		if c.approvals[i].Status == ApprovalPending {
			a := c.approvals[i]
			return &a
		}
	}
	return nil
}

func (c *Chain) index(approvalID string) (int, error) {
	for i := range c.approvals {
		if c.approvals[i].ID == approvalID {
			return i, nil
		}
	}
	return -1, NotFound("approval", approvalID)
}

func (c *Chain) pendingIndex(approvalID string, action string) (int, error) {
	i, err := c.index(approvalID)
	if err != nil {
		return -1, err
	}
	if c.approvals[i].Status != ApprovalPending {
		return -1, &InvalidStateError{
			Entity: "approval",
			ID:     approvalID,
			Status: string(c.approvals[i].Status),
			Action: action,
		}
	}
	return i, nil
}

func (c *Chain) topLevel() int {
	top := 0
	for _, a := range c.approvals {
		if a.Level > top {
			top = a.Level
		}
	}
	return top
}

// Open creates the pending approval for the next level.
func (c *Chain) Open(id, approverID string, now time.Time) (Approval, error) {
	if p := c.CurrentPending(); p != nil {
		return Approval{}, &InvalidStateError{Entity: "approval", ID: p.ID, Status: string(p.Status), Action: "open next level"}
	}
	level := c.topLevel() + 1
	if level > c.Levels {
		return Approval{}, invalid("level", "chain has %d levels, cannot open level %d", c.Levels, level)
	}
	if approverID == "" {
		return Approval{}, invalid("approver_id", "no approver for level %d", level)
	}
	a := Approval{
		ID:            id,
		CalculationID: c.CalculationID,
		Level:         level,
		ApproverID:    approverID,
		Status:        ApprovalPending,
		CreatedAt:     now,
	}
	c.approvals = append(c.approvals, a)
	return a, nil
}

// Decision is the outcome of Decide.
type Decision struct {
	Approval Approval
	// Final is true when the last level approved.
	Final bool
	// Expired holds any pending records closed by a rejection.
	Expired []Approval
}

// Decide records an approve or reject decision by actor.
func (c *Chain) Decide(approvalID, actor string, approved bool, comments string, now time.Time) (Decision, error) {
	i, err := c.pendingIndex(approvalID, "decide")
	if err != nil {
		return Decision{}, err
	}
	a := &c.approvals[i]
	if !a.CanAct(actor) {
		return Decision{}, &UnauthorizedError{ApprovalID: approvalID, ActorID: actor}
	}

	decided := now
	a.DecidedAt = &decided
	a.Comments = comments
	if approved {
		a.Status = ApprovalApproved
		return Decision{Approval: *a, Final: a.Level >= c.Levels}, nil
	}

	a.Status = ApprovalRejected
	d := Decision{Approval: *a}
	d.Expired = c.ExpirePending(now, "closed by rejection at level "+strconv.Itoa(a.Level))
	return d, nil
}

// Delegate hands a pending approval to another user without changing its level.
func (c *Chain) Delegate(approvalID, actor, toUserID string) (Approval, error) {
	i, err := c.pendingIndex(approvalID, "delegate")
	if err != nil {
		return Approval{}, err
	}
	a := &c.approvals[i]
	if !a.CanAct(actor) {
		return Approval{}, &UnauthorizedError{ApprovalID: approvalID, ActorID: actor}
	}
	if toUserID == "" {
		return Approval{}, invalid("to_user_id", "is required")
	}
	if toUserID == a.Assignee() {
		return Approval{}, invalid("to_user_id", "%s already holds approval %s", toUserID, approvalID)
	}
	a.DelegatedToID = toUserID
	return *a, nil
}

// Escalate closes a pending approval and reopens its level for toUserID.
func (c *Chain) Escalate(approvalID, newID, toUserID, reason string, now time.Time) (closed, opened Approval, err error) {
	i, err := c.pendingIndex(approvalID, "escalate")
	if err != nil {
		return Approval{}, Approval{}, err
	}
	if toUserID == "" {
		return Approval{}, Approval{}, invalid("to_user_id", "is required")
	}
	a := &c.approvals[i]
	if a.Assignee() == toUserID {
		return Approval{}, Approval{}, invalid("to_user_id", "approval %s is already assigned to %s", approvalID, toUserID)
	}

	decided := now
	a.Status = ApprovalEscalated
	a.DecidedAt = &decided
	a.Comments = reason
	closed = *a

	opened = Approval{
		ID:            newID,
		CalculationID: c.CalculationID,
		Level:         a.Level,
		ApproverID:    toUserID,
		Status:        ApprovalPending,
		CreatedAt:     now,
	}
	c.approvals = append(c.approvals, opened)
	return closed, opened, nil
}

// ExpirePending closes every pending approval and returns them.
func (c *Chain) ExpirePending(now time.Time, reason string) []Approval {
	var out []Approval
	for i := range c.approvals {
		a := &c.approvals[i]
		if a.Status != ApprovalPending {
			continue
		}
		decided := now
		a.Status = ApprovalExpired
		a.DecidedAt = &decided
		a.Comments = reason
		out = append(out, *a)
	}
	return out
}

// Validate checks the chain invariants hold.
func (c *Chain) Validate() error {
	pending := 0
	prev := 0
	for _, a := range c.approvals {
		if a.Status == ApprovalPending {
			pending++
		}
		if a.Level < 1 {
			return invalid("level", "approval %s has level %d", a.ID, a.Level)
		}
		if a.Level != prev && a.Level != prev+1 {
			return invalid("level", "levels skip from %d to %d", prev, a.Level)
		}
		prev = a.Level
	}
	if pending > 1 {
		return invalid("approvals", "%d pending approvals on calculation %s", pending, c.CalculationID)
	}
	return nil
}
