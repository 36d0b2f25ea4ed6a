// Package store provides an in-memory incentive.Store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/incentive-engine/incentive"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a thread-safe incentive.Store, audit sink and plan repository.
type Memory struct {
	mu    sync.RWMutex
	state *memState
}

type liveKey struct {
	EmployeeID string
	PlanID     string
	Period     string
}

type memState struct {
	plans     map[string]incentive.Plan
	calcs     map[string]incentive.Calculation
	live      map[liveKey]string
	revisions map[string][]incentive.Calculation
	approvals map[string]incentive.Approval
	byCalc    map[string][]string
	audit     []incentive.AuditRecord
}

func newMemState() *memState {
	return &memState{
		plans:     make(map[string]incentive.Plan),
		calcs:     make(map[string]incentive.Calculation),
		live:      make(map[liveKey]string),
		revisions: make(map[string][]incentive.Calculation),
		approvals: make(map[string]incentive.Approval),
		byCalc:    make(map[string][]string),
	}
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func keyOf(c *incentive.Calculation) liveKey {
	return liveKey{EmployeeID: c.EmployeeID, PlanID: c.PlanID, Period: c.Period.Key()}
}

// =============================================================================
// PLANS
// =============================================================================

// SavePlan inserts or replaces a plan. Plan codes are unique.
func (m *Memory) SavePlan(_ context.Context, p incentive.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.state.plans {
		if existing.Code == p.Code && id != p.ID {
			return &incentive.ValidationError{Field: "code", Message: "plan code " + p.Code + " already in use"}
		}
	}
	m.state.plans[p.ID] = p
	return nil
}

// ListPlans returns all plans ordered by code.
func (m *Memory) ListPlans(_ context.Context) ([]incentive.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]incentive.Plan, 0, len(m.state.plans))
	for _, p := range m.state.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) LoadPlan(ctx context.Context, id string) (*incentive.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.LoadPlan(ctx, id)
}

// =============================================================================
// CALCULATIONS
// =============================================================================

func (m *Memory) LoadCalculation(ctx context.Context, id string) (*incentive.Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.LoadCalculation(ctx, id)
}

func (m *Memory) FindLiveCalculation(ctx context.Context, employeeID, planID string, period incentive.DateRange) (*incentive.Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.FindLiveCalculation(ctx, employeeID, planID, period)
}

func (m *Memory) SaveCalculation(ctx context.Context, calc *incentive.Calculation, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveCalculation(ctx, calc, expectedVersion)
}

func (m *Memory) ArchiveRevision(ctx context.Context, rev *incentive.Calculation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ArchiveRevision(ctx, rev)
}

func (m *Memory) ListRevisions(ctx context.Context, calculationID string) ([]incentive.Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListRevisions(ctx, calculationID)
}

// ListCalculations returns calculations, optionally filtered by employee, oldest first.
func (m *Memory) ListCalculations(_ context.Context, employeeID string) ([]incentive.Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []incentive.Calculation
	for _, c := range m.state.calcs {
		if employeeID == "" || c.EmployeeID == employeeID {
			out = append(out, *c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CalculatedAt.Equal(out[j].CalculatedAt) {
			return out[i].CalculatedAt.Before(out[j].CalculatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// APPROVALS
// =============================================================================

func (m *Memory) LoadApproval(ctx context.Context, id string) (*incentive.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.LoadApproval(ctx, id)
}

func (m *Memory) LoadApprovals(ctx context.Context, calculationID string) ([]incentive.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.LoadApprovals(ctx, calculationID)
}

func (m *Memory) SaveApproval(ctx context.Context, a incentive.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveApproval(ctx, a)
}

func (m *Memory) ListPendingApprovals(ctx context.Context) ([]incentive.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListPendingApprovals(ctx)
}

// =============================================================================
// AUDIT SINK
// =============================================================================

// Record appends an audit record.
func (m *Memory) Record(_ context.Context, rec incentive.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.audit = append(m.state.audit, rec)
	return nil
}

// AuditTrail returns the records for one entity in the order they were written.
// An empty entityID returns everything.
func (m *Memory) AuditTrail(_ context.Context, entityID string) ([]incentive.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []incentive.AuditRecord
	for _, r := range m.state.audit {
		if entityID == "" || r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONS - snapshot and restore on error
// =============================================================================

// WithTx runs fn under the write lock. On error the store is restored to the
// state it had before fn ran.
func (m *Memory) WithTx(ctx context.Context, fn func(incentive.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.state.clone()
	if err := fn(txView{m.state}); err != nil {
		m.state = snap
		return err
	}
	return nil
}

// txView runs store calls against already-locked state.
type txView struct {
	*memState
}

func (tv txView) WithTx(_ context.Context, fn func(incentive.Store) error) error {
	return fn(tv)
}

func (s *memState) clone() *memState {
	cp := newMemState()
	for k, v := range s.plans {
		cp.plans[k] = v
	}
	for k, v := range s.calcs {
		cp.calcs[k] = v
	}
	for k, v := range s.live {
		cp.live[k] = v
	}
	for k, v := range s.revisions {
		cp.revisions[k] = append([]incentive.Calculation(nil), v...)
	}
	for k, v := range s.approvals {
		cp.approvals[k] = v
	}
	for k, v := range s.byCalc {
		cp.byCalc[k] = append([]string(nil), v...)
	}
	cp.audit = append([]incentive.AuditRecord(nil), s.audit...)
	return cp
}

// =============================================================================
// UNLOCKED STATE OPERATIONS
// =============================================================================

func (s *memState) LoadPlan(_ context.Context, id string) (*incentive.Plan, error) {
	p, ok := s.plans[id]
	if !ok {
		return nil, incentive.NotFound("plan", id)
	}
	return &p, nil
}

func (s *memState) LoadCalculation(_ context.Context, id string) (*incentive.Calculation, error) {
	c, ok := s.calcs[id]
	if !ok {
		return nil, incentive.NotFound("calculation", id)
	}
	return c.Clone(), nil
}

func (s *memState) FindLiveCalculation(_ context.Context, employeeID, planID string, period incentive.DateRange) (*incentive.Calculation, error) {
	id, ok := s.live[liveKey{EmployeeID: employeeID, PlanID: planID, Period: period.Key()}]
	if !ok {
		return nil, nil
	}
	c := s.calcs[id]
	return c.Clone(), nil
}

func (s *memState) SaveCalculation(_ context.Context, calc *incentive.Calculation, expectedVersion int) error {
	conflict := &incentive.ConcurrencyConflictError{Entity: "calculation", ID: calc.ID, ExpectedVersion: expectedVersion}
	k := keyOf(calc)

	current, exists := s.calcs[calc.ID]
	if expectedVersion == 0 {
		if exists {
			return conflict
		}
		if _, taken := s.live[k]; taken && !calc.Superseded {
			return conflict
		}
	} else if !exists || current.Version != expectedVersion {
		return conflict
	}

	s.calcs[calc.ID] = *calc.Clone()
	if calc.Superseded {
		if s.live[k] == calc.ID {
			delete(s.live, k)
		}
	} else {
		s.live[k] = calc.ID
	}
	return nil
}

func (s *memState) ArchiveRevision(_ context.Context, rev *incentive.Calculation) error {
	s.revisions[rev.ID] = append(s.revisions[rev.ID], *rev.Clone())
	return nil
}

func (s *memState) ListRevisions(_ context.Context, calculationID string) ([]incentive.Calculation, error) {
	return append([]incentive.Calculation(nil), s.revisions[calculationID]...), nil
}

func (s *memState) LoadApproval(_ context.Context, id string) (*incentive.Approval, error) {
	a, ok := s.approvals[id]
	if !ok {
		return nil, incentive.NotFound("approval", id)
	}
	return &a, nil
}

func (s *memState) LoadApprovals(_ context.Context, calculationID string) ([]incentive.Approval, error) {
	ids := s.byCalc[calculationID]
	out := make([]incentive.Approval, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.approvals[id])
	}
	return out, nil
}

func (s *memState) SaveApproval(_ context.Context, a incentive.Approval) error {
	if _, ok := s.approvals[a.ID]; !ok {
		s.byCalc[a.CalculationID] = append(s.byCalc[a.CalculationID], a.ID)
	}
	s.approvals[a.ID] = a
	return nil
}

func (s *memState) ListPendingApprovals(_ context.Context) ([]incentive.Approval, error) {
	var out []incentive.Approval
	for _, a := range s.approvals {
		if a.Status == incentive.ApprovalPending {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var (
	_ incentive.Store     = (*Memory)(nil)
	_ incentive.AuditSink = (*Memory)(nil)
	_ incentive.Store     = txView{}
)
