/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for demos. Each scenario saves a plan and drives a few employees
	through the workflow so every status shows up in the UI.

AVAILABLE SCENARIOS:

	sales-team:    Tiered sales plan with two approval levels; one employee
	               in each of calculated, pending, paid and ineligible
	support-flat:  Flat-amount plan on an incremental target, no approval
	               required (submission auto-approves)

HOW SCENARIOS WORK:
 1. Parse the plan YAML via factory
 2. Save the plan
 3. Calculate for each employee through the engine
 4. Submit, decide and pay as the scenario needs

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "sales-team"}

NOTE:

	Calculations are never deleted, so each scenario loads at most once per
	process. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - factory/plan.go: Plan YAML schema
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/incentive"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "sales-team",
		Name:        "Sales Team",
		Description: "Tiered sales plan, two approval levels, employees at every stage",
	},
	{
		ID:          "support-flat",
		Name:        "Support Flat Bonus",
		Description: "Flat bonus on incremental tickets closed, no approval required",
	},
}

const salesTeamPlanYAML = `
id: demo-sales-2025
code: DEMO-SALES-2025
name: Demo Field Sales 2025
status: active
currency: USD
effective_from: 2025-01-01
effective_to: 2025-12-31
target:
  value: "100000"
  minimum_threshold: "50"
  metric_unit: USD
slabs:
  - {id: below, from: "0", to: "80", rate: "0"}
  - {id: near, from: "80", to: "100", rate: "0.5"}
  - {id: above, from: "100", rate: "1.0"}
maximum_payout: "5000"
requires_approval: true
approval_levels: 2
approvers: [sales-manager, sales-director]
proratable: true
deduction: "gross * 0.05"
`

const supportFlatPlanYAML = `
id: demo-support-2025
code: DEMO-SUPPORT-2025
name: Demo Support Tickets 2025
status: active
currency: USD
effective_from: 2025-01-01
effective_to: 2025-12-31
target:
  value: "200"
  achievement_type: incremental
  metric_unit: tickets
slabs:
  - {id: none, from: "0", to: "100", rate: "0"}
  - {id: bonus, from: "100", rate: "300", flat: true}
requires_approval: false
`

var demoQuarter = incentive.DateRange{
	Start: incentive.Date(2025, time.January, 1),
	End:   incentive.Date(2025, time.March, 31),
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a demo scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var load func(context.Context, string) error
	switch req.ScenarioID {
	case "sales-team":
		load = h.loadSalesTeamScenario
	case "support-flat":
		load = h.loadSupportFlatScenario
	default:
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loadedScenario[req.ScenarioID] {
		writeError(w, http.StatusConflict, "Scenario already loaded", nil)
		return
	}
	if err := load(r.Context(), actor); err != nil {
		h.fail(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.loadedScenario[req.ScenarioID] = true

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSalesTeamScenario(ctx context.Context, actor string) error {
	if err := h.createPlanFromYAML(ctx, salesTeamPlanYAML); err != nil {
		return err
	}

	calc := func(employee string, actual int64) (*incentive.Calculation, error) {
		return h.Engine.Calculate(ctx, incentive.CalculationRequest{
			PlanID:     "demo-sales-2025",
			EmployeeID: employee,
			Period:     demoQuarter,
			Facts:      incentive.Facts{ActualValue: decimal.NewFromInt(actual)},
			Actor:      actor,
		})
	}

	// alice: over target, waiting to be submitted
	if _, err := calc("alice", 120000); err != nil {
		return err
	}

	// bob: near target, waiting on the sales manager
	bob, err := calc("bob", 95000)
	if err != nil {
		return err
	}
	if _, err := h.Engine.SubmitForApproval(ctx, bob.ID, actor); err != nil {
		return err
	}

	// carol: approved at both levels and paid
	carol, err := calc("carol", 110000)
	if err != nil {
		return err
	}
	if _, err := h.Engine.SubmitForApproval(ctx, carol.ID, actor); err != nil {
		return err
	}
	for _, approver := range []string{"sales-manager", "sales-director"} {
		pending, err := h.Engine.CurrentPending(ctx, carol.ID)
		if err != nil {
			return err
		}
		if pending == nil {
			return fmt.Errorf("no pending approval for %s", approver)
		}
		if _, err := h.Engine.Decide(ctx, pending.ID, approver, true, "demo approval"); err != nil {
			return err
		}
	}
	if _, err := h.Engine.MarkPaid(ctx, carol.ID, "DEMO-BATCH-2025-Q1"); err != nil {
		return err
	}

	// dave: below the minimum threshold
	_, err = calc("dave", 40000)
	return err
}

func (h *Handler) loadSupportFlatScenario(ctx context.Context, actor string) error {
	if err := h.createPlanFromYAML(ctx, supportFlatPlanYAML); err != nil {
		return err
	}

	for _, e := range []struct {
		employee string
		baseline int64
		actual   int64
	}{
		{"erin", 150, 380},
		{"frank", 200, 310},
	} {
		calc, err := h.Engine.Calculate(ctx, incentive.CalculationRequest{
			PlanID:     "demo-support-2025",
			EmployeeID: e.employee,
			Period:     demoQuarter,
			Facts: incentive.Facts{
				ActualValue:   decimal.NewFromInt(e.actual),
				BaselineValue: decimal.NewFromInt(e.baseline),
			},
			Actor: actor,
		})
		if err != nil {
			return err
		}
		if calc.Status != incentive.StatusCalculated {
			continue
		}
		if _, err := h.Engine.SubmitForApproval(ctx, calc.ID, actor); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) createPlanFromYAML(ctx context.Context, src string) error {
	plan, err := factory.ParsePlanYAML([]byte(src))
	if err != nil {
		return err
	}
	return h.Plans.SavePlan(ctx, *plan)
}
