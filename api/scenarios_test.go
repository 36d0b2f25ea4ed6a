/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario leaves the store in the state it advertises,
	so scenarios double as end-to-end checks of the engine over SQLite.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/incentive"
)

func statusOf(t *testing.T, h *Handler, employee string) incentive.CalculationStatus {
	t.Helper()
	calcs, err := h.Store.ListCalculations(context.Background(), employee)
	require.NoError(t, err)
	require.Len(t, calcs, 1, employee)
	return calcs[0].Status
}

func TestScenario_SalesTeam(t *testing.T) {
	// GIVEN: The sales team scenario
	// WHEN: Loading it
	// THEN: Each employee sits at the advertised stage
	s := setupTestServer(t)
	h := s.handler
	require.NoError(t, h.loadSalesTeamScenario(context.Background(), "demo"))

	assert.Equal(t, incentive.StatusCalculated, statusOf(t, h, "alice"))
	assert.Equal(t, incentive.StatusPendingApproval, statusOf(t, h, "bob"))
	assert.Equal(t, incentive.StatusPaid, statusOf(t, h, "carol"))
	assert.Equal(t, incentive.StatusIneligible, statusOf(t, h, "dave"))

	// carol: 110% -> above slab, 1000 gross, 5% deduction
	calcs, err := h.Store.ListCalculations(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, "950.00 USD", calcs[0].NetIncentive.String())
	assert.Equal(t, "DEMO-BATCH-2025-Q1", calcs[0].PaymentReference)

	pending, err := h.Store.ListPendingApprovals(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "sales-manager", pending[0].ApproverID)
}

func TestScenario_SupportFlat(t *testing.T) {
	s := setupTestServer(t)
	h := s.handler
	require.NoError(t, h.loadSupportFlatScenario(context.Background(), "demo"))

	// erin: 230 over baseline on a 200 target -> flat bonus, auto-approved
	assert.Equal(t, incentive.StatusApproved, statusOf(t, h, "erin"))
	calcs, err := h.Store.ListCalculations(context.Background(), "erin")
	require.NoError(t, err)
	assert.Equal(t, "300.00 USD", calcs[0].NetIncentive.String())

	// frank: 110 over baseline -> 55%, zero slab, still auto-approved
	assert.Equal(t, incentive.StatusApproved, statusOf(t, h, "frank"))
}

func TestScenario_LoadViaAPI(t *testing.T) {
	s := setupTestServer(t)

	var list []ScenarioDTO
	rec := s.do(http.MethodGet, "/api/scenarios", "", "", &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list, 2)

	rec = s.do(http.MethodPost, "/api/scenarios/load", "demo", `{"scenario_id": "support-flat"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/scenarios/load", "demo", `{"scenario_id": "support-flat"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "loads once")

	rec = s.do(http.MethodPost, "/api/scenarios/load", "demo", `{"scenario_id": "nope"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
