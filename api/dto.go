/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request types carry
  go-playground/validator tags; handlers run them through Handler.decode
  before touching the engine, so malformed input never reaches the domain.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Plans:
    factory.PlanDefinition (request and response)

  Calculations:
    CalculateRequest, CalculationDTO

  Lifecycle commands:
    PayRequest, CancelRequest

  Approvals:
    DecideRequest, DelegateRequest, EscalateRequest

  Escalation:
    ScanRequest, EscalationRunDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

AMOUNTS:
  Amounts and achievement values are decimal strings ("1250.50"), never
  JSON numbers, so clients cannot lose precision.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/plan.go: PlanDefinition
*/
package api

import (
	"time"

	"github.com/warp/incentive-engine/incentive"
)

// =============================================================================
// CALCULATIONS
// =============================================================================

// CalculateRequest asks the engine to compute a payout.
type CalculateRequest struct {
	PlanID        string `json:"plan_id" validate:"required"`
	EmployeeID    string `json:"employee_id" validate:"required"`
	PeriodStart   string `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd     string `json:"period_end" validate:"required,datetime=2006-01-02"`
	ActualValue   string `json:"actual_value" validate:"required,number"`
	BaselineValue string `json:"baseline_value,omitempty" validate:"omitempty,number"`
	TenureDays    *int   `json:"tenure_days,omitempty" validate:"omitempty,gte=0"`
}

// CalculationDTO is a calculation with its approval chain and the actions
// its current status allows.
type CalculationDTO struct {
	*incentive.Calculation
	Approvals        []incentive.Approval `json:"approvals"`
	PermittedActions []incentive.Action   `json:"permitted_actions"`
}

// PayRequest marks an approved calculation as paid.
type PayRequest struct {
	BatchReference string `json:"batch_reference" validate:"required"`
}

// CancelRequest withdraws a calculation.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// =============================================================================
// APPROVALS
// =============================================================================

// DecideRequest approves or rejects a pending approval.
type DecideRequest struct {
	Approved *bool  `json:"approved" validate:"required"`
	Comments string `json:"comments,omitempty" validate:"max=2000"`
}

// DelegateRequest hands a pending approval to a deputy.
type DelegateRequest struct {
	ToUserID string `json:"to_user_id" validate:"required"`
}

// EscalateRequest reassigns a pending approval to someone else at the same level.
type EscalateRequest struct {
	ToUserID string `json:"to_user_id" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
}

// =============================================================================
// ESCALATION
// =============================================================================

// ScanRequest triggers an SLA scan. Zero SLAHours uses the configured SLA;
// an empty At scans as of now.
type ScanRequest struct {
	SLAHours float64 `json:"sla_hours,omitempty" validate:"omitempty,gt=0"`
	At       string  `json:"at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// EscalationRunDTO summarizes one scheduled or manual scan.
type EscalationRunDTO struct {
	ScannedAt time.Time `json:"scanned_at"`
	Trigger   string    `json:"trigger"`
	Breached  int       `json:"breached"`
	Warnings  int       `json:"warnings"`
	Escalated int       `json:"escalated"`
	Alerted   int       `json:"alerted"`
	Failures  int       `json:"failures"`
	Error     string    `json:"error,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
