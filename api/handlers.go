/*
handlers.go - HTTP API handlers for the incentive engine

PURPOSE:
  Exposes the calculation and approval workflow via REST API. Handles HTTP
  request/response, JSON serialization and validation, and delegates every
  state change to incentive.Engine.

ENDPOINTS:
  Plans:
    GET    /api/plans                          List plans
    POST   /api/plans                          Create or replace a plan (JSON or YAML body)
    GET    /api/plans/{id}                     Get plan definition

  Calculations:
    POST   /api/calculations                   Calculate (or recalculate) a payout
    GET    /api/calculations?employee_id=      List an employee's calculations
    GET    /api/calculations/{id}              Calculation + approval chain
    GET    /api/calculations/{id}/audit        Audit trail
    GET    /api/calculations/{id}/revisions    Archived revisions
    POST   /api/calculations/{id}/submit       Submit for approval
    POST   /api/calculations/{id}/pay          Mark paid (payroll export)
    POST   /api/calculations/{id}/cancel       Cancel

  Approvals:
    GET    /api/approvals/pending?approver=    Pending approvals
    POST   /api/approvals/{id}/decide          Approve or reject
    POST   /api/approvals/{id}/delegate        Delegate to a deputy
    POST   /api/approvals/{id}/escalate        Escalate manually

  Escalation:
    POST   /api/escalations/scan               Run an SLA scan now
    GET    /api/escalations/runs               Recent scheduled and manual scans

ACTOR:
  Mutating endpoints read the acting user from the X-Actor-ID header. The
  header is trusted: authentication happens upstream.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed JSON
  - 401: Missing X-Actor-ID
  - 403: Actor may not act on the approval
  - 404: Plan, calculation or approval not found
  - 409: Operation not legal in current status, or a concurrent write won
  - 422: Validation errors, no applicable slab
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/incentive"
)

// ActorHeader carries the authenticated user id.
const ActorHeader = "X-Actor-ID"

const dateLayout = "2006-01-02"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers read beyond the engine's own needs.
type Store interface {
	incentive.Store
	SavePlan(ctx context.Context, p incentive.Plan) error
	ListPlans(ctx context.Context) ([]incentive.Plan, error)
	ListCalculations(ctx context.Context, employeeID string) ([]incentive.Calculation, error)
	AuditTrail(ctx context.Context, entityID string) ([]incentive.AuditRecord, error)
}

// PlanWriter saves plans. A caching store is passed here so writes invalidate it.
type PlanWriter interface {
	SavePlan(ctx context.Context, p incentive.Plan) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *incentive.Engine
	Store  Store
	// Plans receives plan writes; defaults to Store.
	Plans PlanWriter
	// SLAHours is used by manual scans that don't specify one.
	SLAHours float64
	// Scheduler, when set, reports recent scans.
	Scheduler *EscalationScheduler

	validate *validator.Validate
	log      *zap.Logger

	mu             sync.Mutex
	loadedScenario map[string]bool
}

// NewHandler creates a new handler.
func NewHandler(engine *incentive.Engine, store Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Engine:         engine,
		Store:          store,
		Plans:          store,
		SLAHours:       72,
		validate:       validator.New(),
		log:            log.Named("api"),
		loadedScenario: make(map[string]bool),
	}
}

// SeedPlans saves plans loaded at startup.
func (h *Handler) SeedPlans(ctx context.Context, plans []*incentive.Plan) error {
	for _, p := range plans {
		if err := h.Plans.SavePlan(ctx, *p); err != nil {
			return fmt.Errorf("seed plan %s: %w", p.Code, err)
		}
		h.log.Info("plan seeded", zap.String("plan_id", p.ID), zap.String("code", p.Code))
	}
	return nil
}

// =============================================================================
// PLAN HANDLERS
// =============================================================================

// ListPlans returns all plans as definitions.
// GET /api/plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Store.ListPlans(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defs := make([]factory.PlanDefinition, len(plans))
	for i := range plans {
		defs[i] = factory.FromPlan(&plans[i])
	}
	writeJSON(w, http.StatusOK, defs)
}

// CreatePlan stores a plan definition. YAML bodies are accepted when the
// Content-Type says so.
// POST /api/plans
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	var plan *incentive.Plan
	if ct := r.Header.Get("Content-Type"); strings.Contains(ct, "yaml") {
		plan, err = factory.ParsePlanYAML(body)
	} else {
		var def factory.PlanDefinition
		if err := json.Unmarshal(body, &def); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON", err)
			return
		}
		if err := h.validate.Struct(def); err != nil {
			writeValidationError(w, err)
			return
		}
		plan, err = def.ToPlan()
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.Plans.SavePlan(r.Context(), *plan); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, factory.FromPlan(plan))
}

// GetPlan returns one plan.
// GET /api/plans/{id}
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Store.LoadPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.FromPlan(plan))
}

// =============================================================================
// CALCULATION HANDLERS
// =============================================================================

// Calculate computes and stores a payout.
// POST /api/calculations
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CalculateRequest
	if !h.decode(w, r, &req) {
		return
	}

	cr, err := req.toEngine(actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	calc, err := h.Engine.Calculate(r.Context(), cr)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCalculation(w, r, http.StatusCreated, calc)
}

func (req CalculateRequest) toEngine(actor string) (incentive.CalculationRequest, error) {
	start, err := time.Parse(dateLayout, req.PeriodStart)
	if err != nil {
		return incentive.CalculationRequest{}, &incentive.ValidationError{Field: "period_start", Message: err.Error()}
	}
	end, err := time.Parse(dateLayout, req.PeriodEnd)
	if err != nil {
		return incentive.CalculationRequest{}, &incentive.ValidationError{Field: "period_end", Message: err.Error()}
	}
	period, err := incentive.NewDateRange(start, end)
	if err != nil {
		return incentive.CalculationRequest{}, err
	}

	facts := incentive.Facts{TenureDays: req.TenureDays}
	if facts.ActualValue, err = decimal.NewFromString(req.ActualValue); err != nil {
		return incentive.CalculationRequest{}, &incentive.ValidationError{Field: "actual_value", Message: err.Error()}
	}
	if req.BaselineValue != "" {
		if facts.BaselineValue, err = decimal.NewFromString(req.BaselineValue); err != nil {
			return incentive.CalculationRequest{}, &incentive.ValidationError{Field: "baseline_value", Message: err.Error()}
		}
	}

	return incentive.CalculationRequest{
		PlanID:     req.PlanID,
		EmployeeID: req.EmployeeID,
		Period:     period,
		Facts:      facts,
		Actor:      actor,
	}, nil
}

// ListCalculations returns an employee's calculations, newest first.
// GET /api/calculations?employee_id=
func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employee_id")
	if employeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}
	calcs, err := h.Store.ListCalculations(r.Context(), employeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if calcs == nil {
		calcs = []incentive.Calculation{}
	}
	writeJSON(w, http.StatusOK, calcs)
}

// GetCalculation returns a calculation with its approval chain.
// GET /api/calculations/{id}
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	calc, err := h.Store.LoadCalculation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCalculation(w, r, http.StatusOK, calc)
}

// GetAuditTrail returns the audit records of a calculation and its approvals.
// GET /api/calculations/{id}/audit
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := h.Store.LoadCalculation(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}

	records, err := h.Store.AuditTrail(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	approvals, err := h.Store.LoadApprovals(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, a := range approvals {
		recs, err := h.Store.AuditTrail(ctx, a.ID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		records = append(records, recs...)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].At.Before(records[j].At) })
	if records == nil {
		records = []incentive.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetRevisions returns revisions archived by in-place recalculation.
// GET /api/calculations/{id}/revisions
func (h *Handler) GetRevisions(w http.ResponseWriter, r *http.Request) {
	revs, err := h.Store.ListRevisions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if revs == nil {
		revs = []incentive.Calculation{}
	}
	writeJSON(w, http.StatusOK, revs)
}

// SubmitCalculation opens the approval chain.
// POST /api/calculations/{id}/submit
func (h *Handler) SubmitCalculation(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	calc, err := h.Engine.SubmitForApproval(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCalculation(w, r, http.StatusOK, calc)
}

// PayCalculation records the payroll batch that paid an approved calculation.
// POST /api/calculations/{id}/pay
func (h *Handler) PayCalculation(w http.ResponseWriter, r *http.Request) {
	var req PayRequest
	if !h.decode(w, r, &req) {
		return
	}
	calc, err := h.Engine.MarkPaid(r.Context(), chi.URLParam(r, "id"), req.BatchReference)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCalculation(w, r, http.StatusOK, calc)
}

// CancelCalculation withdraws a calculation that hasn't been paid.
// POST /api/calculations/{id}/cancel
func (h *Handler) CancelCalculation(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	calc, err := h.Engine.Cancel(r.Context(), chi.URLParam(r, "id"), actor, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCalculation(w, r, http.StatusOK, calc)
}

func (h *Handler) writeCalculation(w http.ResponseWriter, r *http.Request, status int, calc *incentive.Calculation) {
	approvals, err := h.Store.LoadApprovals(r.Context(), calc.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if approvals == nil {
		approvals = []incentive.Approval{}
	}
	actions := incentive.CalculationLifecycle.Permitted(calc.Status)
	if actions == nil {
		actions = []incentive.Action{}
	}
	writeJSON(w, status, CalculationDTO{Calculation: calc, Approvals: approvals, PermittedActions: actions})
}

// =============================================================================
// APPROVAL HANDLERS
// =============================================================================

// ListPendingApprovals returns pending approvals, oldest first. With
// ?approver= only those the user can act on are returned.
// GET /api/approvals/pending
func (h *Handler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Store.ListPendingApprovals(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	approver := r.URL.Query().Get("approver")
	out := make([]incentive.Approval, 0, len(pending))
	for i := range pending {
		if approver == "" || pending[i].CanAct(approver) {
			out = append(out, pending[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, out)
}

// DecideApproval approves or rejects.
// POST /api/approvals/{id}/decide
func (h *Handler) DecideApproval(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req DecideRequest
	if !h.decode(w, r, &req) {
		return
	}
	calc, err := h.Engine.Decide(r.Context(), chi.URLParam(r, "id"), actor, *req.Approved, req.Comments)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCalculation(w, r, http.StatusOK, calc)
}

// DelegateApproval hands the approval to a deputy.
// POST /api/approvals/{id}/delegate
func (h *Handler) DelegateApproval(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req DelegateRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.Engine.Delegate(r.Context(), chi.URLParam(r, "id"), actor, req.ToUserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// EscalateApproval reassigns the approval at the same level.
// POST /api/approvals/{id}/escalate
func (h *Handler) EscalateApproval(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req EscalateRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.Engine.Escalate(r.Context(), chi.URLParam(r, "id"), actor, req.ToUserID, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// =============================================================================
// ESCALATION HANDLERS
// =============================================================================

// TriggerEscalationScan runs a scan immediately.
// POST /api/escalations/scan
func (h *Handler) TriggerEscalationScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	sla := req.SLAHours
	if sla == 0 {
		sla = h.SLAHours
	}
	at := time.Now()
	if req.At != "" {
		var err error
		if at, err = time.Parse(time.RFC3339, req.At); err != nil {
			h.fail(w, r, &incentive.ValidationError{Field: "at", Message: err.Error()})
			return
		}
	}

	var (
		report *incentive.EscalationReport
		err    error
	)
	if h.Scheduler != nil {
		report, err = h.Scheduler.RunNow(r.Context(), at, sla)
	} else {
		report, err = h.Engine.ScanForEscalation(r.Context(), at, sla)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListEscalationRuns returns recent scans, newest first.
// GET /api/escalations/runs
func (h *Handler) ListEscalationRuns(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusOK, []EscalationRunDTO{})
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.Runs())
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actor == "" {
		writeError(w, http.StatusUnauthorized, ActorHeader+" header is required", nil)
		return "", false
	}
	return actor, true
}

// statusFor maps engine error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, incentive.ErrValidation), errors.Is(err, incentive.ErrNoApplicableSlab):
		return http.StatusUnprocessableEntity
	case incentive.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, incentive.ErrInvalidState), errors.Is(err, incentive.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, incentive.ErrUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, status, "Internal error", nil)
		return
	}

	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}
	var ve *incentive.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = map[string]string{ve.Field: ve.Message}
	}
	if incentive.IsRetryable(err) {
		w.Header().Set("Retry-After", "0")
	}
	writeJSON(w, status, resp)
}

func writeValidationError(w http.ResponseWriter, err error) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "Invalid input", err)
		return
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "Validation failed", Fields: fields})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
