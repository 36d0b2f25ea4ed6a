/*
Package factory converts plan definitions (JSON or YAML) into incentive.Plan.

PURPOSE:
  Plans are configuration, not code. Compensation teams keep them as YAML
  files next to the service or post them as JSON to the API; the factory
  parses them, applies defaults and validates the result.

  Amounts and percentages are written as strings so no value passes through
  float64 on the way in.

YAML SCHEMA:
  id: plan-sales-2025
  code: SALES-2025
  name: Field Sales 2025
  status: active
  currency: USD
  effective_from: 2025-01-01
  effective_to: 2025-12-31
  target:
    value: "100000"
    minimum_threshold: "50"      # achievement percent
    achievement_type: absolute   # or incremental
    metric_unit: USD
  slabs:
    - {id: below, from: "0",   to: "80",  rate: "0"}
    - {id: near,  from: "80",  to: "100", rate: "0.5"}
    - {id: above, from: "100",            rate: "1.0"}
  maximum_payout: "5000"
  requires_approval: true
  approval_levels: 2
  approvers: [sales-manager, sales-director]
  proratable: true
  payout_cap: "150"
  deduction: "gross * 0.05"      # CEL, see CompileDeduction

USAGE:
  plan, err := factory.ParsePlanYAML(data)
  plans, err := factory.LoadPlanDir(ctx, "./plans")

SEE ALSO:
  - incentive/plan.go: Plan and its validation
  - factory/deduction.go: CompileDeduction
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/warp/incentive-engine/incentive"
)

// =============================================================================
// DEFINITION TYPES
// =============================================================================

// PlanDefinition is the external representation of a plan.
type PlanDefinition struct {
	ID               string           `json:"id" yaml:"id" validate:"required"`
	Code             string           `json:"code" yaml:"code" validate:"required"`
	Name             string           `json:"name" yaml:"name" validate:"required"`
	Status           string           `json:"status,omitempty" yaml:"status,omitempty" validate:"omitempty,oneof=draft active inactive archived"`
	Currency         string           `json:"currency" yaml:"currency" validate:"required,len=3,uppercase"`
	EffectiveFrom    string           `json:"effective_from" yaml:"effective_from" validate:"required,datetime=2006-01-02"`
	EffectiveTo      string           `json:"effective_to" yaml:"effective_to" validate:"required,datetime=2006-01-02"`
	Target           TargetDefinition `json:"target" yaml:"target" validate:"required"`
	Slabs            []SlabDefinition `json:"slabs" yaml:"slabs" validate:"required,min=1,dive"`
	MaximumPayout    string           `json:"maximum_payout,omitempty" yaml:"maximum_payout,omitempty" validate:"omitempty,number"`
	MinimumPayout    string           `json:"minimum_payout,omitempty" yaml:"minimum_payout,omitempty" validate:"omitempty,number"`
	RequiresApproval bool             `json:"requires_approval" yaml:"requires_approval"`
	ApprovalLevels   int              `json:"approval_levels" yaml:"approval_levels" validate:"gte=0"`
	Approvers        []string         `json:"approvers,omitempty" yaml:"approvers,omitempty" validate:"dive,required"`
	Proratable       bool             `json:"proratable" yaml:"proratable"`
	PayoutCap        string           `json:"payout_cap,omitempty" yaml:"payout_cap,omitempty" validate:"omitempty,number"`
	Deduction        string           `json:"deduction,omitempty" yaml:"deduction,omitempty"`
}

// TargetDefinition is the external representation of a plan target.
type TargetDefinition struct {
	Value            string `json:"value" yaml:"value" validate:"required,number"`
	MinimumThreshold string `json:"minimum_threshold,omitempty" yaml:"minimum_threshold,omitempty" validate:"omitempty,number"`
	AchievementType  string `json:"achievement_type,omitempty" yaml:"achievement_type,omitempty" validate:"omitempty,oneof=absolute incremental"`
	MetricUnit       string `json:"metric_unit,omitempty" yaml:"metric_unit,omitempty"`
}

// SlabDefinition is one payout bracket. An empty To is open-ended.
type SlabDefinition struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	From string `json:"from" yaml:"from" validate:"required,number"`
	To   string `json:"to,omitempty" yaml:"to,omitempty" validate:"omitempty,number"`
	Rate string `json:"rate" yaml:"rate" validate:"required,number"`
	Flat bool   `json:"flat,omitempty" yaml:"flat,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParsePlanJSON parses and validates a JSON plan definition.
func ParsePlanJSON(data []byte) (*incentive.Plan, error) {
	var def PlanDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse plan JSON: %w", err)
	}
	return def.ToPlan()
}

// ParsePlanYAML parses and validates a YAML plan definition.
func ParsePlanYAML(data []byte) (*incentive.Plan, error) {
	var def PlanDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse plan YAML: %w", err)
	}
	return def.ToPlan()
}

// ToPlan converts the definition, applies defaults and validates the result.
// A deduction expression is compiled once here so syntax errors surface at load time.
func (d PlanDefinition) ToPlan() (*incentive.Plan, error) {
	from, err := parseDate("effective_from", d.EffectiveFrom)
	if err != nil {
		return nil, err
	}
	to, err := parseDate("effective_to", d.EffectiveTo)
	if err != nil {
		return nil, err
	}
	period, err := incentive.NewDateRange(from, to)
	if err != nil {
		return nil, err
	}

	target, err := d.Target.toTarget()
	if err != nil {
		return nil, err
	}

	plan := &incentive.Plan{
		ID:               d.ID,
		Code:             d.Code,
		Name:             d.Name,
		Status:           incentive.PlanStatus(d.Status),
		Currency:         d.Currency,
		EffectivePeriod:  period,
		Target:           target,
		RequiresApproval: d.RequiresApproval,
		ApprovalLevels:   d.ApprovalLevels,
		Approvers:        d.Approvers,
		Proratable:       d.Proratable,
		DeductionExpr:    strings.TrimSpace(d.Deduction),
	}
	if plan.Status == "" {
		plan.Status = incentive.PlanDraft
	}

	for i, sd := range d.Slabs {
		slab, err := sd.toSlab(i)
		if err != nil {
			return nil, err
		}
		plan.Slabs = append(plan.Slabs, slab)
	}

	if plan.MaximumPayout, err = parseMoney("maximum_payout", d.MaximumPayout, d.Currency); err != nil {
		return nil, err
	}
	if plan.MinimumPayout, err = parseMoney("minimum_payout", d.MinimumPayout, d.Currency); err != nil {
		return nil, err
	}
	if d.PayoutCap != "" {
		v, err := parseDecimal("payout_cap", d.PayoutCap)
		if err != nil {
			return nil, err
		}
		payoutCap, err := incentive.NewPercentage(v)
		if err != nil {
			return nil, err
		}
		plan.PayoutCap = &payoutCap
	}

	if plan.RequiresApproval && len(plan.Approvers) < plan.ApprovalLevels {
		return nil, &incentive.ValidationError{
			Field:   "approvers",
			Message: fmt.Sprintf("%d approval levels need %d approvers, got %d", plan.ApprovalLevels, plan.ApprovalLevels, len(plan.Approvers)),
		}
	}
	if plan.DeductionExpr != "" {
		if _, err := CompileDeduction(plan.DeductionExpr); err != nil {
			return nil, err
		}
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (t TargetDefinition) toTarget() (incentive.Target, error) {
	value, err := parseDecimal("target.value", t.Value)
	if err != nil {
		return incentive.Target{}, err
	}
	threshold := decimal.Zero
	if t.MinimumThreshold != "" {
		if threshold, err = parseDecimal("target.minimum_threshold", t.MinimumThreshold); err != nil {
			return incentive.Target{}, err
		}
	}
	kind := incentive.AchievementType(t.AchievementType)
	if kind == "" {
		kind = incentive.AchievementAbsolute
	}
	return incentive.Target{
		TargetValue:      value,
		MinimumThreshold: threshold,
		AchievementType:  kind,
		MetricUnit:       t.MetricUnit,
	}, nil
}

func (s SlabDefinition) toSlab(i int) (incentive.Slab, error) {
	field := fmt.Sprintf("slabs[%d]", i)
	lower, err := parseDecimal(field+".from", s.From)
	if err != nil {
		return incentive.Slab{}, err
	}
	rate, err := parseDecimal(field+".rate", s.Rate)
	if err != nil {
		return incentive.Slab{}, err
	}
	slab := incentive.Slab{ID: s.ID, LowerBoundPct: lower, PayoutRate: rate, IsFlat: s.Flat}
	if s.To != "" {
		upper, err := parseDecimal(field+".to", s.To)
		if err != nil {
			return incentive.Slab{}, err
		}
		slab.UpperBoundPct = &upper
	}
	return slab, nil
}

// FromPlan is the inverse of ToPlan.
func FromPlan(p *incentive.Plan) PlanDefinition {
	def := PlanDefinition{
		ID:               p.ID,
		Code:             p.Code,
		Name:             p.Name,
		Status:           string(p.Status),
		Currency:         p.Currency,
		EffectiveFrom:    p.EffectivePeriod.Start.Format(dateLayout),
		EffectiveTo:      p.EffectivePeriod.End.Format(dateLayout),
		RequiresApproval: p.RequiresApproval,
		ApprovalLevels:   p.ApprovalLevels,
		Approvers:        p.Approvers,
		Proratable:       p.Proratable,
		Deduction:        p.DeductionExpr,
		Target: TargetDefinition{
			Value:            p.Target.TargetValue.String(),
			MinimumThreshold: p.Target.MinimumThreshold.String(),
			AchievementType:  string(p.Target.AchievementType),
			MetricUnit:       p.Target.MetricUnit,
		},
	}
	for _, s := range p.Slabs {
		sd := SlabDefinition{ID: s.ID, From: s.LowerBoundPct.String(), Rate: s.PayoutRate.String(), Flat: s.IsFlat}
		if s.UpperBoundPct != nil {
			sd.To = s.UpperBoundPct.String()
		}
		def.Slabs = append(def.Slabs, sd)
	}
	if p.MaximumPayout != nil {
		def.MaximumPayout = p.MaximumPayout.Amount.String()
	}
	if p.MinimumPayout != nil {
		def.MinimumPayout = p.MinimumPayout.Amount.String()
	}
	if p.PayoutCap != nil {
		def.PayoutCap = p.PayoutCap.Value.String()
	}
	return def
}

// =============================================================================
// DIRECTORY LOADING
// =============================================================================

// LoadPlanDir parses every .yaml, .yml and .json file in dir. Files are parsed
// concurrently; the result is ordered by plan code. Duplicate ids or codes fail.
func LoadPlanDir(ctx context.Context, dir string) ([]*incentive.Plan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}

	plans := make([]*incentive.Plan, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := LoadPlanFile(path)
			if err != nil {
				return err
			}
			plans[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(plans, func(i, j int) bool { return plans[i].Code < plans[j].Code })
	ids := make(map[string]bool, len(plans))
	codes := make(map[string]bool, len(plans))
	for _, p := range plans {
		if ids[p.ID] {
			return nil, &incentive.ValidationError{Field: "id", Message: "duplicate plan id " + p.ID}
		}
		if codes[p.Code] {
			return nil, &incentive.ValidationError{Field: "code", Message: "duplicate plan code " + p.Code}
		}
		ids[p.ID] = true
		codes[p.Code] = true
	}
	return plans, nil
}

// LoadPlanFile parses one plan file, choosing the format by extension.
func LoadPlanFile(path string) (*incentive.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	var p *incentive.Plan
	if strings.EqualFold(filepath.Ext(path), ".json") {
		p, err = ParsePlanJSON(data)
	} else {
		p, err = ParsePlanYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

const dateLayout = "2006-01-02"

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &incentive.ValidationError{Field: field, Message: fmt.Sprintf("invalid date %q, want YYYY-MM-DD", s)}
	}
	return t, nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, &incentive.ValidationError{Field: field, Message: fmt.Sprintf("invalid number %q", s)}
	}
	return d, nil
}

func parseMoney(field, s, currency string) (*incentive.Money, error) {
	if s == "" {
		return nil, nil
	}
	amount, err := parseDecimal(field, s)
	if err != nil {
		return nil, err
	}
	m, err := incentive.NewMoney(amount, currency)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
