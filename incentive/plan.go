package incentive

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TARGET
// =============================================================================

// AchievementType selects how actual performance is measured against the target.
type AchievementType string

const (
	// AchievementAbsolute compares the actual value directly.
	AchievementAbsolute AchievementType = "absolute"
	// AchievementIncremental compares the growth over a baseline.
	AchievementIncremental AchievementType = "incremental"
)

// Target is what an employee is measured against.
// MinimumThreshold is an achievement percentage below which the employee is ineligible.
type Target struct {
	TargetValue      decimal.Decimal `json:"target_value"`
	MinimumThreshold decimal.Decimal `json:"minimum_threshold"`
	AchievementType  AchievementType `json:"achievement_type"`
	MetricUnit       string          `json:"metric_unit,omitempty"`
}

// Validate rejects targets that would divide by zero or have a negative threshold.
func (t Target) Validate() error {
	if !t.TargetValue.IsPositive() {
		return invalid("target.target_value", "must be greater than zero, got %s", t.TargetValue)
	}
	if t.MinimumThreshold.IsNegative() {
		return invalid("target.minimum_threshold", "must not be negative, got %s", t.MinimumThreshold)
	}
	switch t.AchievementType {
	case AchievementAbsolute, AchievementIncremental, "":
	default:
		return invalid("target.achievement_type", "unknown type %q", t.AchievementType)
	}
	return nil
}

// =============================================================================
// SLAB
// =============================================================================

// Slab is a payout bracket over [LowerBoundPct, UpperBoundPct).
// A nil UpperBoundPct is open-ended. PayoutRate is a percent of target for rate
// slabs and an amount in the plan currency for flat slabs.
type Slab struct {
	ID            string           `json:"id"`
	LowerBoundPct decimal.Decimal  `json:"lower_bound_pct"`
	UpperBoundPct *decimal.Decimal `json:"upper_bound_pct,omitempty"`
	PayoutRate    decimal.Decimal  `json:"payout_rate"`
	IsFlat        bool             `json:"is_flat"`
}

func (s Slab) contains(v decimal.Decimal) bool {
	if v.LessThan(s.LowerBoundPct) {
		return false
	}
	return s.UpperBoundPct == nil || v.LessThan(*s.UpperBoundPct)
}

func sortedSlabs(slabs []Slab) []Slab {
	out := make([]Slab, len(slabs))
	copy(out, slabs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LowerBoundPct.LessThan(out[j].LowerBoundPct)
	})
	return out
}

// ValidateSlabs checks the table is ordered, non-overlapping, and covers [0, +inf).
func ValidateSlabs(slabs []Slab) error {
	if len(slabs) == 0 {
		return invalid("slabs", "at least one slab is required")
	}
	sorted := sortedSlabs(slabs)
	seen := make(map[string]bool, len(sorted))

	for i, s := range sorted {
		if s.ID == "" {
			return invalid("slabs", "slab %d has no id", i)
		}
		if seen[s.ID] {
			return invalid("slabs", "duplicate slab id %s", s.ID)
		}
		seen[s.ID] = true

		if s.PayoutRate.IsNegative() {
			return invalid("slabs", "slab %s has negative payout rate", s.ID)
		}
		if i == 0 && !s.LowerBoundPct.IsZero() {
			return invalid("slabs", "first slab %s must start at 0, starts at %s", s.ID, s.LowerBoundPct)
		}
		last := i == len(sorted)-1
		if s.UpperBoundPct == nil {
			if !last {
				return invalid("slabs", "only the last slab may be open-ended, %s is not last", s.ID)
			}
			continue
		}
		if last {
			return invalid("slabs", "last slab %s must be open-ended", s.ID)
		}
		if !s.UpperBoundPct.GreaterThan(s.LowerBoundPct) {
			return invalid("slabs", "slab %s upper bound %s not above lower bound %s", s.ID, s.UpperBoundPct, s.LowerBoundPct)
		}
		next := sorted[i+1]
		switch s.UpperBoundPct.Cmp(next.LowerBoundPct) {
		case 1:
			return invalid("slabs", "slab %s overlaps %s", s.ID, next.ID)
		case -1:
			return invalid("slabs", "gap between slab %s and %s", s.ID, next.ID)
		}
	}
	return nil
}

// =============================================================================
// PLAN
// =============================================================================

// PlanStatus is the lifecycle of an incentive plan.
type PlanStatus string

const (
	PlanDraft    PlanStatus = "draft"
	PlanActive   PlanStatus = "active"
	PlanInactive PlanStatus = "inactive"
	PlanArchived PlanStatus = "archived"
)

// DefaultPayoutCap caps the achievement multiplier in the rate formula.
var DefaultPayoutCap = Percentage{Value: decimal.NewFromInt(100)}

// Plan is an incentive plan. It owns its slab table and is passed to the
// calculator as an immutable input.
type Plan struct {
	ID               string     `json:"id"`
	Code             string     `json:"code"`
	Name             string     `json:"name"`
	Status           PlanStatus `json:"status"`
	Currency         string     `json:"currency"`
	EffectivePeriod  DateRange  `json:"effective_period"`
	Target           Target     `json:"target"`
	Slabs            []Slab     `json:"slabs"`
	MaximumPayout    *Money     `json:"maximum_payout,omitempty"`
	MinimumPayout    *Money     `json:"minimum_payout,omitempty"`
	RequiresApproval bool       `json:"requires_approval"`
	ApprovalLevels   int        `json:"approval_levels"`
	Approvers        []string   `json:"approvers,omitempty"`
	Proratable       bool       `json:"proratable"`

	// PayoutCap limits the achievement used in the rate formula. Nil means DefaultPayoutCap.
	PayoutCap *Percentage `json:"payout_cap,omitempty"`

	// DeductionExpr is an optional expression over gross; see factory.CompileDeduction.
	DeductionExpr string `json:"deduction_expr,omitempty"`
}

// Validate checks the plan is internally consistent.
func (p *Plan) Validate() error {
	if p.ID == "" {
		return invalid("id", "is required")
	}
	if p.Code == "" {
		return invalid("code", "is required")
	}
	switch p.Status {
	case PlanDraft, PlanActive, PlanInactive, PlanArchived:
	default:
		return invalid("status", "unknown status %q", p.Status)
	}
	if err := validateCurrency(p.Currency); err != nil {
		return err
	}
	if err := p.EffectivePeriod.Validate(); err != nil {
		return err
	}
	if err := p.Target.Validate(); err != nil {
		return err
	}
	if err := ValidateSlabs(p.Slabs); err != nil {
		return err
	}
	if p.ApprovalLevels < 0 {
		return invalid("approval_levels", "must not be negative")
	}
	if p.PayoutCap != nil && !p.PayoutCap.Value.IsPositive() {
		return invalid("payout_cap", "must be positive")
	}
	for _, bound := range []*Money{p.MinimumPayout, p.MaximumPayout} {
		if bound == nil {
			continue
		}
		if bound.Currency != p.Currency {
			return invalid("payout_bounds", "currency %s differs from plan currency %s", bound.Currency, p.Currency)
		}
		if bound.IsNegative() {
			return invalid("payout_bounds", "must not be negative")
		}
	}
	if p.MinimumPayout != nil && p.MaximumPayout != nil && p.MinimumPayout.Amount.GreaterThan(p.MaximumPayout.Amount) {
		return invalid("payout_bounds", "minimum %s above maximum %s", p.MinimumPayout, p.MaximumPayout)
	}
	return nil
}

// NeedsApproval reports whether submitted calculations go through an approval chain.
func (p *Plan) NeedsApproval() bool {
	return p.RequiresApproval && p.ApprovalLevels > 0
}

func (p *Plan) payoutCap() Percentage {
	if p.PayoutCap == nil {
		return DefaultPayoutCap
	}
	return *p.PayoutCap
}
