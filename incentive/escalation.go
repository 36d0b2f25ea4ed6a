package incentive

import (
	"sort"
	"time"
)

// EscalationMode decides what happens to an approval past its SLA.
type EscalationMode string

const (
	// EscalateAuto reassigns the approval to EscalationPolicy.EscalateTo.
	EscalateAuto EscalationMode = "auto"
	// EscalateAlertOnly raises an SLA breach notification and leaves the approval alone.
	EscalateAlertOnly EscalationMode = "alert"
)

// DefaultWarningRatio is the fraction of the SLA after which an early warning is raised.
const DefaultWarningRatio = 0.75

// EscalationPolicy configures ScanForEscalation.
type EscalationPolicy struct {
	Mode         EscalationMode
	EscalateTo   string
	WarningRatio float64
	// Workers bounds how many escalations run at once.
	Workers int
}

func (p EscalationPolicy) warningRatio() float64 {
	if p.WarningRatio <= 0 || p.WarningRatio >= 1 {
		return DefaultWarningRatio
	}
	return p.WarningRatio
}

// SLAScan splits pending approvals by how close they are to their SLA.
type SLAScan struct {
	Breached []Approval
	Warnings []Approval
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// ScanSLA returns pending approvals older than slaHours as Breached and those
// older than warningRatio*slaHours (but not breached) as Warnings.
// Both lists are ordered oldest first. Nothing is mutated.
func ScanSLA(approvals []Approval, now time.Time, slaHours, warningRatio float64) SLAScan {
	sla := hoursToDuration(slaHours)
	warn := hoursToDuration(slaHours * warningRatio)

	var out SLAScan
	for _, a := range approvals {
		if a.Status != ApprovalPending {
			continue
		}
		age := a.Age(now)
		switch {
		case age > sla:
			out.Breached = append(out.Breached, a)
		case warningRatio > 0 && age > warn:
			out.Warnings = append(out.Warnings, a)
		}
	}
	oldestFirst(out.Breached)
	oldestFirst(out.Warnings)
	return out
}

func oldestFirst(list []Approval) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// EscalationFailure records an overdue approval the scan could not act on.
type EscalationFailure struct {
	ApprovalID string `json:"approval_id"`
	Error      string `json:"error"`
}

// EscalationReport is the outcome of one ScanForEscalation run.
type EscalationReport struct {
	ScannedAt time.Time           `json:"scanned_at"`
	Breached  []Approval          `json:"breached"`
	Warnings  []Approval          `json:"warnings"`
	Escalated []Approval          `json:"escalated"`
	Alerted   []Approval          `json:"alerted"`
	Failures  []EscalationFailure `json:"failures,omitempty"`
}
