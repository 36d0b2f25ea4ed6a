// Package metrics exposes engine activity as Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/incentive-engine/incentive"
)

const namespace = "incentive"

// Recorder implements incentive.Metrics.
type Recorder struct {
	calculations *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	conflicts    *prometheus.CounterVec
	escalations  *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Calculations stored, by resulting status.",
		}, []string{"status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed state machine transitions, by action and target status.",
		}, []string{"action", "to"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_conflicts_total",
			Help:      "Writes rejected because the calculation version moved.",
		}, []string{"operation"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_outcomes_total",
			Help:      "Approvals handled by the SLA scan, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(r.calculations, r.transitions, r.conflicts, r.escalations)
	return r
}

func (r *Recorder) CalculationRecorded(status incentive.CalculationStatus) {
	r.calculations.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) TransitionApplied(action incentive.Action, to incentive.CalculationStatus) {
	r.transitions.WithLabelValues(string(action), string(to)).Inc()
}

func (r *Recorder) ConflictDetected(operation string) {
	r.conflicts.WithLabelValues(operation).Inc()
}

func (r *Recorder) EscalationOutcome(outcome string, n int) {
	if n <= 0 {
		return
	}
	r.escalations.WithLabelValues(outcome).Add(float64(n))
}

var _ incentive.Metrics = (*Recorder)(nil)
