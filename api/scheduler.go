/*
scheduler.go - Periodic SLA escalation scan

PURPOSE:
  Runs Engine.ScanForEscalation on a fixed interval so overdue approvals are
  escalated or alerted without anyone calling the API.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Scans once immediately on start
  - Keeps the last MaxRuns summaries for GET /api/escalations/runs
  - Manual scans (RunNow) go through the same bookkeeping

  Overlapping scans are harmless: every escalation is a versioned write, so
  the loser sees ConcurrencyConflict or InvalidState and reports a failure.

CONFIGURATION:
  - CheckInterval: How often to scan (default: 15 minutes)
  - SLAHours: SLA passed to each scan (default: 72)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewEscalationScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerEscalationScan endpoint (manual scan)
  - incentive/engine.go: ScanForEscalation
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/incentive-engine/incentive"
)

// MaxRuns is how many scan summaries the scheduler keeps.
const MaxRuns = 50

// EscalationScheduler handles automated SLA scans.
type EscalationScheduler struct {
	Engine        *incentive.Engine
	CheckInterval time.Duration
	SLAHours      float64
	Enabled       bool
	// Now is the scan clock; defaults to time.Now.
	Now func() time.Time

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runsMu sync.Mutex
	runs   []EscalationRunDTO
}

// NewEscalationScheduler creates a new scheduler.
func NewEscalationScheduler(engine *incentive.Engine, log *zap.Logger) *EscalationScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EscalationScheduler{
		Engine:        engine,
		CheckInterval: 15 * time.Minute,
		SLAHours:      72,
		Enabled:       true,
		Now:           time.Now,
		log:           log.Named("scheduler"),
	}
}

// Start begins the scheduler.
func (s *EscalationScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled || s.CheckInterval <= 0 {
		s.log.Info("escalation scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.log.Info("escalation scheduler started",
		zap.Duration("interval", s.CheckInterval),
		zap.Float64("sla_hours", s.SLAHours))
}

// Stop stops the scheduler and waits for an in-flight scan.
func (s *EscalationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("escalation scheduler stopped")
}

func (s *EscalationScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.scan(ctx, "scheduled", s.Now(), s.SLAHours)
	for {
		select {
		case <-ticker.C:
			s.scan(ctx, "scheduled", s.Now(), s.SLAHours)
		case <-stop:
			return
		}
	}
}

// RunNow scans immediately as of at.
func (s *EscalationScheduler) RunNow(ctx context.Context, at time.Time, slaHours float64) (*incentive.EscalationReport, error) {
	return s.scan(ctx, "manual", at, slaHours)
}

func (s *EscalationScheduler) scan(ctx context.Context, trigger string, at time.Time, slaHours float64) (*incentive.EscalationReport, error) {
	report, err := s.Engine.ScanForEscalation(ctx, at, slaHours)

	run := EscalationRunDTO{ScannedAt: at, Trigger: trigger}
	if err != nil {
		run.Error = err.Error()
		s.log.Error("escalation scan failed", zap.String("trigger", trigger), zap.Error(err))
	} else {
		run.Breached = len(report.Breached)
		run.Warnings = len(report.Warnings)
		run.Escalated = len(report.Escalated)
		run.Alerted = len(report.Alerted)
		run.Failures = len(report.Failures)
	}
	s.record(run)
	return report, err
}

func (s *EscalationScheduler) record(run EscalationRunDTO) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	s.runs = append(s.runs, run)
	if len(s.runs) > MaxRuns {
		s.runs = s.runs[len(s.runs)-MaxRuns:]
	}
}

// Runs returns recorded scans, newest first.
func (s *EscalationScheduler) Runs() []EscalationRunDTO {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	out := make([]EscalationRunDTO, len(s.runs))
	for i, r := range s.runs {
		out[len(s.runs)-1-i] = r
	}
	return out
}
