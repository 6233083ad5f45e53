// Package scheduler runs the daemon's cooperative cycle loop: poll,
// then (budget permitting) investigate, then sleep, repeat — with a
// single mutex-guarded daily budget ledger and signal-driven graceful
// shutdown.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	"github.com/jordigilh/rounds/pkg/model"
	"github.com/jordigilh/rounds/pkg/ports"
)

// StatsStore is the subset of ports.SignatureStorePort the scheduler
// needs for its daily summary roll-up.
type StatsStore interface {
	GetStats(ctx context.Context) (model.StoreStats, error)
}

// SummaryReporter is the subset of ports.NotificationPort the scheduler
// needs for its daily summary roll-up.
type SummaryReporter interface {
	ReportSummary(ctx context.Context, stats model.StoreStats) error
}

// ledger is the scheduler's only process-wide mutable state: the
// UTC-day-scoped accumulated diagnosis cost against an optional daily
// limit. All access is serialized through mu.
type ledger struct {
	mu          sync.Mutex
	budgetDate  string
	dailyCost   float64
	budgetLimit *float64
}

func (l *ledger) recordDiagnosisCost(now time.Time, cost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	date := now.UTC().Format("2006-01-02")
	if date != l.budgetDate {
		l.budgetDate = date
		l.dailyCost = 0
	}
	l.dailyCost += cost
}

func (l *ledger) budgetExceeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.budgetLimit != nil && l.dailyCost >= *l.budgetLimit
}

func (l *ledger) setBudgetLimit(limit *float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.budgetLimit = limit
}

// Scheduler drives a PollPort on a fixed cadence, subject to the daily
// diagnosis-cost budget.
type Scheduler struct {
	Poll         ports.PollPort
	PollInterval time.Duration
	BudgetLimit  *float64
	Logger       logr.Logger
	Now          func() time.Time

	// Store and Notification are optional. When both are set, the
	// scheduler rolls up and reports a store-wide summary once per UTC
	// day, on the first cycle that runs after midnight UTC.
	Store        StatsStore
	Notification SummaryReporter

	ledger          ledger
	cycleNumber     int
	lastSummaryDate string

	intervalMu   sync.RWMutex
	intervalOver *time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
}

// New returns a Scheduler ready to Start. budgetLimit of nil means the
// daily budget is never exceeded.
func New(poll ports.PollPort, pollInterval time.Duration, budgetLimit *float64, logger logr.Logger) *Scheduler {
	return &Scheduler{
		Poll:         poll,
		PollInterval: pollInterval,
		BudgetLimit:  budgetLimit,
		Logger:       logger,
		ledger:       ledger{budgetLimit: budgetLimit},
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// RecordDiagnosisCost accumulates cost into today's ledger. Safe for
// concurrent use.
func (s *Scheduler) RecordDiagnosisCost(cost float64) {
	s.ledger.recordDiagnosisCost(s.now(), cost)
}

// BudgetExceeded reports whether today's accumulated cost has reached
// the configured limit. Always false when no limit is configured.
func (s *Scheduler) BudgetExceeded() bool {
	return s.ledger.budgetExceeded()
}

// SetBudgetLimit replaces the daily budget limit the running scheduler
// enforces, taking effect on the next cycle's check. Safe to call
// concurrently with Start's loop — this is the hot-reload path a
// config watcher drives when the daily budget setting changes.
func (s *Scheduler) SetBudgetLimit(limit *float64) {
	s.ledger.setBudgetLimit(limit)
}

// SetPollInterval replaces the sleep duration between cycles, taking
// effect on the loop's next sleep. Safe to call concurrently with
// Start's loop.
func (s *Scheduler) SetPollInterval(d time.Duration) {
	s.intervalMu.Lock()
	defer s.intervalMu.Unlock()
	s.intervalOver = &d
}

func (s *Scheduler) currentInterval() time.Duration {
	s.intervalMu.RLock()
	defer s.intervalMu.RUnlock()
	if s.intervalOver != nil {
		return *s.intervalOver
	}
	return s.PollInterval
}

// Start begins the cycle loop, blocking until Stop is called or ctx is
// canceled. It also installs a SIGINT/SIGTERM handler that triggers
// Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopped = false
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			s.requestStop()
		case <-s.stopCh:
		}
	}()

	defer s.requestStop()
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.runCycle(ctx)

		select {
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.currentInterval()):
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	s.cycleNumber++
	log := s.Logger.WithValues("cycle_number", s.cycleNumber)
	log.Info("cycle starting")

	s.reportDailySummary(ctx, log)

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Info("poll cycle panicked, continuing", "panic", fmt.Sprintf("%v", r))
			}
		}()
		if _, err := s.Poll.ExecutePollCycle(ctx); err != nil {
			log.Info("poll cycle failed, continuing", "error", err.Error())
		}
	}()

	if s.BudgetExceeded() {
		log.Info("daily budget exceeded, skipping investigation cycle")
		return
	}

	result, err := s.Poll.ExecuteInvestigationCycle(ctx)
	if err != nil {
		log.Info("investigation cycle failed, continuing", "error", err.Error())
		return
	}
	if result.TotalDiagnosisCostUSD > 0 {
		s.RecordDiagnosisCost(result.TotalDiagnosisCostUSD)
	}
	log.Info("cycle complete", "investigations_attempted", result.InvestigationsAttempted,
		"investigations_failed", result.InvestigationsFailed, "diagnoses_produced", result.DiagnosesProduced,
		"diagnosis_cost_usd", result.TotalDiagnosisCostUSD)
}

// reportDailySummary sends a store-wide summary through Notification
// the first time a cycle runs on a new UTC day. A failure here is
// logged and otherwise ignored; it must never block polling or
// investigation.
func (s *Scheduler) reportDailySummary(ctx context.Context, log logr.Logger) {
	if s.Store == nil || s.Notification == nil {
		return
	}

	today := s.now().UTC().Format("2006-01-02")
	if today == s.lastSummaryDate {
		return
	}
	s.lastSummaryDate = today

	stats, err := s.Store.GetStats(ctx)
	if err != nil {
		log.Info("failed to gather daily summary stats", "error", err.Error())
		return
	}
	if err := s.Notification.ReportSummary(ctx, stats); err != nil {
		log.Info("failed to report daily summary", "error", err.Error())
	}
}

// requestStop closes stopCh exactly once, regardless of whether the
// loop exited via Stop(), a delivered signal, or context cancellation.
func (s *Scheduler) requestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.running = false
	close(s.stopCh)
}

// Stop requests the loop to end after its current cycle and sleep are
// interrupted, then awaits it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	doneCh := s.doneCh
	s.mu.Unlock()

	s.requestStop()
	<-doneCh
}
