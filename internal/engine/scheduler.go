package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const tickInterval = 60 * time.Second

// Scheduler is the single-instance coordinator that drives ExecuteDue
// on a fixed tick. One Scheduler exists per process, owned by the
// application entry point rather than held in a package global.
type Scheduler struct {
	executor    *Executor
	concurrency int
	logger      *slog.Logger

	mu        sync.Mutex
	running   bool
	startedAt *time.Time
	lastTick  *time.Time
	ticking   bool // guards skip-on-overlap

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(executor *Executor, concurrency int, logger *slog.Logger) *Scheduler {
	return &Scheduler{executor: executor, concurrency: concurrency, logger: logger}
}

// WithAdaptiveBackoff opts this scheduler's executor into stretching a
// monitor's effective check period after sustained success, snapping
// back to period_minutes on the next failure, capped at maxMultiplier
// times the configured period. Unset by default — ExecuteDue's
// due-ness check is then a pure function of period_minutes, per
// spec.md §4.H.
func (s *Scheduler) WithAdaptiveBackoff(maxMultiplier float64) *Scheduler {
	s.executor.WithAdaptiveBackoff(NewAdaptiveBackoff(maxMultiplier))
	return s
}

// Status is the externally visible scheduler state for GET /api/scheduler/status.
type Status struct {
	Running   bool       `json:"running"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	LastTick  *time.Time `json:"last_tick,omitempty"`
}

// Start invokes ExecuteDue once synchronously, then begins a 60-second
// tick loop. A no-op if already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	s.running = true
	s.startedAt = &now
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.runTick(runCtx)
	go s.loop(runCtx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// runTick invokes ExecuteDue unless a prior tick is still running.
func (s *Scheduler) runTick(ctx context.Context) {
	s.mu.Lock()
	if s.ticking {
		s.mu.Unlock()
		s.logger.Warn("scheduler: tick still running, skipping")
		return
	}
	s.ticking = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.ticking = false
		now := time.Now()
		s.lastTick = &now
		s.mu.Unlock()
	}()

	summary, err := s.executor.ExecuteDue(ctx, s.concurrency)
	if err != nil {
		s.logger.Error("scheduler: execute due failed", "error", err)
		return
	}
	s.logger.Info("scheduler: tick complete",
		"total", summary.Total, "successful", summary.Successful,
		"failed", summary.Failed, "skipped", summary.Skipped)
}

// Stop cancels the tick loop. In-flight checks are allowed to finish;
// the caller may wait on the returned channel being closed for a
// best-effort drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.startedAt = nil
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn("scheduler: stop grace period exceeded")
	}
}

func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Running: s.running, StartedAt: s.startedAt, LastTick: s.lastTick}
}

// Trigger forces an immediate ExecuteDue invocation outside the tick
// cadence — a testing and manual-ops hook.
func (s *Scheduler) Trigger(ctx context.Context) (*Summary, error) {
	return s.executor.ExecuteDue(ctx, s.concurrency)
}
