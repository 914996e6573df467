// Package engine runs the per-monitor check pipeline and the
// process-wide scheduler that drives it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/sentrymon/engine/internal/alert"
	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/state"
	"github.com/sentrymon/engine/internal/store"
)

// StateApplier is the subset of state.Manager the Executor depends on.
type StateApplier interface {
	Apply(ctx context.Context, monitor *store.Monitor, result *check.Result) (*store.MonitorState, error)
}

var (
	_ StateApplier     = (*state.Manager)(nil)
	_ state.AlertSink  = (*alert.Manager)(nil)
)

// Executor runs the validate -> check -> write -> state -> alert
// pipeline for a single monitor.
type Executor struct {
	store    store.Store
	registry *check.Registry
	states   StateApplier
	limiter  *rate.Limiter
	backoff  *AdaptiveBackoff
	logger   *slog.Logger
}

func NewExecutor(st store.Store, registry *check.Registry, states StateApplier, logger *slog.Logger) *Executor {
	return &Executor{store: st, registry: registry, states: states, logger: logger}
}

// WithRateLimit caps outbound checker dispatch at rps checks per
// second, burstable up to burst — a scheduler-wide throttle so a large
// monitor fleet does not open hundreds of sockets/HTTP requests in the
// same instant. Unset by default (unlimited).
func (e *Executor) WithRateLimit(rps float64, burst int) *Executor {
	e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return e
}

// WithAdaptiveBackoff installs a per-monitor period stretcher. nil by
// default, so ExecuteDue's due-ness check stays a pure function of
// period_minutes; set via Scheduler.WithAdaptiveBackoff.
func (e *Executor) WithAdaptiveBackoff(b *AdaptiveBackoff) *Executor {
	e.backoff = b
	return e
}

// Run executes one monitor's pipeline and returns the CheckResult that
// was produced (synthetic or real). Pipeline-stage errors (write,
// state, alert) are logged and swallowed, never returned — only a
// checker-invocation error that never should happen (unknown type) is
// surfaced distinctly via result.Status=error.
func (e *Executor) Run(ctx context.Context, monitor *store.Monitor) *check.Result {
	now := time.Now()

	if monitor.InMaintenance(now) {
		return &check.Result{Success: true, Status: check.StatusOK, Message: "in maintenance", Timestamp: now}
	}

	checker, ok := e.registry.Lookup(monitor.Type)
	if !ok {
		return check.Errorf("no checker registered for type %q", monitor.Type)
	}

	if err := checker.Validate(monitor); err != nil {
		result := check.Errorf("validation failed: %v", err)
		e.runPipeline(ctx, monitor, result)
		return result
	}

	timeout := time.Duration(monitor.TimeoutSeconds) * time.Second
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if e.limiter != nil {
		if err := e.limiter.Wait(checkCtx); err != nil {
			result := check.Errorf("rate limit wait: %v", err)
			e.runPipeline(ctx, monitor, result)
			return result
		}
	}

	result, err := checker.Check(checkCtx, monitor)
	if err != nil {
		result = check.Errorf("checker error: %v", err)
	} else if checkCtx.Err() != nil {
		result = check.Errorf("check timed out after %s", timeout)
	} else if result.Success && result.Status == "" {
		// Simple metric checkers defer severity classification to the
		// monitor's configured thresholds; domain-classified checkers
		// (ping, ssh metric parsing) set Status themselves and are
		// left untouched here.
		result.Status = check.Classify(*result.Value, monitor.GetThresholds())
	}

	e.runPipeline(ctx, monitor, result)
	return result
}

func (e *Executor) runPipeline(ctx context.Context, monitor *store.Monitor, result *check.Result) {
	e.writeObservation(ctx, monitor, result)

	if _, err := e.states.Apply(ctx, monitor, result); err != nil {
		e.logger.Error("state manager apply failed", "monitor_id", monitor.ID, "error", err)
	}
}

// writeObservation persists result as an Observation. A write failure
// must never fail the probe — it is logged and swallowed.
func (e *Executor) writeObservation(ctx context.Context, monitor *store.Monitor, result *check.Result) {
	o := &store.Observation{
		MonitorID:    monitor.ID,
		Timestamp:    result.Timestamp,
		Value:        result.Value,
		Status:       string(result.Status),
		ResponseTime: result.ResponseTime,
		StatusCode:   result.StatusCode,
		Metadata:     result.Metadata,
	}
	if !result.Success {
		o.Error = result.Message
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	if err := e.store.InsertObservation(ctx, o); err != nil {
		e.logger.Error("insert observation failed", "monitor_id", monitor.ID, "error", err)
	}
}

// Summary is the result of one executeAll/executeDue sweep.
type Summary struct {
	Total      int
	Successful int
	Failed     int
	Skipped    int
	Results    map[int64]*check.Result
}

// ExecuteAll runs every active+running monitor through a bounded-
// concurrency pool.
func (e *Executor) ExecuteAll(ctx context.Context, concurrency int) (*Summary, error) {
	monitors, err := e.store.GetAllActiveMonitors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active monitors: %w", err)
	}
	return e.executeSet(ctx, monitors, concurrency), nil
}

// ExecuteDue runs every active+running monitor whose period has
// elapsed (or that has never run).
func (e *Executor) ExecuteDue(ctx context.Context, concurrency int) (*Summary, error) {
	monitors, err := e.store.GetAllActiveMonitors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active monitors: %w", err)
	}

	now := time.Now()
	due := monitors[:0]
	for _, m := range monitors {
		st, err := e.store.GetMonitorState(ctx, m.ID)
		if err != nil || st.LastCheckTime == nil {
			due = append(due, m)
			continue
		}
		period := time.Duration(m.PeriodMinutes) * time.Minute
		if e.backoff != nil {
			period = time.Duration(float64(period) * e.backoff.Multiplier(m.ID))
		}
		if now.Sub(*st.LastCheckTime) >= period {
			due = append(due, m)
		}
	}
	return e.executeSet(ctx, due, concurrency), nil
}

func (e *Executor) executeSet(ctx context.Context, monitors []*store.Monitor, concurrency int) *Summary {
	if concurrency <= 0 {
		concurrency = 10
	}

	summary := &Summary{Total: len(monitors), Results: make(map[int64]*check.Result, len(monitors))}
	sem := make(chan struct{}, concurrency)
	results := make(chan struct {
		id int64
		r  *check.Result
	}, len(monitors))

	for _, m := range monitors {
		m := m
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			r := e.Run(ctx, m)
			results <- struct {
				id int64
				r  *check.Result
			}{m.ID, r}
		}()
	}
	for range monitors {
		res := <-results
		summary.Results[res.id] = res.r
		switch {
		case res.r.Message == "in maintenance":
			summary.Skipped++
		case res.r.Success:
			summary.Successful++
		default:
			summary.Failed++
		}
		if e.backoff != nil {
			e.backoff.Record(res.id, res.r.Success)
		}
	}
	return summary
}
