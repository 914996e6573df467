package engine

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/store"
)

func testStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "sentrymon-engine-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	s, err := store.NewSQLiteStore(tmpFile.Name(), 2)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fixedChecker struct {
	typ    string
	result *check.Result
	err    error
}

func (c *fixedChecker) Type() string          { return c.typ }
func (c *fixedChecker) Validate(check.Monitor) error { return nil }
func (c *fixedChecker) Check(context.Context, check.Monitor) (*check.Result, error) {
	return c.result, c.err
}

type noopStateApplier struct{ calls int }

func (n *noopStateApplier) Apply(ctx context.Context, monitor *store.Monitor, result *check.Result) (*store.MonitorState, error) {
	n.calls++
	return &store.MonitorState{MonitorID: monitor.ID}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestExecutorClassifiesDeferredStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	value := 2500.0
	registry := check.NewRegistry()
	registry.Register(&fixedChecker{typ: "url", result: &check.Result{Success: true, Value: &value}})

	states := &noopStateApplier{}
	exec := NewExecutor(s, registry, states, testLogger())

	highAlarm := 2000.0
	m := &store.Monitor{Name: "deferred", Type: "url", Target: "https://x", HighAlarm: &highAlarm, PeriodMinutes: 1, TimeoutSeconds: 5, Active: true}
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatal(err)
	}

	result := exec.Run(ctx, m)
	if result.Status != check.StatusAlarm {
		t.Fatalf("expected deferred classification to alarm on a 2500 value against high_alarm=2000, got %v", result.Status)
	}
	if states.calls != 1 {
		t.Fatalf("expected state manager to be invoked once, got %d", states.calls)
	}
}

func TestExecutorMaintenanceBypass(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	registry := check.NewRegistry()
	registry.Register(&fixedChecker{typ: "url", result: &check.Result{Success: true, Status: check.StatusAlarm}})
	states := &noopStateApplier{}
	exec := NewExecutor(s, registry, states, testLogger())

	now := time.Now()
	m := &store.Monitor{
		Name: "in-maintenance", Type: "url", Target: "https://x",
		MaintenanceWindows: []store.MaintenanceWindow{{Start: now.Add(-time.Minute), End: now.Add(time.Minute)}},
		PeriodMinutes:      1, TimeoutSeconds: 5, Active: true,
	}
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatal(err)
	}

	result := exec.Run(ctx, m)
	if result.Status != check.StatusOK || result.Message != "in maintenance" {
		t.Fatalf("expected synthetic ok/in-maintenance result, got %+v", result)
	}
	if states.calls != 0 {
		t.Fatalf("expected state manager not to be invoked during maintenance bypass, got %d calls", states.calls)
	}

	obs, _, err := s.ListObservations(ctx, m.ID, store.Pagination{})
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 0 {
		t.Fatalf("expected no observation written during maintenance bypass, got %d", len(obs))
	}
}

func TestExecutorTimeoutYieldsErrorResult(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	registry := check.NewRegistry()
	registry.Register(&slowChecker{})
	states := &noopStateApplier{}
	exec := NewExecutor(s, registry, states, testLogger())

	m := &store.Monitor{Name: "slow", Type: "slow", Target: "x", PeriodMinutes: 1, TimeoutSeconds: 1, Active: true}
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatal(err)
	}

	result := exec.Run(ctx, m)
	if result.Success {
		t.Fatalf("expected a timed-out check to yield a failed result")
	}
	if result.Status != check.StatusError {
		t.Fatalf("expected status=error, got %v", result.Status)
	}
}

type slowChecker struct{}

func (c *slowChecker) Type() string          { return "slow" }
func (c *slowChecker) Validate(check.Monitor) error { return nil }
func (c *slowChecker) Check(ctx context.Context, m check.Monitor) (*check.Result, error) {
	select {
	case <-time.After(10 * time.Second):
		return &check.Result{Success: true, Status: check.StatusOK}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
