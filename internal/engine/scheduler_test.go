package engine

import (
	"context"
	"testing"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/store"
)

func TestSchedulerStartIsIdempotent(t *testing.T) {
	s := testStore(t)
	registry := check.NewRegistry()
	registry.Register(&fixedChecker{typ: "url", result: &check.Result{Success: true, Status: check.StatusOK}})
	exec := NewExecutor(s, registry, &noopStateApplier{}, testLogger())

	sched := NewScheduler(exec, 4, testLogger())
	ctx := context.Background()

	sched.Start(ctx)
	defer sched.Stop()

	first := sched.GetStatus()
	if !first.Running || first.StartedAt == nil {
		t.Fatalf("expected scheduler to report running after Start, got %+v", first)
	}

	sched.Start(ctx)
	second := sched.GetStatus()
	if second.StartedAt != first.StartedAt {
		t.Fatalf("expected a second Start to be a no-op")
	}
}

func TestSchedulerStopClearsState(t *testing.T) {
	s := testStore(t)
	registry := check.NewRegistry()
	exec := NewExecutor(s, registry, &noopStateApplier{}, testLogger())
	sched := NewScheduler(exec, 4, testLogger())

	sched.Start(context.Background())
	sched.Stop()

	status := sched.GetStatus()
	if status.Running {
		t.Fatalf("expected scheduler to report stopped")
	}
}

func TestSchedulerTrigger(t *testing.T) {
	s := testStore(t)
	registry := check.NewRegistry()
	value := 100.0
	registry.Register(&fixedChecker{typ: "url", result: &check.Result{Success: true, Value: &value}})
	exec := NewExecutor(s, registry, &noopStateApplier{}, testLogger())
	sched := NewScheduler(exec, 4, testLogger())

	ctx := context.Background()
	m := &store.Monitor{Name: "trigger-test", Type: "url", Target: "https://x", PeriodMinutes: 1, TimeoutSeconds: 5, Active: true}
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatal(err)
	}

	summary, err := sched.Trigger(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 1 || summary.Successful != 1 {
		t.Fatalf("expected one successful monitor executed, got %+v", summary)
	}
}
