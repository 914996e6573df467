package state

import (
	"context"
	"os"
	"testing"

	"log/slog"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/store"
)

func testStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "sentrymon-state-test-*.db")
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

type fakeSink struct {
	opened    []string
	upgraded  int
	recovered int
}

func (f *fakeSink) Open(ctx context.Context, monitor *store.Monitor, severity string, st *store.MonitorState, result *check.Result) error {
	f.opened = append(f.opened, severity)
	id := int64(len(f.opened))
	st.ActiveAlertID = &id
	return nil
}

func (f *fakeSink) Upgrade(ctx context.Context, monitor *store.Monitor, st *store.MonitorState, result *check.Result) error {
	f.upgraded++
	return nil
}

func (f *fakeSink) Recover(ctx context.Context, monitor *store.Monitor, alertID int64) error {
	f.recovered++
	return nil
}

func newTestMonitor(t *testing.T, s *store.SQLiteStore) *store.Monitor {
	t.Helper()
	highAlarm := 2000.0
	m := &store.Monitor{
		Name: "flap-test", Type: "url", Target: "https://x/health",
		HighAlarm: &highAlarm, ConsecutiveWarning: 2, ConsecutiveAlarm: 3, ResetAfterMOK: 2,
		PeriodMinutes: 1, TimeoutSeconds: 5, Active: true,
	}
	if err := s.CreateMonitor(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return m
}

func resultValue(v float64, status check.Status) *check.Result {
	return &check.Result{Success: true, Status: status, Value: &v}
}

func TestHysteresisOpensAfterConsecutiveAlarm(t *testing.T) {
	s := testStore(t)
	sink := &fakeSink{}
	mgr := NewManager(s, sink, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
	m := newTestMonitor(t, s)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := mgr.Apply(ctx, m, resultValue(2500, check.StatusAlarm)); err != nil {
			t.Fatal(err)
		}
	}
	if len(sink.opened) != 0 {
		t.Fatalf("expected no alert before consecutive_alarm threshold, got %d", len(sink.opened))
	}

	if _, err := mgr.Apply(ctx, m, resultValue(2500, check.StatusAlarm)); err != nil {
		t.Fatal(err)
	}
	if len(sink.opened) != 1 || sink.opened[0] != "alarm" {
		t.Fatalf("expected exactly one alarm alert opened, got %v", sink.opened)
	}
}

func TestRecoveryIdempotence(t *testing.T) {
	s := testStore(t)
	sink := &fakeSink{}
	mgr := NewManager(s, sink, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
	m := newTestMonitor(t, s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mgr.Apply(ctx, m, resultValue(2500, check.StatusAlarm))
	}
	if len(sink.opened) != 1 {
		t.Fatalf("expected one alert opened, got %d", len(sink.opened))
	}

	for i := 0; i < 2; i++ {
		if _, err := mgr.Apply(ctx, m, resultValue(300, check.StatusOK)); err != nil {
			t.Fatal(err)
		}
	}
	if sink.recovered != 1 {
		t.Fatalf("expected exactly one recover call, got %d", sink.recovered)
	}

	if _, err := mgr.Apply(ctx, m, resultValue(300, check.StatusOK)); err != nil {
		t.Fatal(err)
	}
	if sink.recovered != 1 {
		t.Fatalf("expected no further recover calls, got %d", sink.recovered)
	}
}

func TestSingleBadResultResetsFailureCounter(t *testing.T) {
	s := testStore(t)
	sink := &fakeSink{}
	mgr := NewManager(s, sink, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
	m := newTestMonitor(t, s)
	ctx := context.Background()

	mgr.Apply(ctx, m, resultValue(2500, check.StatusAlarm))
	mgr.Apply(ctx, m, resultValue(2500, check.StatusAlarm))
	st, err := mgr.Apply(ctx, m, resultValue(300, check.StatusOK))
	if err != nil {
		t.Fatal(err)
	}
	if st.ConsecutiveFailures != 0 {
		t.Fatalf("expected failure counter reset by an ok result, got %d", st.ConsecutiveFailures)
	}

	mgr.Apply(ctx, m, resultValue(2500, check.StatusAlarm))
	mgr.Apply(ctx, m, resultValue(2500, check.StatusAlarm))
	if len(sink.opened) != 0 {
		t.Fatalf("expected counter reset to delay alarm opening, got %d opens", len(sink.opened))
	}
}
