package store

import (
	"context"
	"os"
	"testing"
	"time"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "sentrymon-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	s, err := NewSQLiteStore(tmpFile.Name(), 2)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMonitorCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	high := 90.0
	m := &Monitor{
		Name:           "prod-api",
		Type:           "url",
		Target:         "https://api.example.com/health",
		HighWarn:       &high,
		PeriodMinutes:  5,
		TimeoutSeconds: 10,
		Active:         true,
		Contacts:       []Contact{{Name: "on-call", Email: "oncall@example.com"}},
	}
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.ID == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := s.GetMonitor(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "prod-api" || got.HighWarn == nil || *got.HighWarn != 90.0 {
		t.Fatalf("unexpected monitor round-trip: %+v", got)
	}
	if len(got.Contacts) != 1 || got.Contacts[0].Email != "oncall@example.com" {
		t.Fatalf("expected contact to round-trip, got %+v", got.Contacts)
	}

	st, err := s.GetMonitorState(ctx, m.ID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.CurrentStatus != "ok" {
		t.Fatalf("expected default state ok, got %q", st.CurrentStatus)
	}

	got.Name = "prod-api-renamed"
	if err := s.UpdateMonitor(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	reloaded, _ := s.GetMonitor(ctx, m.ID)
	if reloaded.Name != "prod-api-renamed" {
		t.Fatalf("expected rename to persist, got %q", reloaded.Name)
	}

	if err := s.DeleteMonitor(ctx, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetMonitor(ctx, m.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListMonitorsFilter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, typ := range []string{"url", "url", "ping"} {
		if err := s.CreateMonitor(ctx, &Monitor{Name: typ, Type: typ, Target: "t", PeriodMinutes: 1, TimeoutSeconds: 5}); err != nil {
			t.Fatal(err)
		}
	}

	list, total, err := s.ListMonitors(ctx, MonitorFilter{Type: "url"}, Pagination{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("expected 2 url monitors, got total=%d len=%d", total, len(list))
	}
}

func TestObservationHistory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	m := &Monitor{Name: "m", Type: "ping", Target: "1.2.3.4", PeriodMinutes: 1, TimeoutSeconds: 5}
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatal(err)
	}

	val := 12.5
	obs := &Observation{MonitorID: m.ID, Timestamp: time.Now(), Value: &val, Status: "ok"}
	if err := s.InsertObservation(ctx, obs); err != nil {
		t.Fatalf("insert: %v", err)
	}

	latest, err := s.GetLatestObservation(ctx, m.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Value == nil || *latest.Value != 12.5 {
		t.Fatalf("unexpected latest observation: %+v", latest)
	}

	list, total, err := s.ListObservations(ctx, m.ID, Pagination{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("expected 1 observation, got total=%d len=%d", total, len(list))
	}
}

func TestAlertLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	m := &Monitor{Name: "m", Type: "url", Target: "t", PeriodMinutes: 1, TimeoutSeconds: 5}
	if err := s.CreateMonitor(ctx, m); err != nil {
		t.Fatal(err)
	}

	a := &Alert{MonitorID: m.ID, MonitorName: m.Name, Severity: "warning", Status: "active", TriggeredAt: time.Now(), Message: "high latency"}
	if err := s.CreateAlert(ctx, a); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	open, err := s.GetOpenAlert(ctx, m.ID)
	if err != nil {
		t.Fatalf("get open alert: %v", err)
	}
	if open.ID != a.ID {
		t.Fatalf("expected open alert %d, got %d", a.ID, open.ID)
	}

	if err := s.AppendNotificationLog(ctx, a.ID, NotificationLog{Channel: "email", Recipient: "x@example.com", SentAt: time.Now(), Status: "sent"}); err != nil {
		t.Fatalf("append notification: %v", err)
	}

	a.Severity = "alarm"
	a.Status = "recovered"
	now := time.Now()
	a.RecoveredAt = &now
	if err := s.UpdateAlert(ctx, a); err != nil {
		t.Fatalf("update alert: %v", err)
	}

	if _, err := s.GetOpenAlert(ctx, m.ID); err != ErrNotFound {
		t.Fatalf("expected no open alert after recovery, got %v", err)
	}

	reloaded, err := s.GetAlert(ctx, a.ID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if len(reloaded.NotificationsSent) != 1 {
		t.Fatalf("expected 1 notification log entry, got %d", len(reloaded.NotificationsSent))
	}
}
