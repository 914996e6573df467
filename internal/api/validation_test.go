package api

import (
	"strings"
	"testing"

	"github.com/sentrymon/engine/internal/store"
)

func validMonitor() *store.Monitor {
	return &store.Monitor{
		Name:               "Example",
		Type:               "url",
		Target:             "https://example.com",
		PeriodMinutes:      5,
		TimeoutSeconds:     10,
		ConsecutiveWarning: 2,
		ConsecutiveAlarm:   3,
		ResetAfterMOK:      2,
	}
}

func TestValidateMonitorAcceptsValid(t *testing.T) {
	if err := validateMonitor(validMonitor()); err != nil {
		t.Fatal(err)
	}
}

func TestValidateMonitorRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*store.Monitor)
		errSub string
	}{
		{"empty name", func(m *store.Monitor) { m.Name = "" }, "name is required"},
		{"unknown type", func(m *store.Monitor) { m.Type = "gopher" }, "type must be one of"},
		{"empty target", func(m *store.Monitor) { m.Target = "" }, "target is required"},
		{"zero period", func(m *store.Monitor) { m.PeriodMinutes = 0 }, "period_minutes"},
		{"zero timeout", func(m *store.Monitor) { m.TimeoutSeconds = 0 }, "timeout_seconds"},
		{"timeout too large", func(m *store.Monitor) { m.TimeoutSeconds = 301 }, "timeout_seconds"},
		{"zero consecutive warning", func(m *store.Monitor) { m.ConsecutiveWarning = 0 }, "consecutive_warning"},
		{"zero consecutive alarm", func(m *store.Monitor) { m.ConsecutiveAlarm = 0 }, "consecutive_alarm"},
		{"zero reset after ok", func(m *store.Monitor) { m.ResetAfterMOK = 0 }, "reset_after_m_ok"},
		{"invalid settings JSON", func(m *store.Monitor) { m.Settings = []byte("not json") }, "settings must be"},
		{"contact missing email", func(m *store.Monitor) {
			m.Contacts = []store.Contact{{Name: "ops"}}
		}, "every contact requires an email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMonitor()
			tt.modify(m)
			err := validateMonitor(m)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Fatalf("expected error containing %q, got %q", tt.errSub, err.Error())
			}
		})
	}
}
