// Package state owns the per-monitor runtime counters — current
// status, consecutive success/failure streaks, and the active alert
// link — and the transition rules that turn a probe result into
// alert-lifecycle signals.
package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/store"
)

// AlertSink receives the lifecycle signals the State Manager derives
// from a (monitor, result) pair. The Alert Manager implements this.
type AlertSink interface {
	Open(ctx context.Context, monitor *store.Monitor, severity string, st *store.MonitorState, result *check.Result) error
	Upgrade(ctx context.Context, monitor *store.Monitor, st *store.MonitorState, result *check.Result) error
	Recover(ctx context.Context, monitor *store.Monitor, alertID int64) error
}

// Manager applies spec-defined transitions to MonitorState and emits
// alert lifecycle signals through an AlertSink.
type Manager struct {
	store  store.Store
	alerts AlertSink
	logger *slog.Logger
}

func NewManager(st store.Store, alerts AlertSink, logger *slog.Logger) *Manager {
	return &Manager{store: st, alerts: alerts, logger: logger}
}

// Apply runs the eight-step state transition for one (monitor, result)
// pair and persists the updated state. Errors from the alert sink are
// logged and swallowed — the state write must still happen.
func (m *Manager) Apply(ctx context.Context, monitor *store.Monitor, result *check.Result) (*store.MonitorState, error) {
	st, err := m.store.GetMonitorState(ctx, monitor.ID)
	if err != nil {
		st = &store.MonitorState{MonitorID: monitor.ID}
	}

	now := time.Now()
	st.LastCheckTime = &now
	st.LastValue = result.Value
	if !result.Success {
		st.LastError = result.Message
	} else {
		st.LastError = ""
	}

	if result.Success && result.Status == check.StatusOK {
		st.ConsecutiveSuccesses++
		st.ConsecutiveFailures = 0

		if st.ActiveAlertID != nil && st.ConsecutiveSuccesses >= resetAfter(monitor) {
			alertID := *st.ActiveAlertID
			if err := m.alerts.Recover(ctx, monitor, alertID); err != nil {
				m.logger.Error("recover alert", "monitor_id", monitor.ID, "alert_id", alertID, "error", err)
			}
			st.ActiveAlertID = nil
			st.RecoveryInProgress = false
			st.RecoveryAttemptCount = 0
		}
	} else {
		st.ConsecutiveFailures++
		st.ConsecutiveSuccesses = 0
	}

	st.CurrentStatus = string(result.Status)

	switch result.Status {
	case check.StatusWarning:
		if st.ConsecutiveFailures >= monitor.ConsecutiveWarning && st.ActiveAlertID == nil {
			if err := m.alerts.Open(ctx, monitor, "warning", st, result); err != nil {
				m.logger.Error("open warning alert", "monitor_id", monitor.ID, "error", err)
			}
		}
	case check.StatusAlarm:
		if st.ConsecutiveFailures >= monitor.ConsecutiveAlarm {
			if st.ActiveAlertID != nil {
				if err := m.alerts.Upgrade(ctx, monitor, st, result); err != nil {
					m.logger.Error("upgrade alert", "monitor_id", monitor.ID, "error", err)
				}
			} else {
				if err := m.alerts.Open(ctx, monitor, "alarm", st, result); err != nil {
					m.logger.Error("open alarm alert", "monitor_id", monitor.ID, "error", err)
				}
			}
		}
	}

	if err := m.store.UpsertMonitorState(ctx, st); err != nil {
		return st, err
	}
	return st, nil
}

func resetAfter(monitor *store.Monitor) int {
	if monitor.ResetAfterMOK <= 0 {
		return 2
	}
	return monitor.ResetAfterMOK
}
