// Package alert owns the Alert lifecycle: opening, upgrading, and
// recovering alerts, and gating the daily reminder for unresolved
// alarms. It is the only writer of the alerts and notification_log
// collections.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/notify"
	"github.com/sentrymon/engine/internal/store"
)

const dailyReminderWindow = 20 * time.Hour

// Manager implements state.AlertSink against a Store and a notify.Sink.
type Manager struct {
	store  store.Store
	sink   notify.Sink
	dedup  notify.DedupCache
	logger *slog.Logger
}

// NewManager builds a Manager. dedup may be nil, in which case the
// daily-reminder gate relies solely on the store's LastNotificationAt
// column (correct for a single engine instance).
func NewManager(st store.Store, sink notify.Sink, dedup notify.DedupCache, logger *slog.Logger) *Manager {
	return &Manager{store: st, sink: sink, dedup: dedup, logger: logger}
}

// Open inserts a new alert for monitor at severity, provided no alert
// is already active/acknowledged/in_recovery for it (spec invariant).
// st.ActiveAlertID is set to the new alert's id so the caller's
// subsequent state persist carries the link.
func (m *Manager) Open(ctx context.Context, monitor *store.Monitor, severity string, st *store.MonitorState, result *check.Result) error {
	if existing, err := m.store.GetOpenAlert(ctx, monitor.ID); err == nil && existing != nil && existing.IsOpen() {
		return nil
	}

	now := time.Now()
	a := &store.Alert{
		MonitorID:           monitor.ID,
		MonitorName:         monitor.Name,
		Severity:            severity,
		Status:              "active",
		TriggeredAt:         now,
		CurrentValue:        result.Value,
		ThresholdValue:      thresholdFor(monitor, severity),
		ConsecutiveFailures: st.ConsecutiveFailures,
		Message:             result.Message,
		LastNotificationAt:  &now,
	}
	if err := m.store.CreateAlert(ctx, a); err != nil {
		return fmt.Errorf("create alert: %w", err)
	}

	st.ActiveAlertID = &a.ID
	m.logger.Info("alert opened", "monitor_id", monitor.ID, "alert_id", a.ID, "severity", severity)

	m.dispatch(ctx, a, monitor, "open")
	a.LastNotificationAt = &now
	return m.store.UpdateAlert(ctx, a)
}

// Upgrade escalates the monitor's open alert to alarm severity and
// re-notifies (subject to the daily-reminder gate for monitors that
// opt into it — certificate monitors in the worked scenario, but the
// gate applies uniformly since it keys off alert_settings).
func (m *Manager) Upgrade(ctx context.Context, monitor *store.Monitor, st *store.MonitorState, result *check.Result) error {
	if st.ActiveAlertID == nil {
		return nil
	}
	a, err := m.store.GetAlert(ctx, *st.ActiveAlertID)
	if err != nil {
		return fmt.Errorf("load alert: %w", err)
	}
	if a.Severity == "alarm" {
		return m.maybeSendReminder(ctx, monitor, a)
	}

	a.Severity = "alarm"
	a.CurrentValue = result.Value
	a.ThresholdValue = thresholdFor(monitor, "alarm")
	a.ConsecutiveFailures = st.ConsecutiveFailures
	a.Message = a.Message + "; escalated to alarm: " + result.Message
	if err := m.store.UpdateAlert(ctx, a); err != nil {
		return fmt.Errorf("update alert: %w", err)
	}

	m.logger.Info("alert upgraded", "monitor_id", monitor.ID, "alert_id", a.ID)
	m.dispatch(ctx, a, monitor, "upgrade")
	now := time.Now()
	a.LastNotificationAt = &now
	return m.store.UpdateAlert(ctx, a)
}

// Recover marks an alert recovered and sends recovery notifications.
func (m *Manager) Recover(ctx context.Context, monitor *store.Monitor, alertID int64) error {
	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return fmt.Errorf("load alert: %w", err)
	}
	if a.Status == "recovered" {
		return nil
	}

	now := time.Now()
	a.Status = "recovered"
	a.RecoveredAt = &now
	if err := m.store.UpdateAlert(ctx, a); err != nil {
		return fmt.Errorf("update alert: %w", err)
	}

	m.logger.Info("alert recovered", "monitor_id", monitor.ID, "alert_id", a.ID,
		"duration", now.Sub(a.TriggeredAt).String())
	m.dispatch(ctx, a, monitor, "recover")
	return nil
}

// MaybeSendDailyReminder resends notifications for an unresolved alarm
// alert if >= 20 hours have elapsed since the last one. Independent of
// probe frequency — callers invoke this on a separate timer.
func (m *Manager) MaybeSendDailyReminder(ctx context.Context, monitor *store.Monitor) error {
	if !monitor.AlertSettings.SendDailyReminder {
		return nil
	}
	a, err := m.store.GetOpenAlert(ctx, monitor.ID)
	if err != nil || a == nil || a.Severity != "alarm" {
		return nil
	}
	return m.maybeSendReminder(ctx, monitor, a)
}

func (m *Manager) maybeSendReminder(ctx context.Context, monitor *store.Monitor, a *store.Alert) error {
	if a.LastNotificationAt != nil && time.Since(*a.LastNotificationAt) < dailyReminderWindow {
		return nil
	}
	if m.dedup != nil {
		ok, err := m.dedup.ShouldSend(ctx, dedupKey(a.ID), dailyReminderWindow)
		if err != nil {
			m.logger.Error("dedup cache check failed, falling back to store gate", "alert_id", a.ID, "error", err)
		} else if !ok {
			return nil
		}
	}
	m.dispatch(ctx, a, monitor, "reminder")
	now := time.Now()
	a.LastNotificationAt = &now
	return m.store.UpdateAlert(ctx, a)
}

// dispatch sends ev to every contact and appends a NotificationLog
// entry regardless of outcome — notifications are at-least-once, and
// the log is the audit trail, not a delivery gate.
func (m *Manager) dispatch(ctx context.Context, a *store.Alert, monitor *store.Monitor, stage string) {
	for _, c := range monitor.Contacts {
		outcome := m.sink.Send(ctx, c, notify.Event{Stage: stage, Alert: a, Monitor: monitor})

		entry := store.NotificationLog{
			Channel:   "email",
			Recipient: c.Email,
			SentAt:    time.Now(),
			Status:    "sent",
			MessageID: outcome.MessageID,
		}
		if !outcome.Sent {
			entry.Status = "failed"
			if outcome.Err != nil {
				entry.Error = outcome.Err.Error()
			}
			m.logger.Error("notification send failed", "monitor_id", monitor.ID, "alert_id", a.ID,
				"recipient", c.Email, "stage", stage, "error", outcome.Err)
		}
		if err := m.store.AppendNotificationLog(ctx, a.ID, entry); err != nil {
			m.logger.Error("append notification log", "alert_id", a.ID, "error", err)
		}
	}
}

func dedupKey(alertID int64) string {
	return "alert:" + strconv.FormatInt(alertID, 10) + ":reminder"
}

func thresholdFor(monitor *store.Monitor, severity string) *float64 {
	if severity == "alarm" {
		if monitor.HighAlarm != nil {
			return monitor.HighAlarm
		}
		return monitor.LowAlarm
	}
	if monitor.HighWarn != nil {
		return monitor.HighWarn
	}
	return monitor.LowWarn
}
