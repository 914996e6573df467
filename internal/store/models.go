package store

import (
	"encoding/json"
	"time"

	"github.com/sentrymon/engine/internal/check"
)

// Contact is a notification recipient attached to a monitor.
type Contact struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile string `json:"mobile,omitempty"`
	Role   string `json:"role,omitempty"`
	Prefs  string `json:"prefs,omitempty"` // free-form channel preference, email-only is honored today
}

// MaintenanceWindow suppresses alerting for a monitor between Start and End.
type MaintenanceWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AlertSettings holds per-monitor alert behavior toggles.
type AlertSettings struct {
	SendDailyReminder bool `json:"send_daily_reminder"`
}

// Monitor is the configuration record for one probed target.
type Monitor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // url, api_post, ssh, ping, log, certificate, docker, aws, gcp, azure
	Target string `json:"target"`

	LowWarn   *float64 `json:"low_warn,omitempty"`
	HighWarn  *float64 `json:"high_warn,omitempty"`
	LowAlarm  *float64 `json:"low_alarm,omitempty"`
	HighAlarm *float64 `json:"high_alarm,omitempty"`

	ConsecutiveWarning int `json:"consecutive_warning"` // default 2
	ConsecutiveAlarm   int `json:"consecutive_alarm"`   // default 3
	ResetAfterMOK      int `json:"reset_after_m_ok"`    // default 2

	PeriodMinutes  int `json:"period_minutes"`
	TimeoutSeconds int `json:"timeout_seconds"`

	Contacts     []Contact `json:"contacts"`
	Dependencies []string  `json:"dependencies,omitempty"`

	Active  bool `json:"active"`
	Running bool `json:"running"`

	MaintenanceWindows []MaintenanceWindow `json:"maintenance_windows,omitempty"`
	AlertSettings      AlertSettings       `json:"alert_settings"`

	Settings json.RawMessage `json:"settings,omitempty"`

	ProxyID *int64 `json:"proxy_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Resolved at check time, never persisted.
	ProxyURL string `json:"-"`
}

// GetID, GetType, etc. implement check.Monitor so probes can depend on
// the narrow interface instead of the full storage type.
func (m *Monitor) GetID() int64           { return m.ID }
func (m *Monitor) GetType() string        { return m.Type }
func (m *Monitor) GetTarget() string      { return m.Target }
func (m *Monitor) GetTimeoutSeconds() int { return m.TimeoutSeconds }
func (m *Monitor) GetSettings() []byte    { return m.Settings }
func (m *Monitor) GetProxyURL() string    { return m.ProxyURL }

func (m *Monitor) GetThresholds() check.Thresholds {
	return check.Thresholds{
		LowWarning:  m.LowWarn,
		HighWarning: m.HighWarn,
		LowAlarm:    m.LowAlarm,
		HighAlarm:   m.HighAlarm,
	}
}

// InMaintenance reports whether at is inside one of the monitor's
// maintenance windows.
func (m *Monitor) InMaintenance(at time.Time) bool {
	for _, w := range m.MaintenanceWindows {
		if !at.Before(w.Start) && !at.After(w.End) {
			return true
		}
	}
	return false
}

// Validate checks the invariants spec.md §3 requires of a Monitor.
func (m *Monitor) Validate() error {
	if m.Name == "" {
		return errRequired("name")
	}
	if m.PeriodMinutes < 1 {
		return errInvalid("period_minutes must be >= 1")
	}
	if m.TimeoutSeconds < 5 {
		return errInvalid("timeout_seconds must be >= 5")
	}
	if m.TimeoutSeconds >= m.PeriodMinutes*60 {
		return errInvalid("timeout_seconds must be less than period_minutes*60")
	}
	if m.LowWarn != nil && m.LowAlarm != nil && *m.LowWarn > *m.LowAlarm {
		return errInvalid("low_warn must be <= low_alarm")
	}
	if m.HighWarn != nil && m.HighAlarm != nil && *m.HighWarn > *m.HighAlarm {
		return errInvalid("high_warn must be <= high_alarm")
	}
	for _, c := range m.Contacts {
		if c.Email == "" {
			return errInvalid("contact email is required")
		}
	}
	return nil
}

// MonitorState is the per-monitor runtime counters the State Manager owns.
type MonitorState struct {
	MonitorID             int64      `json:"monitor_id"`
	CurrentStatus          string     `json:"current_status"`
	ConsecutiveFailures    int        `json:"consecutive_failures"`
	ConsecutiveSuccesses   int        `json:"consecutive_successes"`
	LastCheckTime          *time.Time `json:"last_check_time,omitempty"`
	LastValue              *float64   `json:"last_value,omitempty"`
	LastError              string     `json:"last_error,omitempty"`
	ActiveAlertID          *int64     `json:"active_alert_id,omitempty"`
	RecoveryInProgress     bool       `json:"recovery_in_progress"`
	RecoveryAttemptCount   int        `json:"recovery_attempt_count"`
}

// NotificationLog records one attempted delivery of an alert notification.
type NotificationLog struct {
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sent_at"`
	Status    string    `json:"status"` // sent, failed
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Alert is the append-created, in-place-updated lifecycle record of one
// crossed threshold.
type Alert struct {
	ID                  int64              `json:"id"`
	MonitorID           int64              `json:"monitor_id"`
	MonitorName         string             `json:"monitor_name"`
	Severity            string             `json:"severity"` // warning, alarm
	Status              string             `json:"status"`   // active, acknowledged, in_recovery, recovered
	TriggeredAt         time.Time          `json:"triggered_at"`
	RecoveredAt         *time.Time         `json:"recovered_at,omitempty"`
	CurrentValue        *float64           `json:"current_value,omitempty"`
	ThresholdValue      *float64           `json:"threshold_value,omitempty"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	NotificationsSent   []NotificationLog  `json:"notifications_sent"`
	LastNotificationAt  *time.Time         `json:"last_notification_at,omitempty"`
	Message             string             `json:"message"`
	Metadata            map[string]any     `json:"metadata,omitempty"`
}

// IsOpen reports whether the alert occupies the monitor's single
// active-alert slot (spec.md §3 invariant).
func (a *Alert) IsOpen() bool {
	switch a.Status {
	case "active", "acknowledged", "in_recovery":
		return true
	default:
		return false
	}
}

// Observation is one append-only probe datum.
type Observation struct {
	ID           int64          `json:"id"`
	MonitorID    int64          `json:"monitor_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Value        *float64       `json:"value,omitempty"`
	Status       string         `json:"status"`
	ResponseTime *int64         `json:"response_time,omitempty"`
	StatusCode   *int           `json:"status_code,omitempty"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Pagination mirrors the teacher's list-query parameters.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

type validationError string

func (e validationError) Error() string { return string(e) }

func errRequired(field string) error { return validationError(field + " is required") }
func errInvalid(msg string) error    { return validationError(msg) }
