package store

import (
	"context"
	"time"
)

// MonitorFilter narrows ListMonitors.
type MonitorFilter struct {
	Type   string
	Active *bool
	Search string
}

// Store is the complete persistence interface the engine, API, and
// state/alert managers depend on. A single SQLite-backed implementation
// is provided by NewSQLiteStore; tests may supply their own.
type Store interface {
	// Monitors
	CreateMonitor(ctx context.Context, m *Monitor) error
	GetMonitor(ctx context.Context, id int64) (*Monitor, error)
	ListMonitors(ctx context.Context, f MonitorFilter, p Pagination) ([]*Monitor, int, error)
	UpdateMonitor(ctx context.Context, m *Monitor) error
	DeleteMonitor(ctx context.Context, id int64) error
	SetMonitorActive(ctx context.Context, id int64, active bool) error
	SetMonitorRunning(ctx context.Context, id int64, running bool) error
	GetAllActiveMonitors(ctx context.Context) ([]*Monitor, error)

	// Monitor state (State Manager's runtime counters)
	GetMonitorState(ctx context.Context, monitorID int64) (*MonitorState, error)
	UpsertMonitorState(ctx context.Context, s *MonitorState) error

	// Observations (append-only probe history)
	InsertObservation(ctx context.Context, o *Observation) error
	ListObservations(ctx context.Context, monitorID int64, p Pagination) ([]*Observation, int, error)
	GetLatestObservation(ctx context.Context, monitorID int64) (*Observation, error)

	// Alerts
	CreateAlert(ctx context.Context, a *Alert) error
	GetAlert(ctx context.Context, id int64) (*Alert, error)
	UpdateAlert(ctx context.Context, a *Alert) error
	GetOpenAlert(ctx context.Context, monitorID int64) (*Alert, error)
	ListAlerts(ctx context.Context, monitorID int64, status string, p Pagination) ([]*Alert, int, error)
	AppendNotificationLog(ctx context.Context, alertID int64, n NotificationLog) error

	// Data retention
	PurgeObservationsBefore(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
