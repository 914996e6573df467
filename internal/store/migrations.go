package store

const schemaVersion = 2

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS monitors (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	name                TEXT    NOT NULL,
	type                TEXT    NOT NULL,
	target              TEXT    NOT NULL,
	low_warn            REAL,
	high_warn           REAL,
	low_alarm           REAL,
	high_alarm          REAL,
	consecutive_warning INTEGER NOT NULL DEFAULT 2,
	consecutive_alarm   INTEGER NOT NULL DEFAULT 3,
	reset_after_m_ok    INTEGER NOT NULL DEFAULT 2,
	period_minutes      INTEGER NOT NULL DEFAULT 5,
	timeout_seconds     INTEGER NOT NULL DEFAULT 10,
	contacts            TEXT    NOT NULL DEFAULT '[]',
	dependencies        TEXT    NOT NULL DEFAULT '[]',
	active              INTEGER NOT NULL DEFAULT 1,
	running             INTEGER NOT NULL DEFAULT 0,
	maintenance_windows TEXT    NOT NULL DEFAULT '[]',
	send_daily_reminder INTEGER NOT NULL DEFAULT 1,
	settings            TEXT    NOT NULL DEFAULT '{}',
	proxy_id            INTEGER,
	created_at          TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
	updated_at          TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE TABLE IF NOT EXISTS monitor_states (
	monitor_id            INTEGER PRIMARY KEY REFERENCES monitors(id) ON DELETE CASCADE,
	current_status        TEXT    NOT NULL DEFAULT 'ok',
	consecutive_failures  INTEGER NOT NULL DEFAULT 0,
	consecutive_successes INTEGER NOT NULL DEFAULT 0,
	last_check_time       TEXT,
	last_value            REAL,
	last_error            TEXT    NOT NULL DEFAULT '',
	active_alert_id       INTEGER,
	recovery_in_progress  INTEGER NOT NULL DEFAULT 0,
	recovery_attempt_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS observations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	monitor_id    INTEGER NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	timestamp     TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
	value         REAL,
	status        TEXT    NOT NULL,
	response_time INTEGER,
	status_code   INTEGER,
	error         TEXT    NOT NULL DEFAULT '',
	metadata      TEXT    NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_observations_monitor_id ON observations(monitor_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS alerts (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	monitor_id            INTEGER NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	monitor_name          TEXT    NOT NULL DEFAULT '',
	severity              TEXT    NOT NULL,
	status                TEXT    NOT NULL DEFAULT 'active',
	triggered_at          TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
	recovered_at          TEXT,
	current_value         REAL,
	threshold_value       REAL,
	consecutive_failures  INTEGER NOT NULL DEFAULT 0,
	last_notification_at  TEXT,
	message               TEXT    NOT NULL DEFAULT '',
	metadata              TEXT    NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_alerts_monitor_id ON alerts(monitor_id, status);

CREATE TABLE IF NOT EXISTS notification_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	alert_id   INTEGER NOT NULL REFERENCES alerts(id) ON DELETE CASCADE,
	channel    TEXT    NOT NULL,
	recipient  TEXT    NOT NULL,
	sent_at    TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
	status     TEXT    NOT NULL,
	message_id TEXT    NOT NULL DEFAULT '',
	error      TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_notification_log_alert_id ON notification_log(alert_id);
`

var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 2,
		sql:     `CREATE INDEX IF NOT EXISTS idx_observations_monitor_latest ON observations(monitor_id, id DESC);`,
	},
}
