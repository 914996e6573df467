package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("store: not found")

func (s *SQLiteStore) CreateMonitor(ctx context.Context, m *Monitor) error {
	contacts, _ := json.Marshal(m.Contacts)
	deps, _ := json.Marshal(m.Dependencies)
	windows, _ := json.Marshal(m.MaintenanceWindows)
	if m.Settings == nil {
		m.Settings = json.RawMessage("{}")
	}

	res, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO monitors (
			name, type, target, low_warn, high_warn, low_alarm, high_alarm,
			consecutive_warning, consecutive_alarm, reset_after_m_ok,
			period_minutes, timeout_seconds, contacts, dependencies,
			active, running, maintenance_windows, send_daily_reminder,
			settings, proxy_id
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.Name, m.Type, m.Target, nullFloat(m.LowWarn), nullFloat(m.HighWarn), nullFloat(m.LowAlarm), nullFloat(m.HighAlarm),
		m.ConsecutiveWarning, m.ConsecutiveAlarm, m.ResetAfterMOK,
		m.PeriodMinutes, m.TimeoutSeconds, string(contacts), string(deps),
		boolToInt(m.Active), boolToInt(m.Running), string(windows), boolToInt(m.AlertSettings.SendDailyReminder),
		string(m.Settings), nullInt64(m.ProxyID),
	)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id

	if _, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO monitor_states (monitor_id, current_status) VALUES (?, 'ok')`, id); err != nil {
		return fmt.Errorf("insert monitor state: %w", err)
	}

	created, err := s.GetMonitor(ctx, id)
	if err != nil {
		return err
	}
	m.CreatedAt, m.UpdatedAt = created.CreatedAt, created.UpdatedAt
	return nil
}

const monitorColumns = `
	id, name, type, target, low_warn, high_warn, low_alarm, high_alarm,
	consecutive_warning, consecutive_alarm, reset_after_m_ok,
	period_minutes, timeout_seconds, contacts, dependencies,
	active, running, maintenance_windows, send_daily_reminder,
	settings, proxy_id, created_at, updated_at`

func scanMonitor(row interface{ Scan(...any) error }) (*Monitor, error) {
	var m Monitor
	var contacts, deps, windows, settings string
	var createdAt, updatedAt string
	var proxyID sql.NullInt64
	var lowWarn, highWarn, lowAlarm, highAlarm sql.NullFloat64
	var reminder int

	err := row.Scan(
		&m.ID, &m.Name, &m.Type, &m.Target, &lowWarn, &highWarn, &lowAlarm, &highAlarm,
		&m.ConsecutiveWarning, &m.ConsecutiveAlarm, &m.ResetAfterMOK,
		&m.PeriodMinutes, &m.TimeoutSeconds, &contacts, &deps,
		&m.Active, &m.Running, &windows, &reminder,
		&settings, &proxyID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.LowWarn, m.HighWarn, m.LowAlarm, m.HighAlarm = floatPtr(lowWarn), floatPtr(highWarn), floatPtr(lowAlarm), floatPtr(highAlarm)
	m.AlertSettings.SendDailyReminder = reminder != 0
	m.ProxyID = int64Ptr(proxyID)
	m.CreatedAt, m.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	m.Settings = json.RawMessage(settings)
	_ = json.Unmarshal([]byte(contacts), &m.Contacts)
	_ = json.Unmarshal([]byte(deps), &m.Dependencies)
	_ = json.Unmarshal([]byte(windows), &m.MaintenanceWindows)
	return &m, nil
}

func (s *SQLiteStore) GetMonitor(ctx context.Context, id int64) (*Monitor, error) {
	row := s.readDB.QueryRowContext(ctx, "SELECT "+monitorColumns+" FROM monitors WHERE id = ?", id)
	m, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) ListMonitors(ctx context.Context, f MonitorFilter, p Pagination) ([]*Monitor, int, error) {
	var where []string
	var args []any

	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Active != nil {
		where = append(where, "active = ?")
		args = append(args, boolToInt(*f.Active))
	}
	if f.Search != "" {
		where = append(where, "(name LIKE ? OR target LIKE ?)")
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM monitors "+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count monitors: %w", err)
	}

	if p.PerPage <= 0 {
		p.PerPage = 50
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	offset := (p.Page - 1) * p.PerPage

	query := "SELECT " + monitorColumns + " FROM monitors " + whereSQL + " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, p.PerPage, offset)

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var out []*Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) UpdateMonitor(ctx context.Context, m *Monitor) error {
	contacts, _ := json.Marshal(m.Contacts)
	deps, _ := json.Marshal(m.Dependencies)
	windows, _ := json.Marshal(m.MaintenanceWindows)
	if m.Settings == nil {
		m.Settings = json.RawMessage("{}")
	}

	res, err := s.writeDB.ExecContext(ctx, `
		UPDATE monitors SET
			name=?, type=?, target=?, low_warn=?, high_warn=?, low_alarm=?, high_alarm=?,
			consecutive_warning=?, consecutive_alarm=?, reset_after_m_ok=?,
			period_minutes=?, timeout_seconds=?, contacts=?, dependencies=?,
			active=?, maintenance_windows=?, send_daily_reminder=?,
			settings=?, proxy_id=?, updated_at=strftime('%Y-%m-%dT%H:%M:%SZ','now')
		WHERE id=?`,
		m.Name, m.Type, m.Target, nullFloat(m.LowWarn), nullFloat(m.HighWarn), nullFloat(m.LowAlarm), nullFloat(m.HighAlarm),
		m.ConsecutiveWarning, m.ConsecutiveAlarm, m.ResetAfterMOK,
		m.PeriodMinutes, m.TimeoutSeconds, string(contacts), string(deps),
		boolToInt(m.Active), string(windows), boolToInt(m.AlertSettings.SendDailyReminder),
		string(m.Settings), nullInt64(m.ProxyID), m.ID,
	)
	if err != nil {
		return fmt.Errorf("update monitor: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteMonitor(ctx context.Context, id int64) error {
	res, err := s.writeDB.ExecContext(ctx, "DELETE FROM monitors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetMonitorActive(ctx context.Context, id int64, active bool) error {
	_, err := s.writeDB.ExecContext(ctx, "UPDATE monitors SET active=? WHERE id=?", boolToInt(active), id)
	return err
}

func (s *SQLiteStore) SetMonitorRunning(ctx context.Context, id int64, running bool) error {
	_, err := s.writeDB.ExecContext(ctx, "UPDATE monitors SET running=? WHERE id=?", boolToInt(running), id)
	return err
}

func (s *SQLiteStore) GetAllActiveMonitors(ctx context.Context) ([]*Monitor, error) {
	rows, err := s.readDB.QueryContext(ctx, "SELECT "+monitorColumns+" FROM monitors WHERE active = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list active monitors: %w", err)
	}
	defer rows.Close()

	var out []*Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
