package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

func (s *SQLiteStore) CreateAlert(ctx context.Context, a *Alert) error {
	metadata, _ := json.Marshal(a.Metadata)
	res, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO alerts (
			monitor_id, monitor_name, severity, status, triggered_at,
			current_value, threshold_value, consecutive_failures, message, metadata
		) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.MonitorID, a.MonitorName, a.Severity, a.Status, formatTime(a.TriggeredAt),
		nullFloat(a.CurrentValue), nullFloat(a.ThresholdValue), a.ConsecutiveFailures, a.Message, string(metadata),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

const alertColumns = `
	id, monitor_id, monitor_name, severity, status, triggered_at, recovered_at,
	current_value, threshold_value, consecutive_failures, last_notification_at, message, metadata`

func scanAlert(row interface{ Scan(...any) error }) (*Alert, error) {
	var a Alert
	var triggeredAt string
	var recoveredAt, lastNotif sql.NullString
	var currentValue, thresholdValue sql.NullFloat64
	var metadata string

	err := row.Scan(
		&a.ID, &a.MonitorID, &a.MonitorName, &a.Severity, &a.Status, &triggeredAt, &recoveredAt,
		&currentValue, &thresholdValue, &a.ConsecutiveFailures, &lastNotif, &a.Message, &metadata,
	)
	if err != nil {
		return nil, err
	}
	a.TriggeredAt = parseTime(triggeredAt)
	a.RecoveredAt = parseTimePtr(recoveredAt)
	a.CurrentValue = floatPtr(currentValue)
	a.ThresholdValue = floatPtr(thresholdValue)
	a.LastNotificationAt = parseTimePtr(lastNotif)
	_ = json.Unmarshal([]byte(metadata), &a.Metadata)
	return &a, nil
}

func (s *SQLiteStore) loadNotifications(ctx context.Context, a *Alert) error {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT channel, recipient, sent_at, status, message_id, error
		FROM notification_log WHERE alert_id = ? ORDER BY id`, a.ID)
	if err != nil {
		return fmt.Errorf("list notification log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n NotificationLog
		var sentAt string
		if err := rows.Scan(&n.Channel, &n.Recipient, &sentAt, &n.Status, &n.MessageID, &n.Error); err != nil {
			return err
		}
		n.SentAt = parseTime(sentAt)
		a.NotificationsSent = append(a.NotificationsSent, n)
	}
	return rows.Err()
}

func (s *SQLiteStore) GetAlert(ctx context.Context, id int64) (*Alert, error) {
	row := s.readDB.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if err := s.loadNotifications(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *SQLiteStore) UpdateAlert(ctx context.Context, a *Alert) error {
	metadata, _ := json.Marshal(a.Metadata)
	res, err := s.writeDB.ExecContext(ctx, `
		UPDATE alerts SET
			severity=?, status=?, recovered_at=?, current_value=?, threshold_value=?,
			consecutive_failures=?, last_notification_at=?, message=?, metadata=?
		WHERE id=?`,
		a.Severity, a.Status, formatTimePtr(a.RecoveredAt), nullFloat(a.CurrentValue), nullFloat(a.ThresholdValue),
		a.ConsecutiveFailures, formatTimePtr(a.LastNotificationAt), a.Message, string(metadata), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOpenAlert returns the monitor's single active/acknowledged/in_recovery
// alert, or ErrNotFound if there is none — enforcing the at-most-one-open-
// alert-per-monitor invariant at the call site.
func (s *SQLiteStore) GetOpenAlert(ctx context.Context, monitorID int64) (*Alert, error) {
	row := s.readDB.QueryRowContext(ctx, "SELECT "+alertColumns+` FROM alerts
		WHERE monitor_id = ? AND status IN ('active','acknowledged','in_recovery')
		ORDER BY id DESC LIMIT 1`, monitorID)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get open alert: %w", err)
	}
	if err := s.loadNotifications(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, monitorID int64, status string, p Pagination) ([]*Alert, int, error) {
	where := []string{}
	args := []any{}
	if monitorID != 0 {
		where = append(where, "monitor_id = ?")
		args = append(args, monitorID)
	}
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts "+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	if p.PerPage <= 0 {
		p.PerPage = 50
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	offset := (p.Page - 1) * p.PerPage
	args = append(args, p.PerPage, offset)

	rows, err := s.readDB.QueryContext(ctx, "SELECT "+alertColumns+" FROM alerts "+whereSQL+" ORDER BY id DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) AppendNotificationLog(ctx context.Context, alertID int64, n NotificationLog) error {
	_, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO notification_log (alert_id, channel, recipient, sent_at, status, message_id, error)
		VALUES (?,?,?,?,?,?,?)`,
		alertID, n.Channel, n.Recipient, formatTime(n.SentAt), n.Status, n.MessageID, n.Error,
	)
	if err != nil {
		return fmt.Errorf("append notification log: %w", err)
	}
	return nil
}
