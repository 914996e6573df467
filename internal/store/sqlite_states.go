package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *SQLiteStore) GetMonitorState(ctx context.Context, monitorID int64) (*MonitorState, error) {
	row := s.readDB.QueryRowContext(ctx, `
		SELECT monitor_id, current_status, consecutive_failures, consecutive_successes,
		       last_check_time, last_value, last_error, active_alert_id,
		       recovery_in_progress, recovery_attempt_count
		FROM monitor_states WHERE monitor_id = ?`, monitorID)

	var st MonitorState
	var lastCheck sql.NullString
	var lastValue sql.NullFloat64
	var activeAlert sql.NullInt64
	var recovering int

	err := row.Scan(
		&st.MonitorID, &st.CurrentStatus, &st.ConsecutiveFailures, &st.ConsecutiveSuccesses,
		&lastCheck, &lastValue, &st.LastError, &activeAlert,
		&recovering, &st.RecoveryAttemptCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor state: %w", err)
	}

	st.LastCheckTime = parseTimePtr(lastCheck)
	st.LastValue = floatPtr(lastValue)
	st.ActiveAlertID = int64Ptr(activeAlert)
	st.RecoveryInProgress = recovering != 0
	return &st, nil
}

func (s *SQLiteStore) UpsertMonitorState(ctx context.Context, st *MonitorState) error {
	_, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO monitor_states (
			monitor_id, current_status, consecutive_failures, consecutive_successes,
			last_check_time, last_value, last_error, active_alert_id,
			recovery_in_progress, recovery_attempt_count
		) VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(monitor_id) DO UPDATE SET
			current_status=excluded.current_status,
			consecutive_failures=excluded.consecutive_failures,
			consecutive_successes=excluded.consecutive_successes,
			last_check_time=excluded.last_check_time,
			last_value=excluded.last_value,
			last_error=excluded.last_error,
			active_alert_id=excluded.active_alert_id,
			recovery_in_progress=excluded.recovery_in_progress,
			recovery_attempt_count=excluded.recovery_attempt_count`,
		st.MonitorID, st.CurrentStatus, st.ConsecutiveFailures, st.ConsecutiveSuccesses,
		formatTimePtr(st.LastCheckTime), nullFloat(st.LastValue), st.LastError, nullInt64(st.ActiveAlertID),
		boolToInt(st.RecoveryInProgress), st.RecoveryAttemptCount,
	)
	if err != nil {
		return fmt.Errorf("upsert monitor state: %w", err)
	}
	return nil
}
