package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

func (s *SQLiteStore) InsertObservation(ctx context.Context, o *Observation) error {
	metadata, _ := json.Marshal(o.Metadata)
	res, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO observations (monitor_id, timestamp, value, status, response_time, status_code, error, metadata)
		VALUES (?,?,?,?,?,?,?,?)`,
		o.MonitorID, formatTime(o.Timestamp), nullFloat(o.Value), o.Status,
		nullInt64(o.ResponseTime), nullInt(o.StatusCode), o.Error, string(metadata),
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	o.ID, err = res.LastInsertId()
	return err
}

func scanObservation(row interface{ Scan(...any) error }) (*Observation, error) {
	var o Observation
	var timestamp, metadata string
	var value sql.NullFloat64
	var responseTime sql.NullInt64
	var statusCode sql.NullInt64

	err := row.Scan(&o.ID, &o.MonitorID, &timestamp, &value, &o.Status, &responseTime, &statusCode, &o.Error, &metadata)
	if err != nil {
		return nil, err
	}
	o.Timestamp = parseTime(timestamp)
	o.Value = floatPtr(value)
	o.ResponseTime = int64Ptr(responseTime)
	o.StatusCode = intPtr(statusCode)
	_ = json.Unmarshal([]byte(metadata), &o.Metadata)
	return &o, nil
}

func (s *SQLiteStore) ListObservations(ctx context.Context, monitorID int64, p Pagination) ([]*Observation, int, error) {
	var total int
	if err := s.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM observations WHERE monitor_id = ?", monitorID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count observations: %w", err)
	}

	if p.PerPage <= 0 {
		p.PerPage = 50
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	offset := (p.Page - 1) * p.PerPage

	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, monitor_id, timestamp, value, status, response_time, status_code, error, metadata
		FROM observations WHERE monitor_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`, monitorID, p.PerPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var out []*Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) GetLatestObservation(ctx context.Context, monitorID int64) (*Observation, error) {
	row := s.readDB.QueryRowContext(ctx, `
		SELECT id, monitor_id, timestamp, value, status, response_time, status_code, error, metadata
		FROM observations WHERE monitor_id = ? ORDER BY id DESC LIMIT 1`, monitorID)
	o, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest observation: %w", err)
	}
	return o, nil
}

func (s *SQLiteStore) PurgeObservationsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.writeDB.ExecContext(ctx, "DELETE FROM observations WHERE timestamp < ?", formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("purge observations: %w", err)
	}
	return res.RowsAffected()
}
