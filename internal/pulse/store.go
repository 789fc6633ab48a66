package pulse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrAlertNotFound is returned when an alert does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// Alert categories and severities.
const (
	CategoryOffline  = "offline"
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Alert records a fleet health event, open until resolved.
type Alert struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"device_id"`
	Category    string     `json:"category"`
	Severity    string     `json:"severity"`
	Message     string     `json:"message"`
	TriggeredAt time.Time  `json:"triggered_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// NewAlert creates an unresolved alert.
func NewAlert(deviceID, category, severity, message string) *Alert {
	return &Alert{
		ID:          uuid.NewString(),
		DeviceID:    deviceID,
		Category:    category,
		Severity:    severity,
		Message:     message,
		TriggeredAt: time.Now().UTC(),
	}
}

// PulseStore provides database access for the pulse plugin.
type PulseStore struct {
	db *sql.DB
}

// NewPulseStore creates a pulse store backed by the given database.
func NewPulseStore(db *sql.DB) *PulseStore {
	return &PulseStore{db: db}
}

// InsertAlert persists a new alert.
func (s *PulseStore) InsertAlert(ctx context.Context, a *Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pulse_alerts (id, device_id, category, severity, message, triggered_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeviceID, a.Category, a.Severity, a.Message, a.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListActiveAlerts returns unresolved alerts, optionally filtered by device,
// newest first.
func (s *PulseStore) ListActiveAlerts(ctx context.Context, deviceID string) ([]Alert, error) {
	query := `
		SELECT id, device_id, category, severity, message, triggered_at, resolved_at
		FROM pulse_alerts WHERE resolved_at IS NULL`
	args := []any{}
	if deviceID != "" {
		query += ` AND device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY triggered_at DESC`
	return s.queryAlerts(ctx, query, args...)
}

// ListAlerts returns recent alerts for a device, resolved ones included,
// newest first.
func (s *PulseStore) ListAlerts(ctx context.Context, deviceID string, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryAlerts(ctx, `
		SELECT id, device_id, category, severity, message, triggered_at, resolved_at
		FROM pulse_alerts WHERE device_id = ?
		ORDER BY triggered_at DESC LIMIT ?`,
		deviceID, limit)
}

// ResolveAlert marks an alert resolved. Resolving twice is an error.
func (s *PulseStore) ResolveAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pulse_alerts SET resolved_at = ?
		WHERE id = ? AND resolved_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// ResolveDeviceAlerts resolves all open alerts in a category for a device,
// returning how many were closed. Used when a device comes back online.
func (s *PulseStore) ResolveDeviceAlerts(ctx context.Context, deviceID, category string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pulse_alerts SET resolved_at = ?
		WHERE device_id = ? AND category = ? AND resolved_at IS NULL`,
		time.Now().UTC(), deviceID, category,
	)
	if err != nil {
		return 0, fmt.Errorf("resolve device alerts: %w", err)
	}
	return res.RowsAffected()
}

func (s *PulseStore) queryAlerts(ctx context.Context, query string, args ...any) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var resolvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.Category, &a.Severity, &a.Message, &a.TriggeredAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			a.ResolvedAt = &t
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
