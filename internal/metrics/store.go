package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Measurement names used across the system.
const (
	MeasurementSignal    = "signal"
	MeasurementHeartbeat = "heartbeat"
)

// Point is one telemetry sample: a measurement with numeric fields and
// string tags, stamped at a moment in time. Fields are stored as one row
// each so range queries can select a single series.
type Point struct {
	Measurement string
	DeviceID    string
	Tags        map[string]string
	Fields      map[string]float64
	Timestamp   time.Time
}

// Sample is one stored field value returned from a range query.
type Sample struct {
	Field     string            `json:"field"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Store persists and queries telemetry points.
type Store struct {
	db *sql.DB
}

// NewStore creates a telemetry store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WritePoint stores all fields of a point atomically. Points with no fields
// are dropped without error.
func (s *Store) WritePoint(ctx context.Context, p Point) error {
	if len(p.Fields) == 0 {
		return nil
	}
	tags := ""
	if len(p.Tags) > 0 {
		b, err := json.Marshal(p.Tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		tags = string(b)
	}
	ts := p.Timestamp.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write point: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Deterministic insert order keeps test output stable.
	fields := make([]string, 0, len(p.Fields))
	for f := range p.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, f := range fields {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metric_points (measurement, device_id, field, value, tags, ts)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.Measurement, p.DeviceID, f, p.Fields[f], tags, ts,
		)
		if err != nil {
			return fmt.Errorf("insert point field %s: %w", f, err)
		}
	}
	return tx.Commit()
}

// Range returns all samples for a measurement and device since the cutoff,
// oldest first.
func (s *Store) Range(ctx context.Context, measurement, deviceID string, since time.Time) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field, value, tags, ts FROM metric_points
		WHERE measurement = ? AND device_id = ? AND ts >= ?
		ORDER BY ts ASC, field ASC`,
		measurement, deviceID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var sm Sample
		var tags sql.NullString
		if err := rows.Scan(&sm.Field, &sm.Value, &tags, &sm.Timestamp); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &sm.Tags); err != nil {
				return nil, fmt.Errorf("decode tags: %w", err)
			}
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// Latest returns the newest sample per field for a measurement and device,
// considering only samples at or after the since cutoff.
func (s *Store) Latest(ctx context.Context, measurement, deviceID string, since time.Time) (map[string]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.field, p.value, p.tags, p.ts
		FROM metric_points p
		JOIN (
			SELECT field, MAX(ts) AS max_ts FROM metric_points
			WHERE measurement = ? AND device_id = ? AND ts >= ?
			GROUP BY field
		) latest ON p.field = latest.field AND p.ts = latest.max_ts
		WHERE p.measurement = ? AND p.device_id = ?`,
		measurement, deviceID, since, measurement, deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("latest query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Sample)
	for rows.Next() {
		var sm Sample
		var tags sql.NullString
		if err := rows.Scan(&sm.Field, &sm.Value, &tags, &sm.Timestamp); err != nil {
			return nil, fmt.Errorf("scan latest sample: %w", err)
		}
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &sm.Tags); err != nil {
				return nil, fmt.Errorf("decode tags: %w", err)
			}
		}
		out[sm.Field] = sm
	}
	return out, rows.Err()
}

// DeviceIDs lists the devices with any stored points for a measurement.
func (s *Store) DeviceIDs(ctx context.Context, measurement string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT device_id FROM metric_points
		WHERE measurement = ? ORDER BY device_id`,
		measurement,
	)
	if err != nil {
		return nil, fmt.Errorf("device ids query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteBefore removes all points older than the cutoff, returning the
// number of rows pruned.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM metric_points WHERE ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete points: %w", err)
	}
	return res.RowsAffected()
}
