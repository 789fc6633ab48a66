package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an execution does not exist.
var ErrNotFound = errors.New("execution not found")

// Execution statuses. Pending and running are transient; success and error
// are terminal and never change again.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Execution origins, recorded as triggered_by.
const (
	OriginUI       = "ui"
	OriginSMS      = "sms"
	OriginSchedule = "schedule"
)

// Execution is one script run against one device.
type Execution struct {
	ID              string     `json:"id"`
	DeviceID        string     `json:"device_id"`
	ScriptID        string     `json:"script_id"`
	TriggeredBy     string     `json:"triggered_by"`
	TriggeredByUser string     `json:"triggered_by_user,omitempty"`
	Status          string     `json:"status"`
	Stdout          string     `json:"stdout,omitempty"`
	Stderr          string     `json:"stderr,omitempty"`
	ExitStatus      *int       `json:"exit_status,omitempty"`
	DurationMs      *int64     `json:"duration_ms,omitempty"`
	ReplyTo         string     `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// NewExecution creates a pending execution record.
func NewExecution(deviceID, scriptID, origin, principal, replyTo string) *Execution {
	return &Execution{
		ID:              uuid.NewString(),
		DeviceID:        deviceID,
		ScriptID:        scriptID,
		TriggeredBy:     origin,
		TriggeredByUser: principal,
		Status:          StatusPending,
		ReplyTo:         replyTo,
		CreatedAt:       time.Now().UTC(),
	}
}

// Store provides database access for execution records.
type Store struct {
	db *sql.DB
}

// NewStore creates an execution store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert persists a new pending execution.
func (s *Store) Insert(ctx context.Context, e *Execution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runner_executions (id, device_id, script_id, triggered_by, triggered_by_user, status, reply_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DeviceID, e.ScriptID, e.TriggeredBy, e.TriggeredByUser, e.Status, e.ReplyTo, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Get returns an execution by ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, script_id, triggered_by, triggered_by_user, status,
			stdout, stderr, exit_status, duration_ms, reply_to,
			created_at, started_at, finished_at
		FROM runner_executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// ListByDevice returns recent executions for a device, newest first.
func (s *Store) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, script_id, triggered_by, triggered_by_user, status,
			stdout, stderr, exit_status, duration_ms, reply_to,
			created_at, started_at, finished_at
		FROM runner_executions WHERE device_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// MarkRunning moves a pending execution to running. A no-op on records that
// already left pending, so a terminal status is never overwritten.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runner_executions SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		StatusRunning, time.Now().UTC(), id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Finish moves an execution to a terminal status and records the outcome.
// Terminal records are left untouched.
func (s *Store) Finish(ctx context.Context, id, status, stdout, stderr string, exitStatus int, durationMs int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runner_executions SET
			status = ?, stdout = ?, stderr = ?, exit_status = ?,
			duration_ms = ?, finished_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		status, stdout, stderr, exitStatus, durationMs, time.Now().UTC(),
		id, StatusPending, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*Execution, error) {
	var e Execution
	var triggeredByUser sql.NullString
	var stdout, stderr, replyTo sql.NullString
	var exitStatus sql.NullInt64
	var durationMs sql.NullInt64
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.DeviceID, &e.ScriptID, &e.TriggeredBy, &triggeredByUser, &e.Status,
		&stdout, &stderr, &exitStatus, &durationMs, &replyTo,
		&e.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	e.TriggeredByUser = triggeredByUser.String
	e.Stdout = stdout.String
	e.Stderr = stderr.String
	e.ReplyTo = replyTo.String
	if exitStatus.Valid {
		v := int(exitStatus.Int64)
		e.ExitStatus = &v
	}
	if durationMs.Valid {
		v := durationMs.Int64
		e.DurationMs = &v
	}
	if startedAt.Valid {
		t := startedAt.Time
		e.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		e.FinishedAt = &t
	}
	return &e, nil
}
