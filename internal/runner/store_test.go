package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/routefleet/routefleet/internal/store"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.Migrate(ctx, "runner", migrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db.DB())
}

func TestExecutionLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := NewExecution("dev-001", "system_info", OriginUI, "admin", "")
	if e.Status != StatusPending {
		t.Fatalf("new execution status = %q, want pending", e.Status)
	}
	if err := s.Insert(ctx, e); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.MarkRunning(ctx, e.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("status = %q, want running", got.Status)
	}
	if got.TriggeredBy != OriginUI || got.TriggeredByUser != "admin" {
		t.Errorf("origin = %q/%q, want ui/admin", got.TriggeredBy, got.TriggeredByUser)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt is nil after MarkRunning")
	}

	if err := s.Finish(ctx, e.ID, StatusSuccess, "uptime=1d", "", 0, 420); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got, err = s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusSuccess {
		t.Errorf("status = %q, want success", got.Status)
	}
	if got.Stdout != "uptime=1d" {
		t.Errorf("stdout = %q", got.Stdout)
	}
	if got.ExitStatus == nil || *got.ExitStatus != 0 {
		t.Errorf("exit status = %v, want 0", got.ExitStatus)
	}
	if got.DurationMs == nil || *got.DurationMs != 420 {
		t.Errorf("duration = %v, want 420", got.DurationMs)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt is nil after Finish")
	}
}

func TestFinish_TerminalStatusIsFinal(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e := NewExecution("dev-001", "system_info", OriginUI, "admin", "")
	if err := s.Insert(ctx, e); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Finish(ctx, e.ID, StatusError, "", "connection refused", -1, 10); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// A terminal record rejects further transitions.
	if err := s.Finish(ctx, e.ID, StatusSuccess, "late output", "", 0, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Finish on terminal record error = %v, want ErrNotFound", err)
	}
	if err := s.MarkRunning(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkRunning on terminal record error = %v, want ErrNotFound", err)
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusError {
		t.Errorf("status = %q, want error to stick", got.Status)
	}
	if got.Stderr != "connection refused" {
		t.Errorf("stderr = %q", got.Stderr)
	}
}

func TestListByDevice_NewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, script := range []string{"system_info", "signal_strength", "sim_info"} {
		e := NewExecution("dev-001", script, OriginUI, "admin", "")
		if err := s.Insert(ctx, e); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	other := NewExecution("dev-002", "system_info", OriginUI, "admin", "")
	if err := s.Insert(ctx, other); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	execs, err := s.ListByDevice(ctx, "dev-001", 2)
	if err != nil {
		t.Fatalf("ListByDevice: %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("ListByDevice returned %d, want 2", len(execs))
	}
	for _, e := range execs {
		if e.DeviceID != "dev-001" {
			t.Errorf("got execution for %q, want dev-001", e.DeviceID)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing execution error = %v, want ErrNotFound", err)
	}
}
