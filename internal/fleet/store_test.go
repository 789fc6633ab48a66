package fleet

import (
	"context"
	"errors"
	"testing"
	"time"

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
	if err := db.Migrate(ctx, "fleet", Migrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db.DB())
}

func insertTestDevice(t *testing.T, s *Store, d *Device) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	if err := s.Insert(context.Background(), d); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestInsert_AndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	d := &Device{
		ID:          "dev-001",
		Name:        "branch-router-1",
		Address:     "10.0.0.1",
		SSHPort:     22,
		SSHUser:     "admin",
		SSHPassword: "secret",
		Tags:        map[string]string{"site": "hq"},
		IsActive:    true,
	}
	insertTestDevice(t, s, d)

	got, err := s.Get(ctx, "dev-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "branch-router-1" {
		t.Errorf("Name = %q, want branch-router-1", got.Name)
	}
	if got.SSHPassword != "secret" {
		t.Errorf("SSHPassword = %q, want secret", got.SSHPassword)
	}
	if got.Tags["site"] != "hq" {
		t.Errorf("Tags[site] = %q, want hq", got.Tags["site"])
	}
	if !got.IsActive {
		t.Error("IsActive = false, want true")
	}
	if got.IsOnline {
		t.Error("IsOnline = true, want false")
	}
	if got.LastSeen != nil {
		t.Errorf("LastSeen = %v, want nil", got.LastSeen)
	}
}

func TestInsert_DuplicateName(t *testing.T) {
	s := testStore(t)

	insertTestDevice(t, s, &Device{ID: "dev-001", Name: "edge", Address: "10.0.0.1", IsActive: true})

	err := s.Insert(context.Background(), &Device{
		ID: "dev-002", Name: "edge", Address: "10.0.0.2", IsActive: true,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("Insert duplicate name error = %v, want ErrDuplicateName", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing device error = %v, want ErrNotFound", err)
	}
}

func TestListActive_FiltersInactive(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertTestDevice(t, s, &Device{ID: "a", Name: "alpha", Address: "10.0.0.1", IsActive: true})
	insertTestDevice(t, s, &Device{ID: "b", Name: "bravo", Address: "10.0.0.2", IsActive: false})

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].ID != "a" {
		t.Fatalf("ListActive = %v, want only device a", active)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List returned %d devices, want 2", len(all))
	}
}

func TestFindByNameOrAddress(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertTestDevice(t, s, &Device{ID: "a", Name: "Branch-Office-1", Address: "10.0.0.1", IsActive: true})
	insertTestDevice(t, s, &Device{ID: "b", Name: "warehouse", Address: "10.0.0.2", IsActive: true})
	insertTestDevice(t, s, &Device{ID: "c", Name: "retired", Address: "10.0.0.3", IsActive: false})

	tests := []struct {
		name   string
		token  string
		wantID string
	}{
		{"case-insensitive partial name", "branch", "a"},
		{"exact name", "warehouse", "b"},
		{"exact address", "10.0.0.2", "b"},
		{"uppercase query", "WAREHOUSE", "b"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.FindByNameOrAddress(ctx, tc.token)
			if err != nil {
				t.Fatalf("FindByNameOrAddress(%q): %v", tc.token, err)
			}
			if got.ID != tc.wantID {
				t.Errorf("FindByNameOrAddress(%q) = %s, want %s", tc.token, got.ID, tc.wantID)
			}
		})
	}

	t.Run("inactive device not matched", func(t *testing.T) {
		_, err := s.FindByNameOrAddress(ctx, "retired")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("partial address not matched", func(t *testing.T) {
		_, err := s.FindByNameOrAddress(ctx, "10.0.0")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestSetOnline(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertTestDevice(t, s, &Device{ID: "a", Name: "alpha", Address: "10.0.0.1", IsActive: true})

	seen := time.Now().UTC().Truncate(time.Second)
	if err := s.SetOnline(ctx, "a", true, seen); err != nil {
		t.Fatalf("SetOnline(true): %v", err)
	}
	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsOnline {
		t.Error("IsOnline = false after SetOnline(true)")
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, seen)
	}

	// Going offline keeps the last-seen timestamp.
	if err := s.SetOnline(ctx, "a", false, time.Now()); err != nil {
		t.Fatalf("SetOnline(false): %v", err)
	}
	got, err = s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.IsOnline {
		t.Error("IsOnline = true after SetOnline(false)")
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v after going offline, want %v", got.LastSeen, seen)
	}

	if err := s.SetOnline(ctx, "missing", true, seen); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetOnline on missing device error = %v, want ErrNotFound", err)
	}
}

func TestUpdate_AndDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertTestDevice(t, s, &Device{ID: "a", Name: "alpha", Address: "10.0.0.1", IsActive: true})

	d, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	d.Name = "alpha-renamed"
	d.Location = "rack 4"
	if err := s.Update(ctx, d); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.Name != "alpha-renamed" || got.Location != "rack 4" {
		t.Errorf("updated device = %+v", got)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete twice error = %v, want ErrNotFound", err)
	}
}
