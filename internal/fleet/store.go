package fleet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a device does not exist.
var ErrNotFound = errors.New("device not found")

// ErrDuplicateName is returned when a device name is already taken.
// Name uniqueness is an invariant of the roster.
var ErrDuplicateName = errors.New("device name already exists")

// Device is a managed remote router reachable over SSH.
// Credentials are never serialized into API responses.
type Device struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Address     string            `json:"address"`
	SSHPort     int               `json:"ssh_port"`
	SSHUser     string            `json:"ssh_user"`
	SSHPassword string            `json:"-"`
	SSHKey      string            `json:"-"`
	Location    string            `json:"location,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	IsActive    bool              `json:"is_active"`
	IsOnline    bool              `json:"is_online"`
	LastSeen    *time.Time        `json:"last_seen,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Store provides database access for the fleet roster.
type Store struct {
	db *sql.DB
}

// NewStore creates a roster store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const deviceColumns = `id, name, address, ssh_port, ssh_user, ssh_password, ssh_key,
	location, notes, tags, is_active, is_online, last_seen, created_at, updated_at`

// Insert adds a new device to the roster.
func (s *Store) Insert(ctx context.Context, d *Device) error {
	tags, err := marshalTags(d.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fleet_devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Address, d.SSHPort, d.SSHUser, d.SSHPassword, d.SSHKey,
		d.Location, d.Notes, tags, boolInt(d.IsActive), boolInt(d.IsOnline),
		d.LastSeen, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: %s", ErrDuplicateName, d.Name)
		}
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

// Get returns a device by ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Device, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM fleet_devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

// List returns all devices ordered by name.
func (s *Store) List(ctx context.Context) ([]Device, error) {
	return s.queryDevices(ctx,
		`SELECT `+deviceColumns+` FROM fleet_devices ORDER BY name`)
}

// ListActive returns devices flagged active, ordered by name.
// This is the roster the poller works from.
func (s *Store) ListActive(ctx context.Context) ([]Device, error) {
	return s.queryDevices(ctx,
		`SELECT `+deviceColumns+` FROM fleet_devices WHERE is_active = 1 ORDER BY name`)
}

// FindByNameOrAddress resolves a device by case-insensitive partial name
// match or exact address match, restricted to active devices. Returns
// ErrNotFound when nothing matches.
func (s *Store) FindByNameOrAddress(ctx context.Context, token string) (*Device, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM fleet_devices
		WHERE is_active = 1 AND (name LIKE '%' || ? || '%' COLLATE NOCASE OR address = ?)
		ORDER BY name LIMIT 1`,
		token, token)
	d, err := scanDevice(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find device %q: %w", token, err)
	}
	return d, nil
}

// Update persists administrative edits to a device.
func (s *Store) Update(ctx context.Context, d *Device) error {
	tags, err := marshalTags(d.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE fleet_devices SET
			name = ?, address = ?, ssh_port = ?, ssh_user = ?, ssh_password = ?,
			ssh_key = ?, location = ?, notes = ?, tags = ?, is_active = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		d.Name, d.Address, d.SSHPort, d.SSHUser, d.SSHPassword,
		d.SSHKey, d.Location, d.Notes, tags, boolInt(d.IsActive),
		d.ID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: %s", ErrDuplicateName, d.Name)
		}
		return fmt.Errorf("update device: %w", err)
	}
	return requireRow(res)
}

// SetOnline records a probe outcome for one device as its own independently
// committed statement, so one device's failure can't roll back a sibling's
// update. The last-seen timestamp only advances when the device is online.
func (s *Store) SetOnline(ctx context.Context, id string, online bool, seenAt time.Time) error {
	var res sql.Result
	var err error
	if online {
		res, err = s.db.ExecContext(ctx,
			`UPDATE fleet_devices SET is_online = 1, last_seen = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			seenAt.UTC(), id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE fleet_devices SET is_online = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			id)
	}
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return requireRow(res)
}

// Delete removes a device from the roster.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fleet_devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	return requireRow(res)
}

func (s *Store) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*Device, error) {
	var d Device
	var password, key, location, notes, tags sql.NullString
	var lastSeen sql.NullTime
	var active, online int
	err := row.Scan(
		&d.ID, &d.Name, &d.Address, &d.SSHPort, &d.SSHUser, &password, &key,
		&location, &notes, &tags, &active, &online, &lastSeen,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.SSHPassword = password.String
	d.SSHKey = key.String
	d.Location = location.String
	d.Notes = notes.String
	d.IsActive = active != 0
	d.IsOnline = online != 0
	if lastSeen.Valid {
		t := lastSeen.Time
		d.LastSeen = &t
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &d.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &d, nil
}

func marshalTags(tags map[string]string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
