// Package store provides the shared SQLite-backed plugin.Store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/routefleet/routefleet/pkg/plugin"
	"golang.org/x/mod/semver"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrNewerSchema is returned when the database was created by a newer version
// of RouteFleet than the currently running binary.
var ErrNewerSchema = fmt.Errorf("database was created by a newer version of RouteFleet")

// Compile-time interface guard.
var _ plugin.Store = (*SQLiteStore)(nil)

// pragmas applied to every new database handle. modernc.org/sqlite takes
// these as SQL statements rather than DSN parameters.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA cache_size=-20000",
}

// SQLiteStore implements plugin.Store backed by SQLite via modernc.org/sqlite.
// All plugins share one database file; each plugin owns its own tables and
// tracks its schema independently through Migrate.
type SQLiteStore struct {
	db *sql.DB

	mu       sync.Mutex // serializes migrations across plugins
	prepared bool       // internal tables created
}

// New opens (or creates) a SQLite database at the given path. WAL mode,
// foreign keys, and a busy timeout are enabled on the handle.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// A single write connection avoids SQLITE_BUSY under concurrent writers;
	// WAL still allows readers to proceed.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying *sql.DB for direct queries.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Tx executes fn within a database transaction. The transaction is
// committed if fn returns nil, rolled back otherwise.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// Migrate applies the plugin's pending migrations in order. Each applied
// version is recorded in the shared _migrations table, so re-running with
// the same list is a no-op. Migrations must be listed in ascending Version
// order; an out-of-order list is rejected before anything runs.
func (s *SQLiteStore) Migrate(ctx context.Context, pluginName string, migrations []plugin.Migration) error {
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			return fmt.Errorf("migrations for %s out of order: version %d follows %d",
				pluginName, migrations[i].Version, migrations[i-1].Version)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInternalTables(ctx); err != nil {
		return err
	}

	done, err := s.appliedVersions(ctx, pluginName)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		if err := s.applyMigration(ctx, pluginName, m); err != nil {
			return fmt.Errorf("migration %s/%d (%s): %w", pluginName, m.Version, m.Description, err)
		}
	}

	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CheckVersion refuses to open a database written by a newer binary, which
// could otherwise corrupt data the old code doesn't understand. On first run
// the current version is recorded; on upgrade it is advanced. The special
// version "dev" always passes, both as stored and as current.
func (s *SQLiteStore) CheckVersion(ctx context.Context, currentVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInternalTables(ctx); err != nil {
		return err
	}

	stored, found, err := s.storedVersion(ctx)
	if err != nil {
		return err
	}

	switch {
	case !found:
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO _schema_meta (id, app_version, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)",
			currentVersion,
		)
		if err != nil {
			return fmt.Errorf("insert schema version: %w", err)
		}
		return nil

	case stored == "dev" || currentVersion == "dev":
		return s.writeVersion(ctx, currentVersion)
	}

	cur := normalizeVersion(currentVersion)
	sto := normalizeVersion(stored)

	if semver.Compare(cur, sto) < 0 {
		return fmt.Errorf("%w: database=%s, binary=%s", ErrNewerSchema, stored, currentVersion)
	}
	if semver.Compare(cur, sto) > 0 {
		return s.writeVersion(ctx, currentVersion)
	}

	return nil
}

// storedVersion reads the recorded app version. found is false on first run.
func (s *SQLiteStore) storedVersion(ctx context.Context) (stored string, found bool, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT app_version FROM _schema_meta WHERE id = 1",
	).Scan(&stored)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query schema version: %w", err)
	}
	return stored, true, nil
}

func (s *SQLiteStore) writeVersion(ctx context.Context, version string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE _schema_meta SET app_version = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
		version,
	)
	if err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}
	return nil
}

// normalizeVersion ensures the version string has a "v" prefix for semver comparison.
func normalizeVersion(v string) string {
	if v != "" && v[0] != 'v' {
		return "v" + v
	}
	return v
}

// ensureInternalTables creates the bookkeeping tables on first use.
// Callers must hold s.mu.
func (s *SQLiteStore) ensureInternalTables(ctx context.Context) error {
	if s.prepared {
		return nil
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _migrations (
			plugin_name TEXT     NOT NULL,
			version     INTEGER  NOT NULL,
			description TEXT     NOT NULL,
			applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (plugin_name, version)
		)`,
		`CREATE TABLE IF NOT EXISTS _schema_meta (
			id           INTEGER  PRIMARY KEY CHECK (id = 1),
			app_version  TEXT     NOT NULL,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create internal tables: %w", err)
		}
	}

	s.prepared = true
	return nil
}

// appliedVersions returns the set of migration versions already recorded
// for the plugin. Callers must hold s.mu.
func (s *SQLiteStore) appliedVersions(ctx context.Context, pluginName string) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT version FROM _migrations WHERE plugin_name = ?", pluginName)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations for %s: %w", pluginName, err)
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		done[v] = true
	}
	return done, rows.Err()
}

// applyMigration runs one migration and records it, atomically.
func (s *SQLiteStore) applyMigration(ctx context.Context, pluginName string, m plugin.Migration) error {
	return s.Tx(ctx, func(tx *sql.Tx) error {
		if err := m.Up(tx); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO _migrations (plugin_name, version, description) VALUES (?, ?, ?)",
			pluginName, m.Version, m.Description,
		)
		return err
	})
}
