package fleet

import (
	"database/sql"

	"github.com/routefleet/routefleet/pkg/plugin"
)

// Migrations returns the schema migrations for this plugin.
func Migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create fleet devices table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS fleet_devices (
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL UNIQUE,
						address TEXT NOT NULL,
						ssh_port INTEGER NOT NULL DEFAULT 22,
						ssh_user TEXT NOT NULL DEFAULT 'admin',
						ssh_password TEXT,
						ssh_key TEXT,
						location TEXT,
						notes TEXT,
						tags TEXT,
						is_active INTEGER NOT NULL DEFAULT 1,
						is_online INTEGER NOT NULL DEFAULT 0,
						last_seen DATETIME,
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_fleet_devices_active ON fleet_devices(is_active)`,
					`CREATE INDEX IF NOT EXISTS idx_fleet_devices_address ON fleet_devices(address)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
