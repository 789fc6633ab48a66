package metrics

import (
	"database/sql"

	"github.com/routefleet/routefleet/pkg/plugin"
)

// Migrations returns the schema migrations for this plugin.
func Migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create metric_points table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS metric_points (
						id          INTEGER PRIMARY KEY AUTOINCREMENT,
						measurement TEXT NOT NULL,
						device_id   TEXT NOT NULL,
						field       TEXT NOT NULL,
						value       REAL NOT NULL,
						tags        TEXT,
						ts          TIMESTAMP NOT NULL
					);
					CREATE INDEX IF NOT EXISTS idx_metric_points_lookup
						ON metric_points(measurement, device_id, ts);
					CREATE INDEX IF NOT EXISTS idx_metric_points_ts
						ON metric_points(ts);
				`)
				return err
			},
		},
	}
}
