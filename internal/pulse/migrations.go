package pulse

import (
	"database/sql"

	"github.com/routefleet/routefleet/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create pulse_alerts table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS pulse_alerts (
						id           TEXT PRIMARY KEY,
						device_id    TEXT NOT NULL,
						category     TEXT NOT NULL,
						severity     TEXT NOT NULL,
						message      TEXT NOT NULL,
						triggered_at TIMESTAMP NOT NULL,
						resolved_at  TIMESTAMP
					);
					CREATE INDEX IF NOT EXISTS idx_pulse_alerts_device
						ON pulse_alerts(device_id, triggered_at);
					CREATE INDEX IF NOT EXISTS idx_pulse_alerts_active
						ON pulse_alerts(resolved_at) WHERE resolved_at IS NULL;
				`)
				return err
			},
		},
	}
}
