package runner

import (
	"database/sql"

	"github.com/routefleet/routefleet/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create runner_executions table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS runner_executions (
						id                TEXT PRIMARY KEY,
						device_id         TEXT NOT NULL,
						script_id         TEXT NOT NULL,
						triggered_by      TEXT NOT NULL DEFAULT 'ui',
						triggered_by_user TEXT,
						status            TEXT NOT NULL DEFAULT 'pending',
						stdout            TEXT,
						stderr            TEXT,
						exit_status       INTEGER,
						duration_ms       INTEGER,
						reply_to          TEXT,
						created_at        TIMESTAMP NOT NULL,
						started_at        TIMESTAMP,
						finished_at       TIMESTAMP
					);
					CREATE INDEX IF NOT EXISTS idx_runner_executions_device
						ON runner_executions(device_id, created_at);
					CREATE INDEX IF NOT EXISTS idx_runner_executions_status
						ON runner_executions(status);
				`)
				return err
			},
		},
	}
}
