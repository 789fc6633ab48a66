package metrics

import "time"

// Config holds metrics plugin settings.
type Config struct {
	// RetentionPeriod bounds how long points are kept.
	RetentionPeriod time.Duration `mapstructure:"retention_period"`
	// MaintenanceInterval is how often the retention sweep runs.
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// DefaultConfig returns metrics defaults: 30 days of retention, swept hourly.
func DefaultConfig() Config {
	return Config{
		RetentionPeriod:     720 * time.Hour,
		MaintenanceInterval: time.Hour,
	}
}
