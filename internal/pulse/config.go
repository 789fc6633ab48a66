package pulse

import "time"

// Config holds pulse plugin settings.
type Config struct {
	// PollInterval is how often the whole fleet is probed.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// ProbeTimeout bounds a single liveness probe.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// MaxWorkers caps concurrent probes per cycle.
	MaxWorkers int `mapstructure:"max_workers"`
	// AlertNumbers are SMS destinations for offline alerts.
	AlertNumbers []string `mapstructure:"alert_numbers"`
}

// DefaultConfig returns pulse defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
		MaxWorkers:   16,
	}
}
