package runner

import "time"

// Config holds runner plugin settings.
type Config struct {
	// ScriptTimeout bounds each remote command, connection setup included.
	ScriptTimeout time.Duration `mapstructure:"script_timeout"`
	// QueueSize is the pending execution buffer; submissions past it fail.
	QueueSize int `mapstructure:"queue_size"`
	// Workers is the number of concurrent executions.
	Workers int `mapstructure:"workers"`
}

// DefaultConfig returns runner defaults.
func DefaultConfig() Config {
	return Config{
		ScriptTimeout: 30 * time.Second,
		QueueSize:     64,
		Workers:       4,
	}
}
