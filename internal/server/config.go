package server

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/routefleet.db")

	// Plugin defaults
	v.SetDefault("plugins.fleet.enabled", true)
	v.SetDefault("plugins.fleet.default_ssh_port", 22)
	v.SetDefault("plugins.fleet.default_ssh_user", "admin")
	v.SetDefault("plugins.pulse.enabled", true)
	v.SetDefault("plugins.pulse.poll_interval", "60s")
	v.SetDefault("plugins.pulse.probe_timeout", "10s")
	v.SetDefault("plugins.pulse.max_workers", 16)
	v.SetDefault("plugins.runner.enabled", true)
	v.SetDefault("plugins.runner.script_timeout", "30s")
	v.SetDefault("plugins.runner.queue_size", 64)
	v.SetDefault("plugins.runner.workers", 4)
	v.SetDefault("plugins.metrics.enabled", true)
	v.SetDefault("plugins.metrics.retention_period", "720h")
	v.SetDefault("plugins.metrics.maintenance_interval", "1h")
	v.SetDefault("plugins.sms.enabled", true)
	v.SetDefault("plugins.sms.gateway_url", "")
	v.SetDefault("plugins.sms.gateway_timeout", "10s")
	v.SetDefault("plugins.sms.allowed_numbers", []string{})

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("routefleet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/routefleet")
	}

	// Environment variable support: RF_SERVER_PORT=9090
	v.SetEnvPrefix("RF")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
