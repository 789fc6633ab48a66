package fleet

// FleetConfig holds roster defaults applied to new devices.
type FleetConfig struct {
	DefaultSSHPort int    `mapstructure:"default_ssh_port"`
	DefaultSSHUser string `mapstructure:"default_ssh_user"`
}

func DefaultConfig() FleetConfig {
	return FleetConfig{
		DefaultSSHPort: 22,
		DefaultSSHUser: "admin",
	}
}
