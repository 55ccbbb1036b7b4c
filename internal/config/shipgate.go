package config

import "time"

// Shipgate holds all configuration for the hub daemon.
type Shipgate struct {
	// Network
	BindAddress  string `yaml:"bind_address"`
	Port         int    `yaml:"port"`
	OverrideAddr string `yaml:"override_addr"` // public address of this host

	// Ships silent longer than Timeout are pinged; silent longer than
	// 2*Timeout are dropped.
	Timeout time.Duration `yaml:"timeout"`

	// Logging: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// Database
	Database DatabaseConfig `yaml:"database"`
}

// DefaultShipgate returns Shipgate config with sensible defaults.
func DefaultShipgate() Shipgate {
	return Shipgate{
		BindAddress: "0.0.0.0",
		Port:        3455,
		Timeout:     60 * time.Second,
		LogLevel:    "info",
		Database:    defaultDatabase(),
	}
}

// LoadShipgate loads shipgate config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadShipgate(path string) (Shipgate, error) {
	cfg := DefaultShipgate()
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
