package config

import "time"

// LoginServer holds all configuration for the login server.
type LoginServer struct {
	// Network
	BindAddress  string `yaml:"bind_address"`
	OverrideAddr string `yaml:"override_addr"` // public address of this host

	// Per-variant listen ports. The listener a client connects to decides
	// its protocol variant, so these stay distinct.
	PortGCJP10 int `yaml:"port_gc_jp10"`
	PortGCJP11 int `yaml:"port_gc_jp11"`
	PortGC     int `yaml:"port_gc"`
	PortDC     int `yaml:"port_dc"` // DC v1/v2 and EU GameCube 60Hz
	PortGCEU50 int `yaml:"port_gc_eu50"`
	PortPC     int `yaml:"port_pc"`

	// Web counter port: on accept, writes the online count and closes.
	PortWeb int `yaml:"port_web"`

	// Sessions idle longer than this are disconnected.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// Quest directory, scanned as <variant>-<lang>/quests.xml.
	QuestsDir string `yaml:"quests_dir"`

	// Logging: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// Database
	Database DatabaseConfig `yaml:"database"`
}

// DefaultLoginServer returns LoginServer config with the stock port layout.
func DefaultLoginServer() LoginServer {
	return LoginServer{
		BindAddress: "0.0.0.0",
		PortGCJP10:  9000,
		PortGCJP11:  9001,
		PortGC:      9100,
		PortDC:      9200,
		PortGCEU50:  9201,
		PortPC:      9300,
		PortWeb:     10003,
		IdleTimeout: 2 * time.Minute,
		LogLevel:    "info",
		Database:    defaultDatabase(),
	}
}

// LoadLoginServer loads login server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadLoginServer(path string) (LoginServer, error) {
	cfg := DefaultLoginServer()
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
