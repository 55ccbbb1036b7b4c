package config

import "time"

// ShipServer holds all configuration for a ship daemon.
type ShipServer struct {
	// Identity
	Name     string `yaml:"name"`      // up to 12 characters on the wire
	KeyIndex int    `yaml:"key_index"` // row in ship_data holding the shared key
	KeyFile  string `yaml:"key_file"`  // 128-byte shared key material
	MenuCode string `yaml:"menu_code"` // "" for the main menu, or two letters

	// Network
	BindAddress  string `yaml:"bind_address"`
	BasePort     int    `yaml:"base_port"` // per-variant ports are BasePort+variant
	ExternalAddr string `yaml:"external_addr"`
	InternalAddr string `yaml:"internal_addr"`

	// Shipgate connection
	ShipgateAddr string        `yaml:"shipgate_addr"`
	PingInterval time.Duration `yaml:"ping_interval"`

	// Layout
	Blocks          int `yaml:"blocks"`
	LobbiesPerBlock int `yaml:"lobbies_per_block"`

	// Policy
	GMOnly     bool   `yaml:"gm_only"`
	Proxy      bool   `yaml:"proxy"` // excluded from guild-search/mail fan-out
	LimitsFile string `yaml:"limits_file"`
	QuestsDir  string `yaml:"quests_dir"`

	// Sessions idle longer than this are disconnected.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// Logging: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// DefaultShipServer returns ShipServer config with sensible defaults.
func DefaultShipServer() ShipServer {
	return ShipServer{
		Name:            "Ship",
		KeyIndex:        1,
		BindAddress:     "0.0.0.0",
		BasePort:        12000,
		ShipgateAddr:    "127.0.0.1:3455",
		PingInterval:    30 * time.Second,
		Blocks:          2,
		LobbiesPerBlock: 15,
		IdleTimeout:     2 * time.Minute,
		LogLevel:        "info",
	}
}

// LoadShipServer loads ship config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadShipServer(path string) (ShipServer, error) {
	cfg := DefaultShipServer()
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
