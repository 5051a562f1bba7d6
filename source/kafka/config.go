package kafka

import (
	"scriptpipe/internal/config"
)

// EnvPrefix overlays the driver config, e.g. SCRIPTPIPE_KAFKA_SOURCE__BROKERS.
const EnvPrefix = "SCRIPTPIPE_KAFKA_SOURCE__"

type Config struct {
	Brokers  []string `koanf:"brokers"`
	Topics   []string `koanf:"topics"`
	ClientID string   `koanf:"client_id"`
	Version  string   `koanf:"version"`
	TLSEn    bool     `koanf:"tls_enabled"`
	SASLUser string   `koanf:"sasl_user"`
	SASLPass string   `koanf:"sasl_pass"`

	// StartFrom is "oldest" (default) or an explicit offset applied to every
	// partition; replay always ends at the high-water mark seen at start.
	StartFrom string `koanf:"start_from"`
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// LoadConfig merges YAML/TOML (if present) with env-vars
// (prefix `SCRIPTPIPE_KAFKA_SOURCE__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.LoadDriver(path, EnvPrefix, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func applyDefaults(c *Config) {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.Version == "" {
		c.Version = "2.8.0"
	}
	if c.ClientID == "" {
		c.ClientID = "scriptpipe"
	}
	if c.StartFrom == "" {
		c.StartFrom = "oldest"
	}
}
