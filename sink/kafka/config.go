package kafka

import "scriptpipe/internal/config"

// EnvPrefix overlays the sink config, e.g. SCRIPTPIPE_KAFKA_SINK__TOPIC.
const EnvPrefix = "SCRIPTPIPE_KAFKA_SINK__"

type Config struct {
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	Acks     int16    `koanf:"required_acks"` // 1 or -1; 0 reads as unset
	ClientID string   `koanf:"client_id"`
	Version  string   `koanf:"version"`
}

// LoadConfig reads the sink config file (YAML or TOML) and the env overlay.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.LoadDriver(path, EnvPrefix, &cfg); err != nil {
		return Config{}, err
	}
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.Version == "" {
		cfg.Version = "2.8.0"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "scriptpipe"
	}
	if cfg.Acks == 0 {
		cfg.Acks = int16(1)
	}
	return cfg, nil
}
