package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const SupportedSchema = "v1"

// DefaultSampleSize is the number of lines shown to the generator when
// pipeline.sample_size is not set.
const DefaultSampleSize = 20

// EnvPrefix selects the environment overlay, e.g.
// SCRIPTPIPE__GENERATOR__MODEL=gpt-4o overrides generator.model.
const EnvPrefix = "SCRIPTPIPE__"

type LogConfig struct {
	Level string `koanf:"level" yaml:"level"`
	JSON  bool   `koanf:"json" yaml:"json"`
}

type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"` // empty = disabled
}

type CacheConfig struct {
	Dir string `koanf:"dir" yaml:"dir"`
}

type GeneratorConfig struct {
	Provider    string        `koanf:"provider" yaml:"provider"` // openai|anthropic
	Model       string        `koanf:"model" yaml:"model"`
	BaseURL     string        `koanf:"base_url" yaml:"base_url"`
	TokenFile   string        `koanf:"token_file" yaml:"token_file"`
	Temperature float64       `koanf:"temperature" yaml:"temperature"`
	MaxTokens   int64         `koanf:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout" yaml:"timeout"`
}

type PipelineConfig struct {
	SampleSize int `koanf:"sample_size" yaml:"sample_size"`
	BatchSize  int `koanf:"batch_size" yaml:"batch_size"`
	Capacity   int `koanf:"capacity" yaml:"capacity"` // batches in flight
}

type SourceConfig struct {
	Kind   string `koanf:"kind" yaml:"kind"`     // stdin|kafka
	Config string `koanf:"config" yaml:"config"` // driver config file
}

type SinkConfig struct {
	Kind    string `koanf:"kind" yaml:"kind"` // stdout|kafka
	Config  string `koanf:"config" yaml:"config"`
	FlushMS int    `koanf:"flush_ms" yaml:"flush_ms"`
}

type Config struct {
	SchemaVersion string          `koanf:"schema_version" yaml:"schema_version"`
	Log           LogConfig       `koanf:"log" yaml:"log"`
	Metrics       MetricsConfig   `koanf:"metrics" yaml:"metrics"`
	Cache         CacheConfig     `koanf:"cache" yaml:"cache"`
	Generator     GeneratorConfig `koanf:"generator" yaml:"generator"`
	Pipeline      PipelineConfig  `koanf:"pipeline" yaml:"pipeline"`
	Source        SourceConfig    `koanf:"source" yaml:"source"`
	Sink          SinkConfig      `koanf:"sink" yaml:"sink"`
}

// Load merges the config file at path (if present) with the environment
// overlay and fills defaults. A missing file is not an error; every key
// has a usable default.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return Config{}, fmt.Errorf("config schema_version %q not supported (want %q)", sv, SupportedSchema)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey(EnvPrefix)), nil); err != nil {
		return Config{}, err
	}

	// zero is a valid sample size, so its default is set before decoding
	// rather than filled in afterwards
	cfg := Config{Pipeline: PipelineConfig{SampleSize: DefaultSampleSize}}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	resolveRelative(&cfg, path)
	return cfg, cfg.Validate()
}

// LoadDriver is the loader shared by driver configs (Kafka source and sink):
// optional YAML/TOML file, schema check, then env overlay under prefix.
func LoadDriver(path, prefix string, out any) error {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return fmt.Errorf("%s schema_version %q not supported (want %s)", filepath.Base(path), sv, SupportedSchema)
	}
	if err := k.Load(env.Provider(prefix, ".", envKey(prefix)), nil); err != nil {
		return err
	}
	return k.Unmarshal("", out)
}

// envKey maps PREFIX__SECTION__KEY to section.key.
func envKey(prefix string) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return TOML()
	}
	return yaml.Parser()
}

func applyDefaults(c *Config) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "scripts"
	}
	g := &c.Generator
	if g.Provider == "" {
		g.Provider = "openai"
	}
	if g.TokenFile == "" {
		g.TokenFile = ".token"
	}
	if g.Temperature == 0 {
		g.Temperature = 0.2
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = 2048
	}
	if g.Timeout == 0 {
		g.Timeout = 60 * time.Second
	}
	p := &c.Pipeline
	if p.BatchSize == 0 {
		p.BatchSize = 1000
	}
	if p.Capacity == 0 {
		p.Capacity = 10
	}
	if c.Source.Kind == "" {
		c.Source.Kind = "stdin"
	}
	if c.Sink.Kind == "" {
		c.Sink.Kind = "stdout"
	}
}

// resolveRelative anchors driver config paths at the config file's
// directory, the same way the file itself was addressed.
func resolveRelative(c *Config, path string) {
	if path == "" {
		return
	}
	base := filepath.Dir(path)
	for _, p := range []*string{&c.Source.Config, &c.Sink.Config} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

func (c Config) Validate() error {
	switch c.Generator.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("generator.provider %q not supported (want openai|anthropic)", c.Generator.Provider)
	}
	if c.Pipeline.SampleSize < 0 {
		return fmt.Errorf("pipeline.sample_size must be >= 0, got %d", c.Pipeline.SampleSize)
	}
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline.batch_size must be >= 1, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.Capacity < 1 {
		return fmt.Errorf("pipeline.capacity must be >= 1, got %d", c.Pipeline.Capacity)
	}
	return nil
}

// YAML renders the effective configuration.
func (c Config) YAML() ([]byte, error) {
	return yamlv3.Marshal(c)
}
