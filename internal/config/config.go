package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Source struct {
		Root string `yaml:"root" toml:"root"`
	} `yaml:"source" toml:"source"`
	Output struct {
		Dir string `yaml:"dir" toml:"dir"`
	} `yaml:"output" toml:"output"`
	Debug struct {
		Dump    bool   `yaml:"dump" toml:"dump"`
		DumpDir string `yaml:"dump_dir" toml:"dump_dir"`
	} `yaml:"debug" toml:"debug"`
	Audit struct {
		DB string `yaml:"db" toml:"db"`
	} `yaml:"audit" toml:"audit"`
	Log struct {
		Level string `yaml:"level" toml:"level"` // debug, info, warn, error
	} `yaml:"log" toml:"log"`
	Trace struct {
		// Endpoint is an OTLP/HTTP collector URL. Empty disables tracing.
		Endpoint string `yaml:"endpoint" toml:"endpoint"`
	} `yaml:"trace" toml:"trace"`
	Workers int    `yaml:"workers" toml:"workers"`
	Rules   []Rule `yaml:"rules" toml:"rules"`
}

// Rule is one declarative rewrite. Which fields matter depends on Action.
type Rule struct {
	Provider   string `yaml:"provider" toml:"provider"`
	Label      string `yaml:"label" toml:"label"`
	Unit       string `yaml:"unit" toml:"unit"`
	Action     string `yaml:"action" toml:"action"`
	Member     string `yaml:"member" toml:"member"`
	Signature  string `yaml:"signature" toml:"signature"`
	Descriptor string `yaml:"descriptor" toml:"descriptor"`
	Value      string `yaml:"value" toml:"value"`
	To         string `yaml:"to" toml:"to"`
}

// Default returns a configuration usable without any file.
func Default() *Config {
	var cfg Config
	cfg.Source.Root = "."
	cfg.Output.Dir = "out"
	cfg.Debug.DumpDir = filepath.Join("out", "dump")
	cfg.Audit.DB = "weaver.db"
	cfg.Log.Level = "info"
	cfg.Workers = 4
	return &cfg
}

// LoadConfig reads path (YAML, or TOML when it ends in .toml) over the
// defaults and applies WEAVER_* environment overrides. An empty path skips
// the file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load config file
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			if _, err := toml.Decode(string(file), cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// 3. Override with Environment Variables if present
	if v := os.Getenv("WEAVER_SOURCE_DIR"); v != "" {
		cfg.Source.Root = v
	}
	if v := os.Getenv("WEAVER_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("WEAVER_DUMP_DIR"); v != "" {
		cfg.Debug.DumpDir = v
	}
	if v := os.Getenv("WEAVER_DEBUG_DUMP"); v != "" {
		dump, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("WEAVER_DEBUG_DUMP: %w", err)
		}
		cfg.Debug.Dump = dump
	}
	if v := os.Getenv("WEAVER_AUDIT_DB"); v != "" {
		cfg.Audit.DB = v
	}
	if v := os.Getenv("WEAVER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("WEAVER_OTEL_ENDPOINT"); v != "" {
		cfg.Trace.Endpoint = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values a run depends on.
func (c *Config) Validate() error {
	if c.Source.Root == "" {
		return fmt.Errorf("source.root is required")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Debug.Dump && c.Debug.DumpDir == "" {
		return fmt.Errorf("debug.dump_dir is required when debug.dump is set")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	for i, r := range c.Rules {
		if r.Provider == "" || r.Unit == "" || r.Action == "" {
			return fmt.Errorf("rules[%d]: provider, unit and action are required", i)
		}
	}
	return nil
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
