package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	IdentifierULID     = "ulid"
	IdentifierSequence = "sequence"
)

type Config struct {
	// DBSource selects Postgres. Empty runs on the in-memory store.
	DBSource         string `yaml:"db_source"`
	Port             string `yaml:"server_port"`
	Env              string `yaml:"environment"`
	LogLevel         string `yaml:"log_level"`
	NodeID           int64  `yaml:"node_id"`
	IdentifierSource string `yaml:"identifier_source"`
}

// Load reads CONFIG_FILE when set, then applies environment overrides and
// defaults. NodeID defaults to 1 but an explicit 0 is kept.
func Load() (*Config, error) {
	cfg := &Config{NodeID: 1}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	override(&cfg.DBSource, "DB_SOURCE")
	override(&cfg.Port, "SERVER_PORT")
	override(&cfg.Env, "ENVIRONMENT")
	override(&cfg.LogLevel, "LOG_LEVEL")
	override(&cfg.IdentifierSource, "IDENTIFIER_SOURCE")

	if raw := os.Getenv("NODE_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("NODE_ID must be an integer: %w", err)
		}
		cfg.NodeID = id
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.IdentifierSource == "" {
		cfg.IdentifierSource = IdentifierULID
	}

	switch cfg.IdentifierSource {
	case IdentifierULID:
	case IdentifierSequence:
		if cfg.DBSource == "" {
			return nil, fmt.Errorf("IDENTIFIER_SOURCE=sequence requires DB_SOURCE")
		}
	default:
		return nil, fmt.Errorf("unknown IDENTIFIER_SOURCE %q", cfg.IdentifierSource)
	}
	if cfg.NodeID < 0 || cfg.NodeID > 1023 {
		return nil, fmt.Errorf("NODE_ID must be between 0 and 1023, got %d", cfg.NodeID)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
