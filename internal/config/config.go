package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents configuration data for the mirror daemon.
type Config struct {
	DataDirectory   string       `yaml:"data_directory"`
	SyncIntervalSec int          `yaml:"sync_interval_seconds"`
	Health          Health       `yaml:"health"`
	Connections     []Connection `yaml:"connections"`
}

// Health tunes the monitoring cycle.
type Health struct {
	CycleSeconds int   `yaml:"cycle_seconds"`
	CacheSeconds int   `yaml:"cache_seconds"`
	Concurrency  int64 `yaml:"concurrency"`
}

// Connection seeds a dashboard source at startup. Credentials given here
// are moved into the secret store on boot; they are never read back from
// this file afterwards.
type Connection struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	BaseURL     string `yaml:"base_url"`
	SyncEnabled *bool  `yaml:"sync_enabled"`
	TrustTLS    bool   `yaml:"trust_tls"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		DataDirectory:   filepath.Join(".dist", "data"),
		SyncIntervalSec: 300,
		Health: Health{
			CycleSeconds: 60,
			CacheSeconds: 55,
			Concurrency:  5,
		},
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = DefaultConfig().DataDirectory
	}
	if cfg.SyncIntervalSec <= 0 {
		cfg.SyncIntervalSec = 300
	}
	if cfg.Health.CycleSeconds <= 0 {
		cfg.Health.CycleSeconds = 60
	}
	if cfg.Health.CacheSeconds <= 0 || cfg.Health.CacheSeconds >= cfg.Health.CycleSeconds {
		// The cache interval must stay below the cycle period, otherwise
		// freshly-checked entries would be re-probed every cycle.
		cfg.Health.CacheSeconds = cfg.Health.CycleSeconds - 5
		if cfg.Health.CacheSeconds <= 0 {
			cfg.Health.CacheSeconds = cfg.Health.CycleSeconds
		}
	}
	if cfg.Health.Concurrency <= 0 {
		cfg.Health.Concurrency = 5
	}
	for i, conn := range cfg.Connections {
		if conn.ID == "" {
			return Config{}, fmt.Errorf("connection %d is missing id", i)
		}
		if conn.BaseURL == "" {
			return Config{}, fmt.Errorf("connection %s base_url is required", conn.ID)
		}
		if conn.Name == "" {
			cfg.Connections[i].Name = conn.ID
		}
	}
	return cfg, nil
}
