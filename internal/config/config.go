// Package config loads harvest configuration from TOML files, an
// environment overlay, and environment variables, in that order.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvHarvestEnv = "HARVEST_ENV"
)

// Config is the root configuration for a harvest run.
type Config struct {
	Metadata MetadataConfig `toml:"metadata"`
	Fetch    FetchConfig    `toml:"fetch"`
	Batch    BatchConfig    `toml:"batch"`
	Output   OutputConfig   `toml:"output"`
}

// Env returns the HARVEST_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvHarvestEnv); env != "" {
		return env
	}
	return "local"
}

// Load reads the base config (if present), applies any environment
// overlay, and finalizes all values. If no config.toml exists,
// defaults and environment variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	c.Metadata.Merge(&overlay.Metadata)
	c.Fetch.Merge(&overlay.Fetch)
	c.Batch.Merge(&overlay.Batch)
	c.Output.Merge(&overlay.Output)
}

// Finalize applies defaults, environment overrides, and validation to
// every sub-config.
func (c *Config) Finalize() error {
	if err := c.Metadata.Finalize(); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if err := c.Fetch.Finalize(); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if err := c.Batch.Finalize(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	if err := c.Output.Finalize(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvHarvestEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
