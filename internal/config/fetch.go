package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvFetchTimeout      = "HARVEST_FETCH_TIMEOUT"
	EnvFetchMaxBodyBytes = "HARVEST_FETCH_MAX_BODY_BYTES"
	EnvFetchChainDir     = "HARVEST_FETCH_CHAIN_DIR"
)

// FetchConfig holds retrieval parameters.
type FetchConfig struct {
	Timeout      string `toml:"timeout"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
	// ChainDir, when set, persists escalated certificate chains as
	// per-host PEM bundles for out-of-band inspection.
	ChainDir string `toml:"chain_dir"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *FetchConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *FetchConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *FetchConfig) Merge(overlay *FetchConfig) {
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.MaxBodyBytes != 0 {
		c.MaxBodyBytes = overlay.MaxBodyBytes
	}
	if overlay.ChainDir != "" {
		c.ChainDir = overlay.ChainDir
	}
}

func (c *FetchConfig) loadDefaults() {
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 100 << 20
	}
}

func (c *FetchConfig) loadEnv() {
	if v := os.Getenv(EnvFetchTimeout); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv(EnvFetchMaxBodyBytes); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxBodyBytes = n
		}
	}
	if v := os.Getenv(EnvFetchChainDir); v != "" {
		c.ChainDir = v
	}
}

func (c *FetchConfig) validate() error {
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("invalid max_body_bytes: %d", c.MaxBodyBytes)
	}
	return nil
}
