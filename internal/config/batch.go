package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvBatchConcurrency = "HARVEST_BATCH_CONCURRENCY"
	EnvBatchSeed        = "HARVEST_BATCH_SEED"
	EnvBatchSample      = "HARVEST_BATCH_SAMPLE"
)

// BatchConfig holds dispatch parameters. Seed is a pointer so an
// explicit `seed = 0` survives defaulting and merging.
type BatchConfig struct {
	Concurrency int    `toml:"concurrency"`
	Seed        *int64 `toml:"seed"`
	Sample      int    `toml:"sample"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *BatchConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *BatchConfig) Merge(overlay *BatchConfig) {
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.Seed != nil {
		c.Seed = overlay.Seed
	}
	if overlay.Sample != 0 {
		c.Sample = overlay.Sample
	}
}

func (c *BatchConfig) loadDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = 10
	}
	if c.Seed == nil {
		seed := int64(42)
		c.Seed = &seed
	}
}

func (c *BatchConfig) loadEnv() {
	if v := os.Getenv(EnvBatchConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv(EnvBatchSeed); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed = &n
		}
	}
	if v := os.Getenv(EnvBatchSample); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sample = n
		}
	}
}

func (c *BatchConfig) validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency: %d", c.Concurrency)
	}
	if c.Sample < 0 {
		return fmt.Errorf("invalid sample: %d", c.Sample)
	}
	return nil
}
