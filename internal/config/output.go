package config

import (
	"fmt"
	"os"
)

const (
	EnvOutputEmails     = "HARVEST_OUTPUT_EMAILS"
	EnvOutputRestricted = "HARVEST_OUTPUT_RESTRICTED"
)

// OutputConfig holds the record stream destinations.
type OutputConfig struct {
	EmailsPath     string `toml:"emails_path"`
	RestrictedPath string `toml:"restricted_path"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *OutputConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *OutputConfig) Merge(overlay *OutputConfig) {
	if overlay.EmailsPath != "" {
		c.EmailsPath = overlay.EmailsPath
	}
	if overlay.RestrictedPath != "" {
		c.RestrictedPath = overlay.RestrictedPath
	}
}

func (c *OutputConfig) loadDefaults() {
	if c.EmailsPath == "" {
		c.EmailsPath = "emails_coletados.csv"
	}
	if c.RestrictedPath == "" {
		c.RestrictedPath = "urls_elsevier.csv"
	}
}

func (c *OutputConfig) loadEnv() {
	if v := os.Getenv(EnvOutputEmails); v != "" {
		c.EmailsPath = v
	}
	if v := os.Getenv(EnvOutputRestricted); v != "" {
		c.RestrictedPath = v
	}
}

func (c *OutputConfig) validate() error {
	if c.EmailsPath == c.RestrictedPath {
		return fmt.Errorf("emails_path and restricted_path must differ: %s", c.EmailsPath)
	}
	return nil
}
