package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	EnvMetadataBaseURL      = "HARVEST_METADATA_BASE_URL"
	EnvMetadataContactEmail = "HARVEST_METADATA_CONTACT_EMAIL"
	EnvMetadataRestricted   = "HARVEST_METADATA_RESTRICTED_PUBLISHER"
)

// MetadataConfig holds the open-access metadata service parameters.
type MetadataConfig struct {
	BaseURL             string `toml:"base_url"`
	ContactEmail        string `toml:"contact_email"`
	RestrictedPublisher string `toml:"restricted_publisher"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *MetadataConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *MetadataConfig) Merge(overlay *MetadataConfig) {
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.ContactEmail != "" {
		c.ContactEmail = overlay.ContactEmail
	}
	if overlay.RestrictedPublisher != "" {
		c.RestrictedPublisher = overlay.RestrictedPublisher
	}
}

func (c *MetadataConfig) loadDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.unpaywall.org/v2/"
	}
	if c.RestrictedPublisher == "" {
		c.RestrictedPublisher = "Elsevier"
	}
}

func (c *MetadataConfig) loadEnv() {
	if v := os.Getenv(EnvMetadataBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvMetadataContactEmail); v != "" {
		c.ContactEmail = v
	}
	if v := os.Getenv(EnvMetadataRestricted); v != "" {
		c.RestrictedPublisher = v
	}
}

func (c *MetadataConfig) validate() error {
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("invalid base_url: %s", c.BaseURL)
	}
	if c.ContactEmail == "" {
		return fmt.Errorf("contact_email is required")
	}
	return nil
}
