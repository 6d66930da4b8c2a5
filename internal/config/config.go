// Package config provides client configuration loaded from environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds callables-client configuration.
type Config struct {
	// Registry server base URL and discovery document path.
	RegistryBaseURL string `envconfig:"REGISTRY_BASE_URL" default:"http://127.0.0.1:8000"`
	DiscoveryPath   string `envconfig:"DISCOVERY_PATH" default:"/functions"`

	// COMMS: lifecycle event mirror. Empty COMMS_URL disables the mirror.
	CommsURL  string `envconfig:"COMMS_URL"`
	CommsName string `envconfig:"SERVICE_NAME" default:"callables-client"`
	// LifecycleSubject overrides the global lifecycle subject (empty = default).
	LifecycleSubject string `envconfig:"LIFECYCLE_SUBJECT"`

	// Best-effort result cache.
	CacheEnabled     bool   `envconfig:"CACHE_ENABLED" default:"false"`
	CacheDatabaseURL string `envconfig:"CACHE_DATABASE_URL"`

	// Timeouts
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForCall checks required config for commands that hit the registry.
func (c *Config) ValidateForCall() error {
	if c.RegistryBaseURL == "" {
		return fmt.Errorf("%s - REGISTRY_BASE_URL is required", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForCache checks required config when the result cache is enabled.
func (c *Config) ValidateForCache() error {
	if c.CacheEnabled && c.CacheDatabaseURL == "" {
		return fmt.Errorf("%s - CACHE_DATABASE_URL is required when CACHE_ENABLED", logPrefix)
	}
	return nil
}

// ValidateForWatch checks required config for the lifecycle watch command.
func (c *Config) ValidateForWatch() error {
	if c.CommsURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for watch", logPrefix)
	}
	return nil
}
