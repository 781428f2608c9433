package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultShell         = "/bin/sh"
	defaultTimeout       = 60 * time.Second
	defaultMaxOutputSize = 10 * 1024 * 1024
)

// Default returns the settings used when no configuration file is given
func Default() *Config {
	cfg := &Config{}
	_ = cfg.applyDefaults()
	return cfg
}

// LoadConfig loads and validates a YAML configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional fields
func (c *Config) applyDefaults() error {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Metadata.Name == "" {
		c.Metadata.Name = "cmdbridge"
	}
	if c.Metadata.Version == "" {
		c.Metadata.Version = "1.0.0"
	}

	if c.Settings.Shell == "" {
		c.Settings.Shell = defaultShell
	}
	if c.Settings.Timeout == 0 {
		c.Settings.Timeout = defaultTimeout
	}

	if c.Security.MaxOutputSize == 0 {
		c.Security.MaxOutputSize = defaultMaxOutputSize
	}

	if c.Logging.Command == "" {
		c.Logging.Command = "gcloud"
	}
	if c.Logging.BenignStderr == "" {
		c.Logging.BenignStderr = "WARNING"
	}
	if c.Logging.Timeout == 0 {
		c.Logging.Timeout = c.Settings.Timeout
	}

	if c.Postgres.Command == "" {
		c.Postgres.Command = "psql"
	}
	if c.Postgres.BenignStderr == "" {
		c.Postgres.BenignStderr = "NOTICE:"
	}
	if c.Postgres.Timeout == 0 {
		c.Postgres.Timeout = c.Settings.Timeout
	}

	return nil
}

// validate checks that the configuration is valid
func (c *Config) validate() error {
	if !c.Logging.IsEnabled() && !c.Postgres.IsEnabled() {
		return fmt.Errorf("at least one tool must be enabled")
	}

	if c.Settings.Timeout < 0 || c.Logging.Timeout < 0 || c.Postgres.Timeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if c.Security.MaxOutputSize < 0 {
		return fmt.Errorf("security.max_output_size must not be negative")
	}

	for name, tool := range map[string]Tool{"logging_tool": c.Logging, "postgres_tool": c.Postgres} {
		if !tool.IsEnabled() {
			continue
		}
		if IsCommandBlocked(tool.Command, c.Security.BlockedCommands) {
			return fmt.Errorf("%s: command %s is blocked", name, tool.Command)
		}
	}

	return nil
}
