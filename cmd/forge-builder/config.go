// ABOUTME: Configuration loading for the forge-builder worker agent
// ABOUTME: Loads TOML config with environment variable expansion

package main

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Hub     HubConfig     `toml:"hub"`
	Agent   AgentConfig   `toml:"agent"`
	Logging LoggingConfig `toml:"logging"`
}

type HubConfig struct {
	URL string `toml:"url"`
}

type AgentConfig struct {
	Name        string `toml:"name"`
	MinBackoff  string `toml:"min_backoff"`
	MaxBackoff  string `toml:"max_backoff"`
	MaxAttempts int    `toml:"max_attempts"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Agent.Name == "" {
		c.Agent.Name = "builder"
	}
	if c.Agent.MinBackoff == "" {
		c.Agent.MinBackoff = "1s"
	}
	if c.Agent.MaxBackoff == "" {
		c.Agent.MaxBackoff = "30s"
	}
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Hub.URL == "" {
		return fmt.Errorf("hub.url is required")
	}
	u, err := url.Parse(c.Hub.URL)
	if err != nil {
		return fmt.Errorf("hub.url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("hub.url must use ws or wss scheme")
	}
	if _, err := c.Backoffs(); err != nil {
		return err
	}
	return nil
}

// Backoffs parses the backoff durations from the raw config strings.
func (c *Config) Backoffs() (minMax [2]time.Duration, err error) {
	minMax[0], err = time.ParseDuration(c.Agent.MinBackoff)
	if err != nil {
		return minMax, fmt.Errorf("parsing agent.min_backoff %q: %w", c.Agent.MinBackoff, err)
	}
	minMax[1], err = time.ParseDuration(c.Agent.MaxBackoff)
	if err != nil {
		return minMax, fmt.Errorf("parsing agent.max_backoff %q: %w", c.Agent.MaxBackoff, err)
	}
	return minMax, nil
}
