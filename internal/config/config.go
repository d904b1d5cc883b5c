// ABOUTME: Configuration loading and parsing for forge-hub.
// ABOUTME: YAML with environment variable expansion, duration parsing, and validation.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete forge-hub configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Agents   AgentsConfig   `yaml:"agents"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds listener configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the SQLite path.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AgentsConfig names the well-known agents and tunes delegation timing.
type AgentsConfig struct {
	UI           string `yaml:"ui"`
	Builder      string `yaml:"builder"`
	DelegateMode string `yaml:"delegate_mode"` // "router" (default) or "http"
	DelegateURL  string `yaml:"delegate_url"`  // worker endpoint, http mode only

	DelegateTimeout  time.Duration `yaml:"-"`
	ProgressInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	DelegateTimeoutRaw  string `yaml:"delegate_timeout"`
	ProgressIntervalRaw string `yaml:"progress_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from path. Environment variables in the
// format ${VAR_NAME} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Agents.UI == "" {
		c.Agents.UI = "ui"
	}
	if c.Agents.Builder == "" {
		c.Agents.Builder = "builder"
	}
	if c.Agents.DelegateMode == "" {
		c.Agents.DelegateMode = "router"
	}
	if c.Agents.DelegateTimeout == 0 {
		c.Agents.DelegateTimeout = 2 * time.Minute
	}
	if c.Agents.ProgressInterval == 0 {
		c.Agents.ProgressInterval = 2 * time.Second
	}
}

// Validate checks that required fields are present and consistent.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Agents.DelegateMode {
	case "router":
	case "http":
		if c.Agents.DelegateURL == "" {
			return fmt.Errorf("agents.delegate_url is required when delegate_mode is http")
		}
	default:
		return fmt.Errorf("agents.delegate_mode must be \"router\" or \"http\", got %q", c.Agents.DelegateMode)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agents.DelegateTimeoutRaw != "" {
		cfg.Agents.DelegateTimeout, err = time.ParseDuration(cfg.Agents.DelegateTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing delegate_timeout %q: %w", cfg.Agents.DelegateTimeoutRaw, err)
		}
	}

	if cfg.Agents.ProgressIntervalRaw != "" {
		cfg.Agents.ProgressInterval, err = time.ParseDuration(cfg.Agents.ProgressIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing progress_interval %q: %w", cfg.Agents.ProgressIntervalRaw, err)
		}
	}

	return nil
}
