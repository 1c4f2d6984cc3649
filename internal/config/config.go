// ABOUTME: Configuration loading and parsing for the console
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete console configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	History HistoryConfig `yaml:"history"`
	Stream  StreamConfig  `yaml:"stream"`
	Trace   TraceConfig   `yaml:"trace"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig points at the conversation server.
type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	// Token is usually supplied as ${COVEN_TOKEN} in the file.
	Token string `yaml:"token"`
}

// HistoryConfig holds the local ledger location.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// StreamConfig tunes the SSE reconnect behavior.
type StreamConfig struct {
	InitialBackoff time.Duration `yaml:"-"`
	MaxBackoff     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	InitialBackoffRaw string `yaml:"initial_backoff"`
	MaxBackoffRaw     string `yaml:"max_backoff"`
}

// TraceConfig holds presentation settings.
type TraceConfig struct {
	// Locale is a BCP 47 tag for trace labels, e.g. "en" or "zh-Hans".
	Locale string `yaml:"locale"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{BaseURL: "http://localhost:8080"},
		History: HistoryConfig{Path: "console-history.db"},
		Stream: StreamConfig{
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Trace:   TraceConfig{Locale: "en"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.History.Path == "" {
		return fmt.Errorf("history.path is required")
	}
	if c.Stream.InitialBackoff < 0 || c.Stream.MaxBackoff < 0 {
		return fmt.Errorf("stream backoff durations must not be negative")
	}
	if c.Stream.MaxBackoff != 0 && c.Stream.InitialBackoff > c.Stream.MaxBackoff {
		return fmt.Errorf("stream.initial_backoff %s exceeds stream.max_backoff %s",
			c.Stream.InitialBackoff, c.Stream.MaxBackoff)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Stream.InitialBackoffRaw != "" {
		cfg.Stream.InitialBackoff, err = time.ParseDuration(cfg.Stream.InitialBackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing initial_backoff %q: %w", cfg.Stream.InitialBackoffRaw, err)
		}
	}

	if cfg.Stream.MaxBackoffRaw != "" {
		cfg.Stream.MaxBackoff, err = time.ParseDuration(cfg.Stream.MaxBackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing max_backoff %q: %w", cfg.Stream.MaxBackoffRaw, err)
		}
	}

	return nil
}
