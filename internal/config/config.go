// Package config holds the chat server configuration.
//
// Values come from DefaultConfig, are optionally overlaid by a YAML file
// (Load) and finally by command-line flags in cmd/server.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChatLog configures the audit log file sink.
type ChatLog struct {
	Path       string `yaml:"path"`         // empty disables the file sink
	MaxSizeMB  int    `yaml:"max_size_mb"`  // rotate after this many megabytes
	MaxBackups int    `yaml:"max_backups"`  // rotated files to keep
	MaxAgeDays int    `yaml:"max_age_days"` // days to keep rotated files
	Compress   bool   `yaml:"compress"`     // gzip rotated files
}

// Log configures operator logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level server configuration.
type Config struct {
	Addr              string  `yaml:"addr"`
	MetricsAddr       string  `yaml:"metrics_addr"` // empty disables /metrics
	OutboundQueue     int     `yaml:"outbound_queue"`
	MaxUsernameLength int     `yaml:"max_username_length"`
	ChatLog           ChatLog `yaml:"chat_log"`
	Log               Log     `yaml:"log"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:              ":12345",
		MetricsAddr:       ":9090",
		OutboundQueue:     32,
		MaxUsernameLength: 32,
		ChatLog: ChatLog{
			Path:       "chat_log.txt",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML file on top of DefaultConfig. Keys missing from the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML data into cfg and validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("config: addr must not be empty")
	}
	if c.OutboundQueue <= 0 {
		return fmt.Errorf("config: outbound_queue must be positive, got %d", c.OutboundQueue)
	}
	if c.MaxUsernameLength <= 0 {
		return fmt.Errorf("config: max_username_length must be positive, got %d", c.MaxUsernameLength)
	}
	if c.ChatLog.MaxSizeMB < 0 || c.ChatLog.MaxBackups < 0 || c.ChatLog.MaxAgeDays < 0 {
		return fmt.Errorf("config: chat_log limits must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q (valid: json, text)", c.Log.Format)
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}
