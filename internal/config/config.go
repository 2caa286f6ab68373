// Package config loads the terminal's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dukahub/dukasync/internal/mode"
)

// Config is the full terminal configuration.
type Config struct {
	StoreID   string       `yaml:"store_id"`
	StorePath string       `yaml:"store_path"`
	VATRate   float64      `yaml:"vat_rate"`
	Remote    RemoteConfig `yaml:"remote"`
	Mode      ModeConfig   `yaml:"mode"`
	ETIMS     ETIMSConfig  `yaml:"etims"`
}

// RemoteConfig selects and parameterizes the backend transport.
type RemoteConfig struct {
	Kind           string `yaml:"kind"` // "http" | "mysql"
	BaseURL        string `yaml:"base_url,omitempty"`
	APIKey         string `yaml:"api_key,omitempty"`
	DSN            string `yaml:"dsn,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// ModeConfig carries the user's mode preference and timing knobs.
type ModeConfig struct {
	Preference             string `yaml:"preference"` // "online" | "offline" | "auto"
	SwitchThresholdSeconds int    `yaml:"switch_threshold_seconds"`
	SyncIntervalMS         int    `yaml:"sync_interval_ms"`
}

// ETIMSConfig parameterizes the tax submission relay.
type ETIMSConfig struct {
	ExchangeDir string `yaml:"exchange_dir"`
}

// Default returns a configuration with sensible defaults for a single
// terminal.
func Default() *Config {
	return &Config{
		StorePath: "dukasync.db",
		VATRate:   0.16,
		Remote: RemoteConfig{
			Kind:           "http",
			TimeoutSeconds: 30,
		},
		Mode: ModeConfig{
			Preference:             string(mode.PreferenceAuto),
			SwitchThresholdSeconds: 30,
			SyncIntervalMS:         60_000,
		},
		ETIMS: ETIMSConfig{
			ExchangeDir: ".",
		},
	}
}

// Load reads a YAML configuration file, applying defaults for absent
// fields and validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.StoreID == "" {
		return fmt.Errorf("config: store_id is required")
	}
	switch mode.Preference(c.Mode.Preference) {
	case mode.PreferenceOnline, mode.PreferenceOffline, mode.PreferenceAuto:
	default:
		return fmt.Errorf("config: invalid mode preference %q", c.Mode.Preference)
	}
	switch c.Remote.Kind {
	case "http":
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("config: remote.base_url is required for the http transport")
		}
	case "mysql":
		if c.Remote.DSN == "" {
			return fmt.Errorf("config: remote.dsn is required for the mysql transport")
		}
	default:
		return fmt.Errorf("config: invalid remote kind %q", c.Remote.Kind)
	}
	if c.VATRate < 0 || c.VATRate >= 1 {
		return fmt.Errorf("config: vat_rate %v out of range", c.VATRate)
	}
	if c.Mode.SyncIntervalMS <= 0 {
		return fmt.Errorf("config: sync_interval_ms must be positive")
	}
	return nil
}

// ModeSettings converts the config timing fields into mode settings.
func (c *Config) ModeSettings() mode.Settings {
	return mode.Settings{
		Preference:      mode.Preference(c.Mode.Preference),
		SwitchThreshold: time.Duration(c.Mode.SwitchThresholdSeconds) * time.Second,
		SyncInterval:    time.Duration(c.Mode.SyncIntervalMS) * time.Millisecond,
	}
}

// RemoteTimeout returns the HTTP transport timeout.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}
