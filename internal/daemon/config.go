// Package daemon wires the StepCoin backend together: configuration,
// the HTTP server lifecycle, and the background step poller.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from TOML.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Auth    AuthConfig    `toml:"auth"`
	Poller  PollerConfig  `toml:"poller"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// Addr returns the listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig controls where the SQLite database lives.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// AuthConfig controls session tokens.
type AuthConfig struct {
	// Secret signs session tokens. Empty means a random secret per start,
	// which invalidates sessions on restart.
	Secret   string `toml:"secret"`
	TokenTTL string `toml:"token_ttl"`
}

// TokenTTLDuration parses the TTL, falling back to 24h.
func (c AuthConfig) TokenTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.TokenTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// PollerConfig controls the background step poller.
type PollerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"`
	// SourceURL is the external step provider. Empty selects the
	// simulated source.
	SourceURL string `toml:"source_url"`
}

// IntervalDuration parses the poll interval, falling back to 5m.
func (c PollerConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8514,
			MetricsEnabled: true,
		},
		Storage: StorageConfig{
			Dir: defaultStorageDir(),
		},
		Auth: AuthConfig{
			TokenTTL: "24h",
		},
		Poller: PollerConfig{
			Enabled:  false,
			Interval: "5m",
		},
	}
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stepcoin"
	}
	return filepath.Join(home, ".stepcoin")
}

// Load reads the config file at path, layering it over defaults. A missing
// file is not an error: defaults apply.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
