// Package config loads bandit-sync configuration from a YAML file with
// environment overrides (BANDIT_SYNC_*).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	GatewayURL string `mapstructure:"gateway_url"`
	Token      string `mapstructure:"token"`

	// DataDir holds the local database, logs, and the import inbox.
	DataDir string `mapstructure:"data_dir"`

	// Timezone overrides the host timezone sent with sync requests.
	Timezone string `mapstructure:"timezone"`

	DebounceInterval time.Duration `mapstructure:"debounce_interval"`
	PriorityInterval time.Duration `mapstructure:"priority_interval"`

	DashboardAddr string `mapstructure:"dashboard_addr"`
	ImportDir     string `mapstructure:"import_dir"`

	LogLevel string `mapstructure:"log_level"`
}

// DefaultDir returns the default config/data directory (~/.banditsync).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".banditsync"
	}
	return filepath.Join(home, ".banditsync")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads the config file at path (the default path when empty),
// applies BANDIT_SYNC_* environment overrides, and validates the result.
// A missing config file is not an error; defaults and environment carry.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("gateway_url", "")
	v.SetDefault("token", "")
	v.SetDefault("data_dir", DefaultDir())
	v.SetDefault("timezone", "")
	v.SetDefault("debounce_interval", 4*time.Second)
	v.SetDefault("priority_interval", time.Second)
	v.SetDefault("dashboard_addr", "127.0.0.1:8777")
	v.SetDefault("import_dir", "")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("BANDIT_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.GatewayURL = strings.TrimSpace(c.GatewayURL)
	c.Token = strings.TrimSpace(c.Token)
	if c.DataDir == "" {
		c.DataDir = DefaultDir()
	}
	if c.ImportDir == "" {
		c.ImportDir = filepath.Join(c.DataDir, "import")
	}
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = 4 * time.Second
	}
	if c.PriorityInterval <= 0 {
		c.PriorityInterval = time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.PriorityInterval > c.DebounceInterval {
		return fmt.Errorf("priority_interval %s must not exceed debounce_interval %s",
			c.PriorityInterval, c.DebounceInterval)
	}
	if c.GatewayURL != "" &&
		!strings.HasPrefix(c.GatewayURL, "http://") && !strings.HasPrefix(c.GatewayURL, "https://") {
		return fmt.Errorf("gateway_url must be an http(s) URL, got %q", c.GatewayURL)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "bandit-sync.db")
}

// LogPath returns the rotated log file location under the data dir.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "bandit-sync.log")
}

// SaveToken writes the token into the config file at path, creating the
// file when absent and preserving other keys when present. Used by the
// login command.
func SaveToken(path, token string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	v.Set("token", token)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}
