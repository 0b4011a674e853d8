// Package config loads vaultsync configuration from a YAML file with
// environment overrides. The rest of the program receives one validated
// Config value and never reads ambient settings directly.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingToken means no API token is configured; sync passes abort
// before fetching.
var ErrMissingToken = errors.New("config: no api token configured (run `vaultsync auth`)")

// Config holds every recognized option.
type Config struct {
	// VaultDir is the root of the mirrored document tree.
	VaultDir string `mapstructure:"vault_dir"`

	// DoneDir, ArchiveDir, and TrashDir name the lifecycle bucket folders
	// inside the vault.
	DoneDir    string `mapstructure:"done_dir"`
	ArchiveDir string `mapstructure:"archive_dir"`
	TrashDir   string `mapstructure:"trash_dir"`

	// APIToken authenticates against the remote task service.
	APIToken string `mapstructure:"api_token"`

	// BaseURL is the service endpoint root.
	BaseURL string `mapstructure:"base_url"`

	// StatePath is the snapshot/cursor database. Defaults to
	// <vault>/.vaultsync/state.db.
	StatePath string `mapstructure:"state_path"`

	// Debounce is how long the command queue waits after the last local
	// edit before dispatching.
	Debounce time.Duration `mapstructure:"debounce"`

	// SyncInterval is how often the daemon runs incremental passes.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// LogFile, when set, routes daemon logs through a rotating file.
	LogFile string `mapstructure:"log_file"`

	// DashboardAddr, when set, serves the status endpoint there.
	DashboardAddr string `mapstructure:"dashboard_addr"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		VaultDir:     ".",
		DoneDir:      "Done",
		ArchiveDir:   "Archive",
		TrashDir:     "Trash",
		BaseURL:      "https://api.todoist.com/api/v1",
		Debounce:     2 * time.Second,
		SyncInterval: 5 * time.Minute,
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vaultsync.yaml"
	}
	return filepath.Join(home, ".config", "vaultsync", "config.yaml")
}

// Load reads the config file at path (DefaultPath() when empty), applies
// VAULTSYNC_* environment overrides, and fills unset options with defaults.
// A missing file is not an error; missing required options surface from
// Validate.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VAULTSYNC")
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("vault_dir", def.VaultDir)
	v.SetDefault("done_dir", def.DoneDir)
	v.SetDefault("archive_dir", def.ArchiveDir)
	v.SetDefault("trash_dir", def.TrashDir)
	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("debounce", def.Debounce)
	v.SetDefault("sync_interval", def.SyncInterval)
	// Registered without defaults so environment overrides are visible to
	// Unmarshal even when the file omits them.
	v.SetDefault("api_token", "")
	v.SetDefault("state_path", "")
	v.SetDefault("log_file", "")
	v.SetDefault("dashboard_addr", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.StatePath == "" {
		cfg.StatePath = filepath.Join(cfg.VaultDir, ".vaultsync", "state.db")
	}
	return &cfg, nil
}

// Validate checks the options every sync path depends on.
func (c *Config) Validate() error {
	if c.APIToken == "" {
		return ErrMissingToken
	}
	if c.VaultDir == "" {
		return fmt.Errorf("config: vault_dir must not be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("config: base_url must not be empty")
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("config: debounce must be positive (got %s)", c.Debounce)
	}
	return nil
}

// SaveToken writes the API token into the config file at path, creating the
// file and its directory if needed. Other options in the file are kept.
func SaveToken(path, token string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	v.Set("api_token", token)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
