package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/tabterm/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int            `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string         `mapstructure:"state_dir" yaml:"state_dir"`
	Storage       StorageConfig  `mapstructure:"storage" yaml:"storage"`
	HTTP          HTTPConfig     `mapstructure:"http" yaml:"http"`
	Features      FeaturesConfig `mapstructure:"features" yaml:"features"`
	Launch        LaunchConfig   `mapstructure:"launch" yaml:"launch"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// StorageConfig controls the shared key-value store.
type StorageConfig struct {
	// Path of the JSON store; empty means storage.json under state_dir.
	Path  string `mapstructure:"path" yaml:"path"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

// HTTPConfig configures the extension bridge.
type HTTPConfig struct {
	Addr                   string   `mapstructure:"addr" yaml:"addr"`
	BasePath               string   `mapstructure:"base_path" yaml:"base_path"`
	AllowedOrigins         []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// FeaturesConfig toggles optional features.
type FeaturesConfig struct {
	TmuxIntegration bool `mapstructure:"tmux_integration" yaml:"tmux_integration"`
}

// LaunchConfig controls launch URL classification.
type LaunchConfig struct {
	CroshHost string `mapstructure:"crosh_host" yaml:"crosh_host"`
	SSHPath   string `mapstructure:"ssh_path" yaml:"ssh_path"`
}

// ServiceConfig converts the launch and feature settings for core.
func (c Config) ServiceConfig() schema.ServiceConfig {
	return schema.NormalizeServiceConfig(schema.ServiceConfig{
		CroshHost:       c.Launch.CroshHost,
		SSHPath:         c.Launch.SSHPath,
		TmuxIntegration: c.Features.TmuxIntegration,
	})
}

// StoragePath returns the store file, defaulting under the state dir.
func (c Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.StateDir, "storage.json")
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".tabterm", "state"),
		Storage: StorageConfig{
			Path:  "",
			Watch: true,
		},
		HTTP: HTTPConfig{
			Addr:                   "127.0.0.1:27490",
			AllowedOrigins:         []string{},
			ShutdownTimeoutSeconds: 5,
		},
		Features: FeaturesConfig{
			TmuxIntegration: false,
		},
		Launch: LaunchConfig{
			CroshHost: schema.DefaultCroshHost,
			SSHPath:   schema.DefaultSSHPath,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tabterm", "config.yaml"), nil
}
