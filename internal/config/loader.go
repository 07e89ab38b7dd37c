package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// DefaultPath returns the default config file location
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".lintas", "lintas.json"), nil
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	// Missing file falls back to defaults; env overrides still apply.
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return l.applyDerived(DefaultConfig())
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("LINTAS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return l.applyDerived(cfg)
}

// applyDerived fills in paths that default relative to the data directory.
func (l *Loader) applyDerived(cfg *Config) (*Config, error) {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".lintas")
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "lintas.log")
	}
	if cfg.CLI.TasksDir == "" {
		cfg.CLI.TasksDir = filepath.Join(cfg.DataDir, "tasks")
	}
	if cfg.OutputsDir == "" {
		cfg.OutputsDir = filepath.Join(cfg.DataDir, "outputs")
	}
	if cfg.WorkspacePath == "" {
		cfg.WorkspacePath = filepath.Join(cfg.DataDir, "workspace")
	}

	return cfg, nil
}
