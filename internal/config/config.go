package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the main Lintas configuration
type Config struct {
	// Default backend for turns that do not name one
	DefaultBackend string `json:"default_backend" mapstructure:"default_backend"`

	// Backends
	Hosted HostedConfig `json:"hosted" mapstructure:"hosted"`
	CLI    CLIConfig    `json:"cli" mapstructure:"cli"`
	Agent  AgentConfig  `json:"agent" mapstructure:"agent"`

	// Session store limits
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Tool capabilities and limits
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Workspace path
	WorkspacePath string `json:"workspace_path" mapstructure:"workspace_path"`

	// Managed outputs directory (attachments, generated files)
	OutputsDir string `json:"outputs_dir" mapstructure:"outputs_dir"`
}

// HostedConfig holds the hosted streaming API settings
type HostedConfig struct {
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	Model          string `json:"model" mapstructure:"model"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// CLIConfig holds the subprocess agent settings
type CLIConfig struct {
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
	Executable     string `json:"executable" mapstructure:"executable"`
	Model          string `json:"model" mapstructure:"model"`
	TasksDir       string `json:"tasks_dir" mapstructure:"tasks_dir"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// AgentConfig holds the HTTP agent server settings
type AgentConfig struct {
	Enabled            bool   `json:"enabled" mapstructure:"enabled"`
	BaseURL            string `json:"base_url" mapstructure:"base_url"`
	Agent              string `json:"agent" mapstructure:"agent"`
	Model              string `json:"model" mapstructure:"model"`
	TimeoutSeconds     int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	PollIntervalMillis int    `json:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	WatcherGraceMillis int    `json:"watcher_grace_ms" mapstructure:"watcher_grace_ms"`
}

// SessionConfig holds session store limits
type SessionConfig struct {
	TTLMinutes  int `json:"ttl_minutes" mapstructure:"ttl_minutes"`
	MaxSessions int `json:"max_sessions" mapstructure:"max_sessions"`
	MaxMessages int `json:"max_messages" mapstructure:"max_messages"`
	MaxChars    int `json:"max_chars" mapstructure:"max_chars"`
}

// ToolsConfig holds tool capability flags and output limits
type ToolsConfig struct {
	EnableShell        bool `json:"enable_shell" mapstructure:"enable_shell"`
	EnableWrite        bool `json:"enable_write" mapstructure:"enable_write"`
	MaxFileReadChars   int  `json:"max_file_read_chars" mapstructure:"max_file_read_chars"`
	MaxToolOutputChars int  `json:"max_tool_output_chars" mapstructure:"max_tool_output_chars"`
	MaxToolRounds      int  `json:"max_tool_rounds" mapstructure:"max_tool_rounds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DefaultBackend: "hosted",
		Hosted: HostedConfig{
			Enabled:        true,
			TimeoutSeconds: 120,
		},
		CLI: CLIConfig{
			Executable:     "codex",
			TimeoutSeconds: 600,
		},
		Agent: AgentConfig{
			BaseURL:            "http://127.0.0.1:4096",
			Agent:              "coder",
			TimeoutSeconds:     300,
			PollIntervalMillis: 500,
			WatcherGraceMillis: 2000,
		},
		Session: SessionConfig{
			TTLMinutes:  240,
			MaxSessions: 200,
			MaxMessages: 80,
			MaxChars:    200000,
		},
		Tools: ToolsConfig{
			MaxFileReadChars:   50000,
			MaxToolOutputChars: 20000,
			MaxToolRounds:      4,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9091",
		},
	}
}

// Save writes the configuration as formatted JSON
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
