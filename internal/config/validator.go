package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validBackends = map[string]bool{
	"hosted": true,
	"cli":    true,
	"agent":  true,
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for errors
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	var errs []string

	if !validBackends[cfg.DefaultBackend] {
		errs = append(errs, fmt.Sprintf("default_backend must be one of hosted, cli, agent (got %q)", cfg.DefaultBackend))
	}

	if cfg.Hosted.Enabled {
		if cfg.Hosted.BaseURL == "" {
			errs = append(errs, "hosted.base_url is required when the hosted backend is enabled")
		} else if !validURL(cfg.Hosted.BaseURL) {
			errs = append(errs, fmt.Sprintf("hosted.base_url is not a valid URL: %s", cfg.Hosted.BaseURL))
		}
		if cfg.Hosted.APIKey == "" {
			errs = append(errs, "hosted.api_key is required when the hosted backend is enabled")
		}
	}

	if cfg.CLI.Enabled && cfg.CLI.Executable == "" {
		errs = append(errs, "cli.executable is required when the cli backend is enabled")
	}

	if cfg.Agent.Enabled {
		if cfg.Agent.BaseURL == "" {
			errs = append(errs, "agent.base_url is required when the agent backend is enabled")
		} else if !validURL(cfg.Agent.BaseURL) {
			errs = append(errs, fmt.Sprintf("agent.base_url is not a valid URL: %s", cfg.Agent.BaseURL))
		}
	}

	if enabled, ok := map[string]bool{
		"hosted": cfg.Hosted.Enabled,
		"cli":    cfg.CLI.Enabled,
		"agent":  cfg.Agent.Enabled,
	}[cfg.DefaultBackend]; ok && !enabled {
		errs = append(errs, fmt.Sprintf("default_backend %q is not enabled", cfg.DefaultBackend))
	}

	if cfg.Session.MaxSessions < 0 {
		errs = append(errs, "session.max_sessions cannot be negative")
	}
	if cfg.Session.MaxMessages < 0 {
		errs = append(errs, "session.max_messages cannot be negative")
	}

	if cfg.Logging.Level != "" && !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging.level is invalid: %s", cfg.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
