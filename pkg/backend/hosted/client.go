package hosted

import (
	"net/http"
	"strings"
	"time"

	"github.com/prasetya/lintas/pkg/backend"
)

const defaultTimeout = 120 * time.Second

// Config holds the hosted completion endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client talks to a streaming completion gateway. Many gateways implement
// the protocol inconsistently; the client carries the compatibility
// fallbacks, so it speaks the wire format directly instead of going through
// a vendor SDK.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	httpc   *http.Client
}

// NewClient validates the configuration and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, &backend.ConfigError{Backend: backend.IDHosted, Reason: "base URL is required"}
	}
	if cfg.APIKey == "" {
		return nil, &backend.ConfigError{Backend: backend.IDHosted, Reason: "API key is required"}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: NormalizeBaseURL(cfg.BaseURL),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: timeout,
		httpc:   &http.Client{},
	}, nil
}

// NormalizeBaseURL ensures the base URL carries the API version path
// segment exactly once.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimRight(raw, "/")
	if strings.HasSuffix(u, "/v1") {
		return u
	}
	return u + "/v1"
}
