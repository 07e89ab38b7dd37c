package httpagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prasetya/lintas/pkg/backend"
)

const (
	defaultTimeout      = 5 * time.Minute
	defaultPollInterval = 500 * time.Millisecond
	defaultWatcherGrace = 2 * time.Second
)

// Config holds the agent server settings.
type Config struct {
	BaseURL      string
	Agent        string
	Model        string
	Timeout      time.Duration
	PollInterval time.Duration
	WatcherGrace time.Duration
}

// Client speaks the agent server's HTTP API: session creation, message
// delivery, and the pending-permission list.
type Client struct {
	baseURL      string
	agent        string
	model        string
	timeout      time.Duration
	pollInterval time.Duration
	watcherGrace time.Duration
	httpc        *http.Client
}

// NewClient validates the configuration and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, &backend.ConfigError{Backend: backend.IDAgent, Reason: "base URL is required"}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.WatcherGrace <= 0 {
		cfg.WatcherGrace = defaultWatcherGrace
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		agent:        cfg.Agent,
		model:        cfg.Model,
		timeout:      cfg.Timeout,
		pollInterval: cfg.PollInterval,
		watcherGrace: cfg.WatcherGrace,
		httpc:        &http.Client{},
	}, nil
}

// CreateSession opens a remote session and returns its identifier.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/session", map[string]interface{}{})
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		return "", backend.ProtocolError(backend.IDAgent, "session create returned no id")
	}
	return created.ID, nil
}

// SendMessage posts one turn's message and returns the raw response body.
func (c *Client) SendMessage(ctx context.Context, remoteSession string, payload map[string]interface{}) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/session/"+remoteSession+"/message", payload)
}

// permissionRequest is one pending entry from the agent's permission list.
type permissionRequest struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	Type      string   `json:"type"`
	Patterns  []string `json:"patterns"`
}

// ListPermissions fetches the pending permission requests.
func (c *Client) ListPermissions(ctx context.Context) ([]permissionRequest, error) {
	body, err := c.do(ctx, http.MethodGet, "/permission", nil)
	if err != nil {
		return nil, err
	}

	var pending []permissionRequest
	if err := json.Unmarshal(body, &pending); err != nil {
		return nil, backend.ProtocolError(backend.IDAgent, "permission list returned invalid JSON")
	}
	return pending, nil
}

// ReplyPermission answers one permission request.
func (c *Client) ReplyPermission(ctx context.Context, id, reply, message string) error {
	payload := map[string]interface{}{"reply": reply}
	if message != "" {
		payload["message"] = message
	}
	_, err := c.do(ctx, http.MethodPost, "/permission/"+id+"/reply", payload)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &backend.Failure{
			Backend: backend.IDAgent,
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	return body, nil
}
