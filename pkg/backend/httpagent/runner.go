package httpagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/prasetya/lintas/internal/tracing"
	"github.com/prasetya/lintas/pkg/backend"
	"github.com/prasetya/lintas/pkg/chat"
)

// Runner executes turns against a locally reachable agent server. The
// server asks before sensitive actions; a per-turn watcher answers those
// requests automatically from the turn's capability flags.
type Runner struct {
	client *Client
}

// NewRunner wraps a configured client.
func NewRunner(client *Client) *Runner {
	return &Runner{client: client}
}

// Name returns the backend identifier.
func (r *Runner) Name() string {
	return backend.IDAgent
}

// RunTurn ensures a remote session exists, starts the permission watcher,
// posts the message, and renders the response parts. The watcher is
// stopped before returning, success or not.
func (r *Runner) RunTurn(ctx context.Context, req *backend.TurnRequest) (*backend.TurnResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.client.timeout)
	defer cancel()

	logger := tracing.LoggerFromContext(ctx, log.Logger)

	remoteSession := req.ResumeHandle
	if remoteSession == "" {
		created, err := r.client.CreateSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create agent session: %w", err)
		}
		remoteSession = created
		logger.Info().Str("remote_session", remoteSession).Msg("Created agent session")
	}

	watcher := startWatcher(ctx, r.client, remoteSession, req.SessionID, req.ToolCtx, logger)
	body, err := r.client.SendMessage(ctx, remoteSession, r.buildPayload(req))
	watcher.Stop()

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", backend.ErrTimeout, backend.IDAgent)
		}
		return nil, err
	}

	text, synthesized := renderResponse(body)
	result := &backend.TurnResult{
		Text:         text,
		ResumeHandle: remoteSession,
	}
	if synthesized {
		result.Notes = append(result.Notes, "synthesized message, agent returned no text")
	}
	return result, nil
}

// buildPayload translates the turn into the agent's message schema.
// External directory access is never enabled; the agent stays confined to
// the workspace.
func (r *Runner) buildPayload(req *backend.TurnRequest) map[string]interface{} {
	payload := map[string]interface{}{
		"agent": r.client.agent,
		"parts": []map[string]string{
			{"type": "text", "text": latestUserText(req.Messages)},
		},
		"tools": map[string]bool{
			"edit":               req.ToolCtx.EnableWrite,
			"bash":               req.ToolCtx.EnableShell,
			"external_directory": false,
		},
	}
	if model := r.model(req); model != "" {
		payload["model"] = model
	}
	if system := systemText(req.Messages); system != "" {
		payload["system"] = system
	}
	return payload
}

func (r *Runner) model(req *backend.TurnRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return r.client.model
}

// renderResponse joins the non-synthetic text parts of the response. When
// none exist it synthesizes an explanatory message, folding in whatever
// structured error detail the response carries.
func renderResponse(body []byte) (text string, synthesized bool) {
	var msg struct {
		Parts []struct {
			Type      string `json:"type"`
			Text      string `json:"text"`
			Synthetic bool   `json:"synthetic"`
		} `json:"parts"`
	}
	if err := json.Unmarshal(body, &msg); err == nil {
		var texts []string
		for _, p := range msg.Parts {
			if p.Type == "text" && !p.Synthetic && strings.TrimSpace(p.Text) != "" {
				texts = append(texts, p.Text)
			}
		}
		if len(texts) > 0 {
			return strings.Join(texts, "\n\n"), false
		}
	}

	// Error detail hides in different places depending on agent version.
	detail := ""
	for _, path := range []string{"info.error.message", "info.error", "error.message", "error"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			detail = v.String()
			break
		}
	}

	if detail != "" {
		return "The agent completed without a reply: " + detail, true
	}
	return "The agent completed the request but returned no message.", true
}

func latestUserText(messages []chat.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func systemText(messages []chat.Message) string {
	var parts []string
	for _, m := range messages {
		if m.IsSystem() && strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
