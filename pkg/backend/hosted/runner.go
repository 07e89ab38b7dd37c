package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/prasetya/lintas/internal/tracing"
	"github.com/prasetya/lintas/pkg/backend"
	"github.com/prasetya/lintas/pkg/chat"
	"github.com/prasetya/lintas/pkg/tool"
)

// Runner executes turns against the streaming completion endpoint.
type Runner struct {
	client *Client
}

// NewRunner wraps a configured client.
func NewRunner(client *Client) *Runner {
	return &Runner{client: client}
}

// Name returns the backend identifier.
func (r *Runner) Name() string {
	return backend.IDHosted
}

// RunTurn sends one turn with streaming enabled and extracts the final
// response snapshot. Recoveries, applied at most once each:
//   - HTTP 404: the gateway does not implement the protocol; the same
//     conversation is resent to the legacy chat-completions endpoint.
//   - Stream succeeded but no parseable final event: retried once with
//     string sanitization enabled.
func (r *Runner) RunTurn(ctx context.Context, req *backend.TurnRequest) (*backend.TurnResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.client.timeout)
	defer cancel()

	logger := tracing.LoggerFromContext(ctx, log.Logger)

	result, status, err := r.streamTurn(ctx, req, false)
	if err != nil {
		return nil, err
	}

	if status == http.StatusNotFound {
		logger.Info().Msg("Gateway returned 404, falling back to legacy endpoint")
		res, err := r.legacyTurn(ctx, req)
		if err != nil {
			return nil, err
		}
		res.Notes = append(res.Notes, "legacy endpoint fallback after 404")
		return res, nil
	}

	if result == nil {
		// The call succeeded but yielded nothing parseable; some gateways
		// emit invalid JSON when text contains raw newlines.
		logger.Warn().Msg("No parseable final event, retrying with sanitized strings")
		result, status, err = r.streamTurn(ctx, req, true)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNotFound {
			res, err := r.legacyTurn(ctx, req)
			if err != nil {
				return nil, err
			}
			res.Notes = append(res.Notes, "legacy endpoint fallback after 404")
			return res, nil
		}
		if result == nil {
			return nil, backend.ProtocolError(backend.IDHosted, "stream ended with no extractable final event")
		}
		result.Notes = append(result.Notes, "sanitized retry after empty stream")
	}

	return result, nil
}

// streamTurn performs one streaming call. It returns (nil, 404, nil) when
// the gateway rejected the endpoint, and (nil, status, nil) when the call
// succeeded but produced no parseable final event.
func (r *Runner) streamTurn(ctx context.Context, req *backend.TurnRequest, sanitized bool) (*backend.TurnResult, int, error) {
	instructions := BuildInstructions(req.Messages)
	transcript := FlattenTranscript(req.Messages)
	if sanitized {
		instructions = sanitize(instructions)
		transcript = sanitize(transcript)
	}

	payload := map[string]interface{}{
		"model":        r.model(req),
		"instructions": instructions,
		"input": []map[string]string{
			{"role": "user", "content": transcript},
		},
		"stream": true,
	}
	if len(req.Tools) > 0 {
		payload["tools"] = flatToolDefs(req.Tools, sanitized)
		payload["tool_choice"] = "auto"
	}

	resp, err := r.post(ctx, r.client.baseURL+"/responses", payload)
	if err != nil {
		return nil, 0, wrapTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, http.StatusNotFound, nil
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, &backend.Failure{
			Backend: backend.IDHosted,
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	rp := extractLastResponse(resp.Body)
	if rp == nil {
		return nil, resp.StatusCode, nil
	}
	return buildResult(rp), resp.StatusCode, nil
}

// buildResult renders a response snapshot into a turn result. Tool-call
// entries missing either a call identifier or a name are dropped, not
// errored.
func buildResult(rp *responsePayload) *backend.TurnResult {
	var texts []string
	var calls []chat.ToolCall

	for _, entry := range rp.Output {
		for _, item := range entry.Content {
			if (item.Type == "output_text" || item.Type == "text") && item.Text != "" {
				texts = append(texts, item.Text)
			}
		}

		if entry.Type == "function_call" || entry.Type == "tool_call" {
			id := entry.CallID
			if id == "" {
				id = entry.ID
			}
			if id == "" || entry.Name == "" {
				continue
			}
			calls = append(calls, chat.ToolCall{ID: id, Name: entry.Name, Arguments: entry.Args})
		}
	}

	return &backend.TurnResult{
		Text:      strings.Join(texts, "\n\n"),
		ToolCalls: calls,
	}
}

func (r *Runner) model(req *backend.TurnRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return r.client.model
}

func (r *Runner) post(ctx context.Context, url string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.client.apiKey)

	return r.client.httpc.Do(httpReq)
}

// flatToolDefs renders tool definitions in the flat schema the streaming
// endpoint expects.
func flatToolDefs(tools []tool.Definition, sanitized bool) []map[string]interface{} {
	defs := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		desc := t.Description
		if sanitized {
			desc = sanitize(desc)
		}
		defs = append(defs, map[string]interface{}{
			"type":        "function",
			"name":        t.Name,
			"description": desc,
			"parameters":  t.InputSchema,
		})
	}
	return defs
}

func wrapTransport(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", backend.ErrTimeout, backend.IDHosted)
	}
	return fmt.Errorf("hosted request failed: %w", err)
}
