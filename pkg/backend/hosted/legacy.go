package hosted

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/prasetya/lintas/pkg/backend"
	"github.com/prasetya/lintas/pkg/chat"
	"github.com/prasetya/lintas/pkg/tool"
)

// legacyTurn resends the conversation via the older chat-completions
// endpoint and schema, for gateways that return 404 on the streaming
// protocol. Tool definitions are nested under a "function" object there.
func (r *Runner) legacyTurn(ctx context.Context, req *backend.TurnRequest) (*backend.TurnResult, error) {
	payload := map[string]interface{}{
		"model":    r.model(req),
		"messages": legacyMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		payload["tools"] = nestedToolDefs(req.Tools)
		payload["tool_choice"] = "auto"
	}

	resp, err := r.post(ctx, r.client.baseURL+"/chat/completions", payload)
	if err != nil {
		return nil, wrapTransport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &backend.Failure{
			Backend: backend.IDHosted,
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var decoded legacyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, backend.ProtocolError(backend.IDHosted, "legacy endpoint returned invalid JSON")
	}
	if len(decoded.Choices) == 0 {
		return nil, backend.ProtocolError(backend.IDHosted, "legacy endpoint returned no choices")
	}

	msg := decoded.Choices[0].Message
	var calls []chat.ToolCall
	for _, tc := range msg.ToolCalls {
		if tc.ID == "" || tc.Function.Name == "" {
			continue
		}
		calls = append(calls, chat.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &backend.TurnResult{
		Text:      msg.Content,
		ToolCalls: calls,
	}, nil
}

type legacyResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// legacyMessages renders history in the chat-completions message schema.
func legacyMessages(messages []chat.Message) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		entry := map[string]interface{}{
			"role":    string(m.Role),
			"content": m.Content,
		}
		if m.Role == chat.RoleTool {
			entry["tool_call_id"] = m.ToolCallID
		}
		if len(m.ToolCalls) > 0 {
			var calls []map[string]interface{}
			for _, tc := range m.ToolCalls {
				calls = append(calls, map[string]interface{}{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]interface{}{
						"name":      tc.Name,
						"arguments": tc.Arguments,
					},
				})
			}
			entry["tool_calls"] = calls
		}
		out = append(out, entry)
	}
	return out
}

// nestedToolDefs renders tool definitions in the legacy nested schema.
func nestedToolDefs(tools []tool.Definition) []map[string]interface{} {
	defs := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.InputSchema,
			},
		})
	}
	return defs
}
