package hosted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasetya/lintas/pkg/backend"
	"github.com/prasetya/lintas/pkg/chat"
	"github.com/prasetya/lintas/pkg/tool"
)

func newTestRunner(t *testing.T, handler http.Handler) *Runner {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})
	require.NoError(t, err)
	return NewRunner(client)
}

func turnRequest(contents ...string) *backend.TurnRequest {
	msgs := []chat.Message{chat.System("be terse")}
	for _, c := range contents {
		msgs = append(msgs, chat.User(c))
	}
	return &backend.TurnRequest{
		SessionID: "s1",
		Messages:  msgs,
	}
}

func sseFrame(v interface{}) string {
	b, _ := json.Marshal(v)
	return "data: " + string(b) + "\n\n"
}

func responseEvent(texts []string, calls ...map[string]string) map[string]interface{} {
	var output []map[string]interface{}
	for _, text := range texts {
		output = append(output, map[string]interface{}{
			"type":    "message",
			"content": []map[string]string{{"type": "output_text", "text": text}},
		})
	}
	for _, c := range calls {
		output = append(output, map[string]interface{}{
			"type":      "function_call",
			"call_id":   c["id"],
			"name":      c["name"],
			"arguments": c["args"],
		})
	}
	return map[string]interface{}{
		"type":     "response.completed",
		"response": map[string]interface{}{"output": output},
	}
}

func TestRunTurn_StreamingHappyPath(t *testing.T) {
	runner := newTestRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var payload map[string]interface{}
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, true, payload["stream"])
		assert.Equal(t, "be terse", payload["instructions"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseFrame(responseEvent([]string{"hello", "world"})))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	res, err := runner.RunTurn(context.Background(), turnRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n\nworld", res.Text)
	assert.Empty(t, res.ToolCalls)
	assert.Empty(t, res.Notes)
}

func TestRunTurn_LastEventWins(t *testing.T) {
	runner := newTestRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Incremental snapshots: the later frame supersedes the earlier.
		fmt.Fprint(w, sseFrame(responseEvent([]string{"partial"})))
		fmt.Fprint(w, sseFrame(responseEvent([]string{"partial", "complete"})))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	res, err := runner.RunTurn(context.Background(), turnRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "partial\n\ncomplete", res.Text)
}

func TestRunTurn_ToolCalls(t *testing.T) {
	runner := newTestRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseFrame(responseEvent(nil,
			map[string]string{"id": "call-1", "name": "read_file", "args": `{"path":"a.txt"}`},
			map[string]string{"id": "", "name": "dropped"},       // no id
			map[string]string{"id": "call-3", "name": ""},        // no name
			map[string]string{"id": "call-4", "name": "list_files", "args": `{}`},
		)))
	}))

	req := turnRequest("hi")
	req.Tools = []tool.Definition{{Name: "read_file", Handler: func(ctx context.Context, args map[string]interface{}) (string, error) { return "", nil }}}

	res, err := runner.RunTurn(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, chat.ToolCall{ID: "call-1", Name: "read_file", Arguments: `{"path":"a.txt"}`}, res.ToolCalls[0])
	assert.Equal(t, "call-4", res.ToolCalls[1].ID)
}

func TestRunTurn_404FallsBackToLegacyOnce(t *testing.T) {
	var responsesCalls, legacyCalls int
	runner := newTestRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/responses":
			responsesCalls++
			http.NotFound(w, r)
		case "/v1/chat/completions":
			legacyCalls++

			var payload map[string]interface{}
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &payload))
			// Legacy schema nests tools under a function object.
			tools := payload["tools"].([]interface{})
			first := tools[0].(map[string]interface{})
			assert.Contains(t, first, "function")

			json.NewEncoder(w).Encode(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]interface{}{"content": "legacy says hi"}},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	req := turnRequest("hi")
	req.Tools = []tool.Definition{{Name: "read_file", Handler: func(ctx context.Context, args map[string]interface{}) (string, error) { return "", nil }}}

	res, err := runner.RunTurn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "legacy says hi", res.Text)
	assert.Equal(t, 1, responsesCalls)
	assert.Equal(t, 1, legacyCalls)
	assert.Contains(t, res.Notes, "legacy endpoint fallback after 404")
}

func TestRunTurn_SanitizedRetryRecoversEmptyStream(t *testing.T) {
	var calls int
	runner := newTestRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "text/event-stream")
		if calls == 1 {
			// Invalid JSON frame: raw newline inside a string.
			fmt.Fprint(w, "data: {\"type\":\"response.completed\",\"response\":{\"output\":[{\"type\":\"message\",\"content\":[{\"type\":\"output_text\",\"text\":\"bro\nken\"}]}]}}\n\n")
			return
		}

		var payload map[string]interface{}
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		input := payload["input"].([]interface{})[0].(map[string]interface{})
		assert.NotContains(t, input["content"], "\n", "retry must sanitize newlines")

		fmt.Fprint(w, sseFrame(responseEvent([]string{"recovered"})))
	}))

	req := turnRequest("line one\nline two")
	res, err := runner.RunTurn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Text)
	assert.Equal(t, 2, calls)
	assert.Contains(t, res.Notes, "sanitized retry after empty stream")
}

func TestRunTurn_EmptyStreamTwiceIsProtocolError(t *testing.T) {
	runner := newTestRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	_, err := runner.RunTurn(context.Background(), turnRequest("hi"))
	assert.ErrorIs(t, err, backend.ErrProtocol)
}

func TestRunTurn_HTTPErrorSurfacesBody(t *testing.T) {
	runner := newTestRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "rate limit exceeded")
	}))

	_, err := runner.RunTurn(context.Background(), turnRequest("hi"))
	require.Error(t, err)

	var failure *backend.Failure
	require.True(t, errors.As(err, &failure))
	assert.Contains(t, failure.Message, "rate limit exceeded")
	assert.Contains(t, failure.Message, "429")
}

func TestRunTurn_SingleJSONObjectBody(t *testing.T) {
	runner := newTestRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Gateway ignores stream=true and returns one JSON object.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"output": []map[string]interface{}{
				{"type": "message", "content": []map[string]string{{"type": "text", "text": "plain"}}},
			},
		})
	}))

	res, err := runner.RunTurn(context.Background(), turnRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "plain", res.Text)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k"})
	var cfgErr *backend.ConfigError
	assert.True(t, errors.As(err, &cfgErr))

	_, err = NewClient(Config{BaseURL: "http://x"})
	assert.True(t, errors.As(err, &cfgErr))
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://api.example.com", "https://api.example.com/v1"},
		{"https://api.example.com/", "https://api.example.com/v1"},
		{"https://api.example.com/v1", "https://api.example.com/v1"},
		{"https://api.example.com/v1/", "https://api.example.com/v1"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeBaseURL(tt.in))
	}
}
