package cliagent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasetya/lintas/pkg/backend"
	"github.com/prasetya/lintas/pkg/chat"
	"github.com/prasetya/lintas/pkg/tool"
)

// fakeLauncher returns scripted outputs per call and records invocations.
type fakeLauncher struct {
	outputs     []Output
	errs        []error
	invocations []Invocation
	block       bool
}

func (f *fakeLauncher) Run(ctx context.Context, inv Invocation) (Output, error) {
	f.invocations = append(f.invocations, inv)
	if f.block {
		<-ctx.Done()
		return Output{}, ctx.Err()
	}
	i := len(f.invocations) - 1
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if i < len(f.outputs) {
		return f.outputs[i], err
	}
	return Output{}, err
}

func eventLines(events ...map[string]interface{}) string {
	var lines []string
	for _, ev := range events {
		b, _ := json.Marshal(ev)
		lines = append(lines, string(b))
	}
	return strings.Join(lines, "\n") + "\n"
}

func successStream(threadID, text string) string {
	return eventLines(
		map[string]interface{}{"type": "thread.started", "thread_id": threadID},
		map[string]interface{}{"type": "item.completed", "item": map[string]string{"type": "agent_message", "text": text}},
		map[string]interface{}{"type": "turn.completed", "usage": map[string]int{"input_tokens": 10, "output_tokens": 5}},
	)
}

func failureStream(message string) string {
	return eventLines(
		map[string]interface{}{"type": "turn.failed", "error": map[string]string{"message": message}},
	)
}

func newTestCLIRunner(t *testing.T, launcher Launcher) *Runner {
	t.Helper()
	runner, err := NewRunner(Config{
		Executable: "sh", // resolvable on any test host
		Model:      "agent-model",
		TasksDir:   t.TempDir(),
		Timeout:    5 * time.Second,
	}, launcher)
	require.NoError(t, err)
	return runner
}

func cliRequest(workspace string) *backend.TurnRequest {
	return &backend.TurnRequest{
		SessionID: "s1",
		Messages: []chat.Message{
			chat.System("stay factual"),
			chat.User("first question"),
			{Role: chat.RoleAssistant, Content: "first answer"},
			chat.User("second question"),
		},
		ToolCtx: tool.Context{WorkspaceRoot: workspace},
	}
}

func TestNewRunner_MissingExecutable(t *testing.T) {
	_, err := NewRunner(Config{Executable: "definitely-not-installed-anywhere"}, &fakeLauncher{})
	var cfgErr *backend.ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestRunTurn_FreshTurn(t *testing.T) {
	launcher := &fakeLauncher{outputs: []Output{{Stdout: successStream("th-1", "the answer")}}}
	runner := newTestCLIRunner(t, launcher)

	res, err := runner.RunTurn(context.Background(), cliRequest("/tmp/ws"))
	require.NoError(t, err)
	assert.Equal(t, "the answer", res.Text)
	assert.Equal(t, "th-1", res.ResumeHandle)
	assert.Equal(t, backend.Usage{InputTokens: 10, OutputTokens: 5}, res.Usage)

	require.Len(t, launcher.invocations, 1)
	inv := launcher.invocations[0]
	assert.NotContains(t, inv.Args, "resume")
	assert.Contains(t, inv.Args, "--json")
	assert.Contains(t, inv.Args, sandboxReadOnly)
	assert.Contains(t, inv.Args, "agent-model")
	// Fresh turn embeds history in the prompt.
	assert.Contains(t, inv.Stdin, "first question")
	assert.Contains(t, inv.Stdin, "second question")
	assert.Contains(t, inv.Stdin, "stay factual")
}

func TestRunTurn_ResumePassesOnlyNewRequest(t *testing.T) {
	launcher := &fakeLauncher{outputs: []Output{{Stdout: successStream("th-1", "ok")}}}
	runner := newTestCLIRunner(t, launcher)

	req := cliRequest("/tmp/ws")
	req.ResumeHandle = "th-1"

	_, err := runner.RunTurn(context.Background(), req)
	require.NoError(t, err)

	inv := launcher.invocations[0]
	assert.Equal(t, []string{"exec", "resume", "th-1"}, inv.Args[:3])
	assert.Contains(t, inv.Stdin, "second question")
	assert.NotContains(t, inv.Stdin, "first question")
}

func TestRunTurn_MissingThreadRetriesFreshOnce(t *testing.T) {
	launcher := &fakeLauncher{outputs: []Output{
		{Stdout: failureStream("session not found: th-stale")},
		{Stdout: successStream("th-new", "recovered answer")},
	}}
	runner := newTestCLIRunner(t, launcher)

	req := cliRequest("/tmp/ws")
	req.ResumeHandle = "th-stale"

	res, err := runner.RunTurn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "recovered answer", res.Text)
	assert.Equal(t, "th-new", res.ResumeHandle)
	assert.Contains(t, res.Notes, "fresh retry after missing thread")

	require.Len(t, launcher.invocations, 2)
	assert.Contains(t, launcher.invocations[0].Args, "resume")
	assert.NotContains(t, launcher.invocations[1].Args, "resume")
	// The retry carries full history again.
	assert.Contains(t, launcher.invocations[1].Stdin, "first question")
}

func TestRunTurn_OtherFailurePropagatesWithoutRetry(t *testing.T) {
	launcher := &fakeLauncher{outputs: []Output{
		{Stdout: failureStream("model overloaded")},
	}}
	runner := newTestCLIRunner(t, launcher)

	req := cliRequest("/tmp/ws")
	req.ResumeHandle = "th-1"

	_, err := runner.RunTurn(context.Background(), req)
	require.Error(t, err)

	var failure *backend.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "model overloaded", failure.Message)
	assert.Len(t, launcher.invocations, 1)
}

func TestRunTurn_MissingThreadOnFreshTurnDoesNotRetry(t *testing.T) {
	launcher := &fakeLauncher{outputs: []Output{
		{Stdout: failureStream("session not found")},
	}}
	runner := newTestCLIRunner(t, launcher)

	_, err := runner.RunTurn(context.Background(), cliRequest("/tmp/ws"))
	require.Error(t, err)
	assert.Len(t, launcher.invocations, 1)
}

func TestRunTurn_TimeoutKillsAndFails(t *testing.T) {
	launcher := &fakeLauncher{block: true}
	tasksDir := t.TempDir()
	runner, err := NewRunner(Config{
		Executable: "sh",
		TasksDir:   tasksDir,
		Timeout:    30 * time.Millisecond,
	}, launcher)
	require.NoError(t, err)

	_, err = runner.RunTurn(context.Background(), cliRequest("/tmp/ws"))
	assert.ErrorIs(t, err, backend.ErrTimeout)

	// The task directory must not be left without a terminal status.
	dirs, err := os.ReadDir(tasksDir)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	metaData, err := os.ReadFile(filepath.Join(tasksDir, dirs[0].Name(), metaFileName))
	require.NoError(t, err)
	var meta taskMeta
	require.NoError(t, json.Unmarshal(metaData, &meta))
	assert.Equal(t, "error", meta.Status)
}

func TestRunTurn_WritableSandboxFromCapabilities(t *testing.T) {
	launcher := &fakeLauncher{outputs: []Output{{Stdout: successStream("t", "x")}}}
	runner := newTestCLIRunner(t, launcher)

	req := cliRequest("/tmp/ws")
	req.ToolCtx.EnableShell = true

	_, err := runner.RunTurn(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, launcher.invocations[0].Args, sandboxWorkspaceWrite)
}

func TestRunTurn_WritesArtifacts(t *testing.T) {
	tasksDir := t.TempDir()
	launcher := &fakeLauncher{outputs: []Output{
		{Stdout: failureStream("session not found")},
		{Stdout: successStream("th-new", "final text"), Stderr: "warning: slow"},
	}}
	runner, err := NewRunner(Config{
		Executable: "sh",
		TasksDir:   tasksDir,
		Timeout:    5 * time.Second,
	}, launcher)
	require.NoError(t, err)

	req := cliRequest("/tmp/ws")
	req.ResumeHandle = "th-stale"

	_, err = runner.RunTurn(context.Background(), req)
	require.NoError(t, err)

	entries, err := os.ReadDir(tasksDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	dir := filepath.Join(tasksDir, entries[0].Name())

	logData, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "attempt 1 (resume)")
	assert.Contains(t, string(logData), "attempt 2 (fresh-retry)")
	assert.Contains(t, string(logData), "warning: slow")

	assistant, err := os.ReadFile(filepath.Join(dir, assistantFileName))
	require.NoError(t, err)
	assert.Equal(t, "final text", string(assistant))

	var meta taskMeta
	metaData, err := os.ReadFile(filepath.Join(dir, metaFileName))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(metaData, &meta))
	assert.Equal(t, "done", meta.Status)
	assert.Equal(t, 2, meta.Attempts)
	assert.Equal(t, "th-new", meta.ThreadID)
	assert.Contains(t, meta.Notes, "fresh retry after missing thread")
}

func TestParseEventStream_ReasoningFallback(t *testing.T) {
	stdout := eventLines(
		map[string]interface{}{"type": "item.completed", "item": map[string]string{"type": "reasoning", "text": "thinking aloud"}},
		map[string]interface{}{"type": "turn.completed"},
	)
	outcome := parseEventStream(stdout)
	assert.Equal(t, "thinking aloud", outcome.Text())

	// An agent message supersedes reasoning.
	stdout = eventLines(
		map[string]interface{}{"type": "item.completed", "item": map[string]string{"type": "reasoning", "text": "thinking"}},
		map[string]interface{}{"type": "item.completed", "item": map[string]string{"type": "agent_message", "text": "the answer"}},
		map[string]interface{}{"type": "turn.completed"},
	)
	assert.Equal(t, "the answer", parseEventStream(stdout).Text())
}

func TestParseEventStream_SkipsNoise(t *testing.T) {
	stdout := "loading model...\n" +
		"not json {\n" +
		successStream("t1", "hello")
	outcome := parseEventStream(stdout)
	assert.Equal(t, "t1", outcome.ThreadID)
	assert.Equal(t, "hello", outcome.Text())
	assert.True(t, outcome.Completed)
}
