package coretools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasetya/lintas/pkg/tool"
)

func newRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	registry := tool.NewRegistry()
	require.NoError(t, Register(registry))
	return registry
}

func TestRegister(t *testing.T) {
	registry := newRegistry(t)
	for _, name := range []string{"read_file", "list_files", "write_file", "exec"} {
		_, ok := registry.Get(name)
		assert.True(t, ok, name)
	}
}

func TestReadFile(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "hello.txt"), []byte("hello world"), 0o644))

	registry := newRegistry(t)
	tc := &tool.Context{WorkspaceRoot: ws}

	out, err := registry.Execute(context.Background(), "read_file", `{"path":"hello.txt"}`, tc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestReadFile_Truncates(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "big.txt"), []byte(strings.Repeat("x", 100)), 0o644))

	registry := newRegistry(t)
	tc := &tool.Context{WorkspaceRoot: ws, MaxFileReadChars: 10}

	out, err := registry.Execute(context.Background(), "read_file", `{"path":"big.txt"}`, tc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("x", 10)))
	assert.Contains(t, out, "[file truncated]")
}

func TestReadFile_RejectsEscape(t *testing.T) {
	registry := newRegistry(t)
	tc := &tool.Context{WorkspaceRoot: t.TempDir()}

	_, err := registry.Execute(context.Background(), "read_file", `{"path":"../../etc/passwd"}`, tc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes the workspace")
}

func TestListFiles(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "b.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(ws, "a"), 0o755))

	registry := newRegistry(t)
	tc := &tool.Context{WorkspaceRoot: ws}

	out, err := registry.Execute(context.Background(), "list_files", `{}`, tc)
	require.NoError(t, err)
	assert.Equal(t, "a/\nb.txt", out)
}

func TestWriteFile_RequiresCapability(t *testing.T) {
	registry := newRegistry(t)
	tc := &tool.Context{WorkspaceRoot: t.TempDir()}

	_, err := registry.Execute(context.Background(), "write_file", `{"path":"a.txt","content":"x"}`, tc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write capability is disabled")
}

func TestWriteFile(t *testing.T) {
	ws := t.TempDir()
	registry := newRegistry(t)
	tc := &tool.Context{WorkspaceRoot: ws, EnableWrite: true}

	out, err := registry.Execute(context.Background(), "write_file", `{"path":"sub/a.txt","content":"written"}`, tc)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 7 bytes")

	data, err := os.ReadFile(filepath.Join(ws, "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "written", string(data))
}

func TestExec_RequiresCapability(t *testing.T) {
	registry := newRegistry(t)
	tc := &tool.Context{WorkspaceRoot: t.TempDir()}

	_, err := registry.Execute(context.Background(), "exec", `{"command":"echo hi"}`, tc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shell capability is disabled")
}

func TestExec(t *testing.T) {
	registry := newRegistry(t)
	tc := &tool.Context{WorkspaceRoot: t.TempDir(), EnableShell: true}

	out, err := registry.Execute(context.Background(), "exec", `{"command":"echo hi"}`, tc)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)
}

func TestExec_NonzeroExitIsResultNotError(t *testing.T) {
	registry := newRegistry(t)
	tc := &tool.Context{WorkspaceRoot: t.TempDir(), EnableShell: true}

	out, err := registry.Execute(context.Background(), "exec", `{"command":"echo oops >&2; exit 3"}`, tc)
	require.NoError(t, err)
	assert.Contains(t, out, "exit status 3")
	assert.Contains(t, out, "oops")
}

func TestExec_Timeout(t *testing.T) {
	registry := newRegistry(t)
	tc := &tool.Context{WorkspaceRoot: t.TempDir(), EnableShell: true}

	_, err := registry.Execute(context.Background(), "exec", `{"command":"sleep 5","timeout":0.1}`, tc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
