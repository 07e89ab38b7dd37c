package coretools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prasetya/lintas/pkg/tool"
)

const (
	defaultExecTimeout = 60 * time.Second
	maxExecTimeout     = 5 * time.Minute
	maxListEntries     = 500
)

// Register adds the baseline filesystem and shell tools to the registry.
// Capability enforcement happens at execution time from the turn's tool
// context, not at registration.
func Register(registry *tool.Registry) error {
	if registry == nil {
		return errors.New("tool registry is required")
	}

	defs := []tool.Definition{
		readFileTool(),
		listFilesTool(),
		writeFileTool(),
		execTool(),
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}

func readFileTool() tool.Definition {
	return tool.Definition{
		Name:        "read_file",
		Description: "Read a text file from the workspace. Returns at most the configured number of characters.",
		Risk:        tool.RiskSafe,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{"type": "string", "description": "Path relative to the workspace root"},
			},
			"required": []interface{}{"path"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			tc := tool.FromContext(ctx)
			path, err := workspacePath(tc, stringArg(args, "path"))
			if err != nil {
				return "", err
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("failed to read file: %w", err)
			}

			out := string(data)
			if tc != nil && tc.MaxFileReadChars > 0 && len(out) > tc.MaxFileReadChars {
				out = out[:tc.MaxFileReadChars] + "\n[file truncated]"
			}
			return out, nil
		},
	}
}

func listFilesTool() tool.Definition {
	return tool.Definition{
		Name:        "list_files",
		Description: "List files and directories under a workspace path.",
		Risk:        tool.RiskSafe,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{"type": "string", "description": "Directory relative to the workspace root, defaults to the root"},
			},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			tc := tool.FromContext(ctx)
			rel := stringArg(args, "path")
			if rel == "" {
				rel = "."
			}
			path, err := workspacePath(tc, rel)
			if err != nil {
				return "", err
			}

			entries, err := os.ReadDir(path)
			if err != nil {
				return "", fmt.Errorf("failed to list directory: %w", err)
			}

			var names []string
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			if len(names) > maxListEntries {
				names = append(names[:maxListEntries], fmt.Sprintf("[%d more entries omitted]", len(names)-maxListEntries))
			}
			return strings.Join(names, "\n"), nil
		},
	}
}

func writeFileTool() tool.Definition {
	return tool.Definition{
		Name:        "write_file",
		Description: "Create or overwrite a text file inside the workspace.",
		Risk:        tool.RiskDangerous,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":    map[string]interface{}{"type": "string", "description": "Path relative to the workspace root"},
				"content": map[string]interface{}{"type": "string", "description": "Full file content"},
			},
			"required": []interface{}{"path", "content"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			tc := tool.FromContext(ctx)
			if tc == nil || !tc.EnableWrite {
				return "", errors.New("write capability is disabled for this session")
			}

			path, err := workspacePath(tc, stringArg(args, "path"))
			if err != nil {
				return "", err
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", fmt.Errorf("failed to create parent directory: %w", err)
			}
			content := stringArg(args, "content")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return "", fmt.Errorf("failed to write file: %w", err)
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), stringArg(args, "path")), nil
		},
	}
}

func execTool() tool.Definition {
	return tool.Definition{
		Name:        "exec",
		Description: "Run a shell command in the workspace and return its combined output.",
		Risk:        tool.RiskDangerous,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{"type": "string", "description": "Command line to run"},
				"timeout": map[string]interface{}{"type": "number", "description": "Timeout in seconds"},
			},
			"required": []interface{}{"command"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			tc := tool.FromContext(ctx)
			if tc == nil || !tc.EnableShell {
				return "", errors.New("shell capability is disabled for this session")
			}

			command := stringArg(args, "command")
			if strings.TrimSpace(command) == "" {
				return "", errors.New("command cannot be empty")
			}

			timeout := defaultExecTimeout
			if secs, ok := args["timeout"].(float64); ok && secs > 0 {
				timeout = time.Duration(secs * float64(time.Second))
				if timeout > maxExecTimeout {
					timeout = maxExecTimeout
				}
			}

			execCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(execCtx, "sh", "-c", command)
			if tc.WorkspaceRoot != "" {
				cmd.Dir = tc.WorkspaceRoot
			}

			var out bytes.Buffer
			cmd.Stdout = &out
			cmd.Stderr = &out

			err := cmd.Run()
			if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("command timed out after %s", timeout)
			}
			if err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					return fmt.Sprintf("exit status %d\n%s", exitErr.ExitCode(), out.String()), nil
				}
				return "", fmt.Errorf("failed to run command: %w", err)
			}
			return out.String(), nil
		},
	}
}

// workspacePath resolves rel against the workspace root and rejects any
// path that escapes it.
func workspacePath(tc *tool.Context, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("path is required")
	}
	if tc == nil || tc.WorkspaceRoot == "" {
		return "", errors.New("no workspace configured")
	}

	root, err := filepath.Abs(tc.WorkspaceRoot)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(root, rel)
	relPath, err := filepath.Rel(root, joined)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("path escapes the workspace: %s", rel)
	}
	return joined, nil
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
