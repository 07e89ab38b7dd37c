package httpagent

import (
	"path/filepath"
	"strings"

	"github.com/prasetya/lintas/pkg/tool"
)

// Permission reply values the agent server accepts. "always" exists on the
// wire but this policy never grants it; every approval is one occurrence.
const (
	replyOnce   = "once"
	replyReject = "reject"
)

// Permission request kinds.
const (
	permEdit              = "edit"
	permBash              = "bash"
	permRead              = "read"
	permExternalDirectory = "external_directory"
)

// stateDirNames are the runtime's own directories; agent edits and reads
// there are always refused.
var stateDirNames = []string{".lintas", ".codex"}

// decidePermission evaluates one pending request against the turn's
// capability flags. Rules apply in order: edit needs write capability and
// no sensitive targets; bash needs shell capability; external directory
// access is never granted; read must stay inside the workspace and off
// sensitive files.
func decidePermission(req permissionRequest, tc tool.Context) (reply, reason string) {
	switch req.Type {
	case permEdit:
		if !tc.EnableWrite {
			return replyReject, "write capability disabled"
		}
		for _, p := range req.Patterns {
			if isSensitivePath(p) {
				return replyReject, "edit targets a protected file: " + p
			}
		}
		return replyOnce, ""

	case permBash:
		if !tc.EnableShell {
			return replyReject, "shell capability disabled"
		}
		return replyOnce, ""

	case permExternalDirectory:
		return replyReject, "access outside the workspace is not permitted"

	case permRead:
		for _, p := range req.Patterns {
			if isSensitivePath(p) {
				return replyReject, "read targets a protected file: " + p
			}
			if !insideWorkspace(tc.WorkspaceRoot, p) {
				return replyReject, "read escapes the workspace: " + p
			}
		}
		return replyOnce, ""
	}

	return replyReject, "unrecognized permission kind: " + req.Type
}

// isSensitivePath flags environment-secret files and the runtime's own
// state directories.
func isSensitivePath(pattern string) bool {
	base := filepath.Base(pattern)
	if base == ".env" || strings.HasPrefix(base, ".env.") {
		return true
	}

	normalized := filepath.ToSlash(pattern)
	for _, dir := range stateDirNames {
		if strings.Contains(normalized, "/"+dir+"/") || strings.HasPrefix(normalized, dir+"/") || base == dir {
			return true
		}
	}
	return false
}

// insideWorkspace reports whether pattern resolves under root. Relative
// patterns resolve against the root itself.
func insideWorkspace(root, pattern string) bool {
	if root == "" {
		return true
	}

	p := pattern
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}
