package cliagent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prasetya/lintas/pkg/chat"
)

// maxImageAttachments caps how many images ride along on one invocation.
const maxImageAttachments = 3

// resolveAttachments maps message attachments onto files in the managed
// outputs directory. Image files that resolve inside the directory are
// attached directly; everything else, including files that escape the
// directory or do not exist, becomes a textual hint so the model still
// knows the attachment was there.
func resolveAttachments(outputsDir string, attachments []chat.Attachment) (imagePaths []string, hints []string) {
	if outputsDir == "" {
		for _, att := range attachments {
			hints = append(hints, attachmentHint(att))
		}
		return nil, hints
	}

	root, err := filepath.EvalSymlinks(outputsDir)
	if err == nil {
		root, err = filepath.Abs(root)
	}
	if err != nil {
		for _, att := range attachments {
			hints = append(hints, attachmentHint(att))
		}
		return nil, hints
	}

	for _, att := range attachments {
		path, ok := resolveInside(root, att.Filename)
		if !ok || !isImage(att) || len(imagePaths) >= maxImageAttachments {
			hints = append(hints, attachmentHint(att))
			continue
		}
		imagePaths = append(imagePaths, path)
	}
	return imagePaths, hints
}

// resolveInside joins name onto root and verifies the result stays
// strictly inside root. Traversal via "..", absolute names, or symlinked
// escapes all fail the containment check.
func resolveInside(root, name string) (string, bool) {
	if name == "" {
		return "", false
	}

	joined := filepath.Join(root, name)
	if rel, err := filepath.Rel(root, joined); err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", false
	}
	if rel, err := filepath.Rel(root, resolved); err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return "", false
	}
	return resolved, true
}

func isImage(att chat.Attachment) bool {
	if strings.HasPrefix(att.MimeType, "image/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(att.Filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

func attachmentHint(att chat.Attachment) string {
	return fmt.Sprintf("[attachment: %s (id=%s)]", att.Filename, att.ID)
}
