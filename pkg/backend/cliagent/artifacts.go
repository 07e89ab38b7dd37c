package cliagent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// Artifact file names inside a task directory.
const (
	promptFileName    = "prompt.txt"
	logFileName       = "run.log"
	metaFileName      = "meta.json"
	assistantFileName = "assistant.txt"
)

// TaskArtifact is the per-turn audit trail on disk: one directory holding
// the rendered prompt, a log of every attempt, a machine-readable metadata
// record, and the final assistant text. The runtime only appends; retention
// and cleanup belong to an external collector.
type TaskArtifact struct {
	TaskID    string
	Directory string
}

// taskMeta is what meta.json records after the turn settles.
type taskMeta struct {
	TaskID     string    `json:"task_id"`
	SessionID  string    `json:"session_id"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	ThreadID   string    `json:"thread_id,omitempty"`
	Notes      []string  `json:"notes,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// newTaskArtifact creates the task directory. All subsequent writes are
// best effort; artifact failures never decide the turn's outcome.
func newTaskArtifact(baseDir string) (*TaskArtifact, error) {
	taskID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate task id: %w", err)
	}

	dir := filepath.Join(baseDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create task directory: %w", err)
	}

	return &TaskArtifact{TaskID: taskID, Directory: dir}, nil
}

// WritePrompt records the prompt sent to the subprocess.
func (a *TaskArtifact) WritePrompt(prompt string) {
	if a == nil {
		return
	}
	a.write(promptFileName, []byte(prompt))
}

// AppendAttemptLog appends one attempt's captured output, labeled so an
// operator can tell the resume attempt from the fresh retry.
func (a *TaskArtifact) AppendAttemptLog(attempt int, label, stdout, stderr string) {
	if a == nil {
		return
	}
	entry := fmt.Sprintf("--- attempt %d (%s) ---\n[stdout]\n%s\n[stderr]\n%s\n", attempt, label, stdout, stderr)

	f, err := os.OpenFile(filepath.Join(a.Directory, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("task_id", a.TaskID).Msg("Failed to open task log")
		return
	}
	defer f.Close()

	if _, err := f.WriteString(entry); err != nil {
		log.Warn().Err(err).Str("task_id", a.TaskID).Msg("Failed to append task log")
	}
}

// WriteAssistant records the final assistant text.
func (a *TaskArtifact) WriteAssistant(text string) {
	if a == nil {
		return
	}
	a.write(assistantFileName, []byte(text))
}

// WriteMeta records the final status of the turn.
func (a *TaskArtifact) WriteMeta(meta taskMeta) {
	if a == nil {
		return
	}
	meta.TaskID = a.TaskID
	meta.FinishedAt = time.Now()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		log.Warn().Err(err).Str("task_id", a.TaskID).Msg("Failed to encode task metadata")
		return
	}
	a.write(metaFileName, data)
}

func (a *TaskArtifact) write(name string, data []byte) {
	if err := os.WriteFile(filepath.Join(a.Directory, name), data, 0o644); err != nil {
		log.Warn().Err(err).Str("task_id", a.TaskID).Str("file", name).Msg("Failed to write task artifact")
	}
}
