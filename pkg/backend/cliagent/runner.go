package cliagent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prasetya/lintas/internal/observability"
	"github.com/prasetya/lintas/internal/tracing"
	"github.com/prasetya/lintas/pkg/backend"
	"github.com/prasetya/lintas/pkg/chat"
)

const defaultTimeout = 10 * time.Minute

// Sandbox levels passed to the agent. Any write or shell capability
// promotes the sandbox to workspace-write; otherwise the agent runs
// read-only.
const (
	sandboxReadOnly       = "read-only"
	sandboxWorkspaceWrite = "workspace-write"
)

// Attempt states for the resume recovery machine.
type attemptState int

const (
	stateIdle attemptState = iota
	stateResuming
	stateRetryingFresh
	stateDone
	stateFailed
)

// Config holds the CLI agent settings.
type Config struct {
	Executable string
	Model      string
	TasksDir   string
	Timeout    time.Duration
}

// Runner executes turns by spawning a headless coding agent. Each turn is
// one subprocess invocation; multi-turn continuity rides on an opaque
// thread id the agent hands back in its event stream.
type Runner struct {
	cfg      Config
	execPath string
	launcher Launcher
}

// NewRunner resolves the agent executable and returns a runner. A missing
// executable is a configuration error, not something to fall back from.
func NewRunner(cfg Config, launcher Launcher) (*Runner, error) {
	if cfg.Executable == "" {
		return nil, &backend.ConfigError{Backend: backend.IDCLI, Reason: "executable is required"}
	}

	execPath, err := exec.LookPath(cfg.Executable)
	if err != nil {
		return nil, &backend.ConfigError{
			Backend: backend.IDCLI,
			Reason:  fmt.Sprintf("executable %q not found", cfg.Executable),
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if launcher == nil {
		launcher = NewLauncher()
	}

	return &Runner{cfg: cfg, execPath: execPath, launcher: launcher}, nil
}

// Name returns the backend identifier.
func (r *Runner) Name() string {
	return backend.IDCLI
}

// RunTurn runs one subprocess turn. A stored thread id triggers a resume;
// if the agent no longer knows the thread, the runner clears it, rebuilds
// the prompt with full history, and retries exactly once fresh. Any other
// failure propagates with the agent's own message.
func (r *Runner) RunTurn(ctx context.Context, req *backend.TurnRequest) (*backend.TurnResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	logger := tracing.LoggerFromContext(ctx, log.Logger)

	artifact, err := newTaskArtifact(r.cfg.TasksDir)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create task artifact, continuing without audit trail")
		artifact = nil
	}

	images, hints := resolveAttachments(req.ToolCtx.OutputsDir, lastUserAttachments(req.Messages))

	threadID := req.ResumeHandle
	state := stateIdle
	if threadID != "" {
		state = stateResuming
	}

	var prompt string
	if state == stateResuming {
		prompt = renderResumePrompt(req.Messages, hints)
	} else {
		prompt = renderFullPrompt(req.Messages, hints)
	}
	artifact.WritePrompt(prompt)

	var notes []string
	attempt := 1
	label := "fresh"
	if state == stateResuming {
		label = "resume"
	}

	outcome, err := r.invoke(ctx, artifact, attempt, label, prompt, threadID, images, req)
	if err != nil {
		r.finishMeta(artifact, req.SessionID, "error", attempt, threadID, notes, err.Error())
		return nil, err
	}

	if outcome.Failed() && state == stateResuming && isMissingThreadFailure(outcome.FailureReason) {
		// The agent lost the thread; continuity is now local. Rebuild with
		// full history and go once more without a resume handle.
		observability.RecordCLIAttempt("missing_thread")
		logger.Warn().
			Str("thread_id", threadID).
			Str("reason", outcome.FailureReason).
			Msg("Resume target missing, retrying with a fresh thread")

		state = stateRetryingFresh
		threadID = ""
		prompt = renderFullPrompt(req.Messages, hints)
		artifact.WritePrompt(prompt)
		notes = append(notes, "fresh retry after missing thread")

		attempt = 2
		outcome, err = r.invoke(ctx, artifact, attempt, "fresh-retry", prompt, threadID, images, req)
		if err != nil {
			r.finishMeta(artifact, req.SessionID, "error", attempt, "", notes, err.Error())
			return nil, err
		}
	}

	if outcome.Failed() {
		observability.RecordCLIAttempt("failed")
		r.finishMeta(artifact, req.SessionID, "failed", attempt, outcome.ThreadID, notes, outcome.FailureReason)
		return nil, &backend.Failure{Backend: backend.IDCLI, Message: outcome.FailureReason}
	}

	observability.RecordCLIAttempt("ok")

	text := outcome.Text()
	artifact.WriteAssistant(text)
	r.finishMeta(artifact, req.SessionID, "done", attempt, outcome.ThreadID, notes, "")

	return &backend.TurnResult{
		Text:         text,
		Usage:        outcome.Usage,
		ResumeHandle: outcome.ThreadID,
		Notes:        notes,
	}, nil
}

// invoke runs one subprocess attempt and digests its event stream.
func (r *Runner) invoke(ctx context.Context, artifact *TaskArtifact, attempt int, label, prompt, threadID string, images []string, req *backend.TurnRequest) (*turnOutcome, error) {
	inv := Invocation{
		Executable: r.execPath,
		Args:       r.buildArgs(threadID, req, images),
		Stdin:      prompt,
		Dir:        req.ToolCtx.WorkspaceRoot,
	}

	out, err := r.launcher.Run(ctx, inv)
	artifact.AppendAttemptLog(attempt, label, out.Stdout, out.Stderr)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			observability.RecordCLIAttempt("timeout")
			return nil, fmt.Errorf("%w: %s", backend.ErrTimeout, backend.IDCLI)
		}
		return nil, fmt.Errorf("agent subprocess failed: %w", err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		observability.RecordCLIAttempt("timeout")
		return nil, fmt.Errorf("%w: %s", backend.ErrTimeout, backend.IDCLI)
	}

	outcome := parseEventStream(out.Stdout)
	if !outcome.Completed && !outcome.Failed() && outcome.Text() == "" {
		stderr := strings.TrimSpace(out.Stderr)
		if stderr == "" {
			stderr = "agent produced no events"
		}
		outcome.FailureReason = stderr
	}
	return outcome, nil
}

func (r *Runner) buildArgs(threadID string, req *backend.TurnRequest, images []string) []string {
	args := []string{"exec"}
	if threadID != "" {
		args = append(args, "resume", threadID)
	}
	args = append(args, "--json", "--sandbox", sandboxLevel(req), "--model", r.model(req), "-C", req.ToolCtx.WorkspaceRoot)
	for _, img := range images {
		args = append(args, "-i", img)
	}
	return args
}

func (r *Runner) model(req *backend.TurnRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return r.cfg.Model
}

func sandboxLevel(req *backend.TurnRequest) string {
	if req.ToolCtx.EnableWrite || req.ToolCtx.EnableShell {
		return sandboxWorkspaceWrite
	}
	return sandboxReadOnly
}

func (r *Runner) finishMeta(artifact *TaskArtifact, sessionID, status string, attempts int, threadID string, notes []string, errMsg string) {
	artifact.WriteMeta(taskMeta{
		SessionID: sessionID,
		Status:    status,
		Attempts:  attempts,
		ThreadID:  threadID,
		Notes:     notes,
		Error:     errMsg,
	})
}

// lastUserAttachments returns the attachments on the newest user message.
func lastUserAttachments(messages []chat.Message) []chat.Attachment {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleUser {
			return messages[i].Attachments
		}
	}
	return nil
}
