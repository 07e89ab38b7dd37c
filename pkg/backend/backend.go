package backend

import (
	"context"

	"github.com/prasetya/lintas/pkg/chat"
	"github.com/prasetya/lintas/pkg/tool"
)

// Backend identifiers accepted by the dispatcher.
const (
	IDHosted = "hosted"
	IDCLI    = "cli"
	IDAgent  = "agent"
)

// TurnRequest carries everything a runner needs to execute one turn.
// Messages is a snapshot of the session history including the new user
// message; runners never mutate it.
type TurnRequest struct {
	SessionID string
	Model     string
	Messages  []chat.Message
	Tools     []tool.Definition
	ToolCtx   tool.Context

	// ResumeHandle is the backend-specific continuation token stored on the
	// session after a previous turn, or empty for a fresh turn.
	ResumeHandle string
}

// Usage reports token consumption when the backend provides it.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TurnResult is the outcome of one successfully executed turn.
type TurnResult struct {
	Text      string
	ToolCalls []chat.ToolCall
	Usage     Usage

	// ResumeHandle is the continuation token to store on the session for
	// the next turn, or empty if the backend has no thread to continue.
	ResumeHandle string

	// Notes records recoveries applied during the turn (legacy fallback,
	// fresh-thread retry) for diagnostics. Never surfaced as errors.
	Notes []string
}

// Runner executes one conversation turn against a concrete backend.
// Implementations must honor ctx cancellation by terminating the
// underlying resource, not merely abandoning it.
type Runner interface {
	Name() string
	RunTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error)
}
