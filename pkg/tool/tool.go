package tool

import "context"

// Risk classifies a tool by the blast radius of its side effects.
type Risk string

const (
	RiskSafe      Risk = "safe"
	RiskDangerous Risk = "dangerous"
)

// Handler executes a tool with schema-validated arguments. The execution
// Context travels on ctx (see ContextWith / FromContext).
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Definition describes a tool offered to a backend for one turn.
// Definitions are constructed once per process and shared read-only.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Risk        Risk                   `json:"risk"`
	InputSchema map[string]interface{} `json:"input_schema"`
	Handler     Handler                `json:"-"`
}

// Context is the per-turn execution configuration snapshot handed to tool
// handlers. Created fresh per turn and never mutated afterwards.
type Context struct {
	SessionID     string
	WorkspaceRoot string
	OutputsDir    string

	EnableShell   bool
	EnableWrite   bool
	EnableBrowser bool

	MaxFileReadChars   int
	MaxToolOutputChars int
	MaxContextChars    int
}
