package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/prasetya/lintas/internal/observability"
	"github.com/prasetya/lintas/pkg/backend"
	"github.com/prasetya/lintas/pkg/chat"
	"github.com/prasetya/lintas/pkg/commandqueue"
	"github.com/prasetya/lintas/pkg/session"
	"github.com/prasetya/lintas/pkg/tool"
)

// defaultMaxToolRounds bounds the hosted tool-call loop. A model that
// keeps requesting tools past this many rounds gets cut off.
const defaultMaxToolRounds = 4

// Config holds dispatcher-wide limits and the default backend selection.
type Config struct {
	DefaultBackend string
	SessionTTL     time.Duration
	MaxSessions    int
	MaxMessages    int
	MaxChars       int
	MaxToolRounds  int
}

// Request is one caller turn: who is asking, which session, what they
// said, and which backend should execute it.
type Request struct {
	SessionID     string
	UserID        string
	TeamID        string
	Role          string
	SystemPrompt  string
	WorkspaceRoot string
	Backend       string
	Model         string
	Content       string
	Attachments   []chat.Attachment
	RequestID     string
	ToolCtx       tool.Context
}

// Result is what the caller gets back from one turn.
type Result struct {
	Text  string
	Usage backend.Usage
	Notes []string
}

// Dispatcher selects a backend runner and executes turns. Turns for the
// same session are serialized on a per-session queue lane; a second turn
// arriving while the first runs queues behind it rather than racing it.
type Dispatcher struct {
	cfg      Config
	store    *session.Store
	queue    *commandqueue.CommandQueue
	registry *tool.Registry
	runners  map[string]backend.Runner
}

// New builds a dispatcher. Runners are registered separately so a
// deployment can enable only the backends it has configured.
func New(cfg Config, store *session.Store, queue *commandqueue.CommandQueue, registry *tool.Registry) *Dispatcher {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	return &Dispatcher{
		cfg:      cfg,
		store:    store,
		queue:    queue,
		registry: registry,
		runners:  make(map[string]backend.Runner),
	}
}

// Register adds a backend runner, keyed by its Name.
func (d *Dispatcher) Register(r backend.Runner) {
	d.runners[r.Name()] = r
}

// Dispatch executes one turn. The call blocks until the turn completes;
// same-session turns queue behind each other in arrival order.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Result, error) {
	runner, err := d.runnerFor(req.Backend)
	if err != nil {
		return nil, err
	}

	lane := "session:" + req.SessionID
	task := func(taskCtx context.Context) (interface{}, error) {
		return d.executeTurn(taskCtx, runner, req)
	}

	var out interface{}
	if req.RequestID != "" {
		out, err = d.queue.EnqueueIdempotent(ctx, lane, req.RequestID, task)
	} else {
		out, err = d.queue.Enqueue(ctx, lane, task)
	}
	if err != nil {
		return nil, err
	}

	result, ok := out.(*Result)
	if !ok {
		return nil, fmt.Errorf("unexpected task result type %T", out)
	}
	return result, nil
}

func (d *Dispatcher) runnerFor(name string) (backend.Runner, error) {
	if name == "" {
		name = d.cfg.DefaultBackend
	}
	runner, ok := d.runners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", backend.ErrUnknownBackend, name)
	}
	return runner, nil
}

// availableTools filters the registry by the turn's capability flags:
// dangerous tools ride along only when a mutating capability is enabled.
func (d *Dispatcher) availableTools(tc tool.Context) []tool.Definition {
	if d.registry == nil {
		return nil
	}

	var defs []tool.Definition
	for _, def := range d.registry.List() {
		if def.Risk == tool.RiskDangerous && !tc.EnableWrite && !tc.EnableShell {
			continue
		}
		defs = append(defs, def)
	}
	return defs
}

// RecordQueueDepth exports the lane depth for a session, for operational
// visibility.
func (d *Dispatcher) RecordQueueDepth(sessionID string) {
	observability.SetQueueSize("session:"+sessionID, d.queue.QueueSize("session:"+sessionID))
}
