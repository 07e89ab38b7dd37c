package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prasetya/lintas/internal/observability"
	"github.com/prasetya/lintas/internal/tracing"
	"github.com/prasetya/lintas/pkg/backend"
	"github.com/prasetya/lintas/pkg/chat"
	"github.com/prasetya/lintas/pkg/session"
	"github.com/prasetya/lintas/pkg/tool"
)

// executeTurn runs one turn end to end: session lookup, backend
// invocation, the tool-call loop, and history persistence.
func (d *Dispatcher) executeTurn(ctx context.Context, runner backend.Runner, req *Request) (*Result, error) {
	ctx = tracing.NewTurnContext(ctx, runner.Name())
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	started := time.Now()

	st, err := d.store.GetOrCreate(ctx, session.Params{
		SessionID:     req.SessionID,
		UserID:        req.UserID,
		TeamID:        req.TeamID,
		Role:          req.Role,
		SystemPrompt:  req.SystemPrompt,
		WorkspaceRoot: req.WorkspaceRoot,
		TTL:           d.cfg.SessionTTL,
		MaxSessions:   d.cfg.MaxSessions,
	})
	if err != nil {
		return nil, err
	}

	tc := req.ToolCtx
	tc.SessionID = req.SessionID
	if tc.WorkspaceRoot == "" {
		tc.WorkspaceRoot = st.WorkspaceRoot
	}

	messages := append(st.Messages, chat.Message{
		Role:        chat.RoleUser,
		Content:     req.Content,
		Attachments: req.Attachments,
	})

	treq := &backend.TurnRequest{
		SessionID:    req.SessionID,
		Model:        req.Model,
		Tools:        d.availableTools(tc),
		ToolCtx:      tc,
		ResumeHandle: st.ResumeHandles[runner.Name()],
	}

	var usage backend.Usage
	var notes []string
	var text string

	for round := 0; ; round++ {
		treq.Messages = messages

		res, err := runner.RunTurn(ctx, treq)
		if err != nil {
			observability.RecordTurn(runner.Name(), time.Since(started), err)
			observability.RecordTurnAudit(ctx, req.SessionID, runner.Name(), "failed", map[string]interface{}{
				"error": err.Error(),
			})
			return nil, err
		}

		usage.InputTokens += res.Usage.InputTokens
		usage.OutputTokens += res.Usage.OutputTokens
		notes = append(notes, res.Notes...)

		if res.ResumeHandle != "" {
			d.store.SetResumeHandle(req.SessionID, runner.Name(), res.ResumeHandle)
			treq.ResumeHandle = res.ResumeHandle
		}

		if len(res.ToolCalls) == 0 {
			text = res.Text
			messages = append(messages, chat.Message{Role: chat.RoleAssistant, Content: res.Text})
			break
		}

		if round >= d.cfg.MaxToolRounds {
			logger.Warn().Int("rounds", round).Msg("Tool round limit reached, cutting off")
			text = res.Text
			notes = append(notes, "tool round limit reached")
			messages = append(messages, chat.Message{Role: chat.RoleAssistant, Content: res.Text})
			break
		}

		messages = append(messages, chat.Message{
			Role:      chat.RoleAssistant,
			Content:   res.Text,
			ToolCalls: res.ToolCalls,
		})
		messages = append(messages, d.runToolCalls(ctx, res.ToolCalls, &tc)...)
	}

	if err := d.store.UpdateMessages(ctx, req.SessionID, req.UserID, req.TeamID, messages, d.cfg.MaxMessages, d.cfg.MaxChars); err != nil {
		return nil, err
	}

	observability.RecordTurn(runner.Name(), time.Since(started), nil)
	observability.RecordTurnAudit(ctx, req.SessionID, runner.Name(), "done", map[string]interface{}{
		"backend":       runner.Name(),
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
	})

	return &Result{Text: text, Usage: usage, Notes: notes}, nil
}

// runToolCalls executes the calls the model requested and renders each
// outcome as a tool message. Execution errors become tool results, not
// turn failures: the model sees what went wrong and can react.
func (d *Dispatcher) runToolCalls(ctx context.Context, calls []chat.ToolCall, tc *tool.Context) []chat.Message {
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	results := make([]chat.Message, 0, len(calls))
	for _, call := range calls {
		started := time.Now()
		out, err := d.registry.Execute(ctx, call.Name, call.Arguments, tc)
		observability.RecordToolExecution(call.Name, time.Since(started), err)

		status := "done"
		if err != nil {
			status = "failed"
			out = "tool error: " + err.Error()
			logger.Warn().Err(err).Str("tool", call.Name).Msg("Tool execution failed")
		}
		observability.RecordToolAudit(ctx, call.Name, tc.SessionID, status, map[string]interface{}{
			"call_id": call.ID,
		})

		results = append(results, chat.Message{
			Role:       chat.RoleTool,
			Content:    out,
			ToolCallID: call.ID,
		})
	}
	return results
}
