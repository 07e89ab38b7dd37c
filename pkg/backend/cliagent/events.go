package cliagent

import (
	"bufio"
	"encoding/json"
	"strings"

	"github.com/prasetya/lintas/pkg/backend"
)

// Event kinds emitted on the subprocess's stdout, one JSON object per line.
const (
	eventThreadStarted = "thread.started"
	eventTurnCompleted = "turn.completed"
	eventTurnFailed    = "turn.failed"
	eventError         = "error"
	eventItemCompleted = "item.completed"
)

// Item kinds inside item.completed events.
const (
	itemAgentMessage = "agent_message"
	itemReasoning    = "reasoning"
)

type streamEvent struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
	Usage    *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
	Item    *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
}

// turnOutcome is the digest of one invocation's event stream.
type turnOutcome struct {
	ThreadID       string
	Usage          backend.Usage
	Completed      bool
	FailureReason  string
	agentTexts     []string
	reasoningTexts []string
}

// Text returns the assistant's visible answer. Agent messages win;
// reasoning items are a fallback for streams that never emit one.
func (o *turnOutcome) Text() string {
	if len(o.agentTexts) > 0 {
		return strings.Join(o.agentTexts, "\n\n")
	}
	return strings.Join(o.reasoningTexts, "\n\n")
}

// Failed reports whether the stream carried a structured failure.
func (o *turnOutcome) Failed() bool {
	return o.FailureReason != ""
}

// parseEventStream decodes the newline-delimited JSON events. Lines that
// are not valid JSON objects are skipped; the agent interleaves diagnostic
// text with events on some versions.
func parseEventStream(stdout string) *turnOutcome {
	outcome := &turnOutcome{}

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case eventThreadStarted:
			if ev.ThreadID != "" {
				outcome.ThreadID = ev.ThreadID
			}
		case eventTurnCompleted:
			outcome.Completed = true
			if ev.Usage != nil {
				outcome.Usage = backend.Usage{
					InputTokens:  ev.Usage.InputTokens,
					OutputTokens: ev.Usage.OutputTokens,
				}
			}
		case eventTurnFailed, eventError:
			reason := ev.Message
			if ev.Error != nil && ev.Error.Message != "" {
				reason = ev.Error.Message
			}
			if reason == "" {
				reason = "agent reported an unspecified failure"
			}
			outcome.FailureReason = reason
		case eventItemCompleted:
			if ev.Item == nil || ev.Item.Text == "" {
				continue
			}
			switch ev.Item.Type {
			case itemAgentMessage:
				outcome.agentTexts = append(outcome.agentTexts, ev.Item.Text)
			case itemReasoning:
				outcome.reasoningTexts = append(outcome.reasoningTexts, ev.Item.Text)
			}
		}
	}

	return outcome
}

// isMissingThreadFailure matches the agent's wording for a resume target
// it no longer knows about.
func isMissingThreadFailure(reason string) bool {
	lower := strings.ToLower(reason)
	for _, marker := range []string{
		"session not found",
		"no session found",
		"thread not found",
		"unknown thread",
		"no conversation found",
		"conversation not found",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
