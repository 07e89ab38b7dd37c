package hosted

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// responsePayload is the final-response shape extracted from the stream.
type responsePayload struct {
	Output []outputEntry `json:"output"`
}

type outputEntry struct {
	Type    string        `json:"type"`
	ID      string        `json:"id"`
	CallID  string        `json:"call_id"`
	Name    string        `json:"name"`
	Args    string        `json:"arguments"`
	Content []contentItem `json:"content"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// streamEvent is one SSE frame's decoded payload. Gateways wrap the
// response snapshot either as {"type":"response.*","response":{...}} or
// emit the snapshot bare.
type streamEvent struct {
	Type     string          `json:"type"`
	Response json.RawMessage `json:"response"`
	Output   json.RawMessage `json:"output"`
}

// extractLastResponse reads server-sent-event frames and returns the last
// complete response snapshot seen before stream end. Later events supersede
// earlier partials: gateways that emit incremental snapshots rather than
// deltas are handled by keeping only the final one. Returns nil when no
// parseable response event appeared.
//
// The body may also be a single bare JSON object instead of an SSE stream.
func extractLastResponse(body io.Reader) *responsePayload {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var last *responsePayload
	var data strings.Builder
	sawSSE := false
	var raw strings.Builder

	flush := func() {
		if data.Len() == 0 {
			return
		}
		payload := data.String()
		data.Reset()
		if strings.TrimSpace(payload) == "[DONE]" {
			return
		}
		if rp := decodeResponse([]byte(payload)); rp != nil {
			last = rp
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		raw.WriteString(line)
		raw.WriteString("\n")

		if strings.HasPrefix(line, "data:") {
			sawSSE = true
			if data.Len() > 0 {
				data.WriteString("\n")
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			continue
		}
		if line == "" {
			// Blank line terminates one event's accumulated data lines.
			flush()
		}
	}
	flush()

	if last == nil && !sawSSE {
		// Not a stream at all: single JSON object body.
		if rp := decodeResponse([]byte(raw.String())); rp != nil {
			last = rp
		}
	}
	return last
}

func decodeResponse(payload []byte) *responsePayload {
	var ev streamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil
	}

	if len(ev.Response) > 0 {
		var rp responsePayload
		if err := json.Unmarshal(ev.Response, &rp); err == nil && len(rp.Output) > 0 {
			return &rp
		}
		return nil
	}

	if len(ev.Output) > 0 {
		var rp responsePayload
		if err := json.Unmarshal(payload, &rp); err == nil && len(rp.Output) > 0 {
			return &rp
		}
	}
	return nil
}
