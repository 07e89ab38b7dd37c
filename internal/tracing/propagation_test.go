package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestPropagateToLogger(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithBackend(ctx, "agent")
	ctx = WithSessionID(ctx, "session-abc")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logger = PropagateToLogger(ctx, logger)
	logger.Info().Msg("test message")

	out := buf.String()
	for _, want := range []string{"trace-123", "agent", "session-abc"} {
		if !strings.Contains(out, want) {
			t.Errorf("Log output missing %q: %s", want, out)
		}
	}
}

func TestPropagateToLoggerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logger = LoggerFromContext(context.Background(), logger)
	logger.Info().Msg("test message")

	out := buf.String()
	if strings.Contains(out, "trace_id") {
		t.Errorf("Unexpected trace_id in output: %s", out)
	}
}
