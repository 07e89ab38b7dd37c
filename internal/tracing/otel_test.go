package tracing

import (
	"context"
	"testing"
)

func TestStartSpan_MirrorsTraceID(t *testing.T) {
	if err := Init("lintas-test", "0.0.0"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ctx := WithSessionID(context.Background(), "s1")
	ctx, span := StartSpan(ctx, "lintas.test", "test.op")
	defer span.End()

	if GetTraceID(ctx) == "" {
		t.Error("StartSpan did not propagate a trace id into the context")
	}
}

func TestStartSpan_KeepsExistingTraceID(t *testing.T) {
	if err := Init("lintas-test", "0.0.0"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ctx := WithTraceID(context.Background(), "preset")
	ctx, span := StartSpan(ctx, "lintas.test", "test.op")
	defer span.End()

	if got := GetTraceID(ctx); got != "preset" {
		t.Errorf("trace id overwritten: got %q", got)
	}
}
