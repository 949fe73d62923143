package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestWithTraceID(t *testing.T) {
	ctx := context.Background()
	traceID := "test-trace-id"

	ctx = WithTraceID(ctx, traceID)

	retrieved := GetTraceID(ctx)
	if retrieved != traceID {
		t.Errorf("Expected trace ID %s, got %s", traceID, retrieved)
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")

	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("Expected request ID req-1, got %s", got)
	}
}

func TestGetIDsEmpty(t *testing.T) {
	ctx := context.Background()

	if GetTraceID(ctx) != "" {
		t.Error("Expected empty trace ID")
	}
	if GetRequestID(ctx) != "" {
		t.Error("Expected empty request ID")
	}
}

func TestFromContext(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-123")
	ctx = WithRequestID(ctx, "req-456")

	tc := FromContext(ctx)

	if tc.TraceID != "trace-123" {
		t.Errorf("Expected trace ID trace-123, got %s", tc.TraceID)
	}
	if tc.RequestID != "req-456" {
		t.Errorf("Expected request ID req-456, got %s", tc.RequestID)
	}
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background())

	if GetRequestID(ctx) == "" {
		t.Error("NewRequestContext did not set a request ID")
	}

	ctx = NewRequestContext(context.Background(), "incoming-id")
	if got := GetRequestID(ctx); got != "incoming-id" {
		t.Errorf("Expected incoming request ID to be kept, got %s", got)
	}

	ctx = NewRequestContext(context.Background(), "")
	if GetRequestID(ctx) == "" {
		t.Error("Empty incoming ID should be replaced with a new one")
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-abc")
	ctx = WithRequestID(ctx, "req-def")

	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"trace_id":"trace-abc"`) {
		t.Errorf("Expected trace_id in log output, got %s", out)
	}
	if !strings.Contains(out, `"request_id":"req-def"`) {
		t.Errorf("Expected request_id in log output, got %s", out)
	}
}

func TestStartSpanSetsTraceID(t *testing.T) {
	if err := InitOpenTelemetry("mnemo-test", 1); err != nil {
		t.Fatalf("InitOpenTelemetry failed: %v", err)
	}

	ctx, span := StartSpan(context.Background(), "mnemo.test", "test.span")
	defer span.End()

	if GetTraceID(ctx) == "" {
		t.Error("StartSpan did not propagate a trace ID")
	}
}
