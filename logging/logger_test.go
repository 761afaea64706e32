package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestNewFromConfig_InjectsTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFromConfig(Config{Service: "fangoost", Module: "test", Level: "debug", Writer: &buf})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	logger.With("quote_id", 7).InfoContext(ctx, "priced")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "priced", entry["msg"])
	assert.Equal(t, "fangoost", entry["service"])
	assert.Equal(t, "test", entry["module"])
	assert.Equal(t, traceID.String(), entry["trace_id"])
	assert.Equal(t, spanID.String(), entry["span_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewFromConfig_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFromConfig(Config{Level: "warn", Writer: &buf})
	logger.Info("hidden")
	assert.Zero(t, buf.Len())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMultiHandler_WritesAllTargets(t *testing.T) {
	var a, b bytes.Buffer
	h := newMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(h).With("k", "v")
	logger.Info("info line")
	logger.Error("error line")

	assert.Contains(t, a.String(), "info line")
	assert.Contains(t, a.String(), "error line")
	assert.NotContains(t, b.String(), "info line")
	assert.Contains(t, b.String(), "k=v")
}
