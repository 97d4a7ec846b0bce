package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", RequestID(ctx))
	assert.Equal(t, "", Controller(ctx))
	assert.Equal(t, "", NodeID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithController(ctx, "users")
	ctx = WithNodeID(ctx, "get-e1")

	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "users", Controller(ctx))
	assert.Equal(t, "get-e1", NodeID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithRequestID(context.Background(), "req-abc")
	ctx = WithController(ctx, "orders")

	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "request_id=req-abc")
	assert.Contains(t, output, "controller=orders")
	assert.NotContains(t, output, "node_id")
	assert.Contains(t, output, "test message")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ctx := WithNodeID(WithRequestID(context.Background(), "req-9"), "loop-1")
	logger.InfoContext(ctx, "step")

	output := buf.String()
	assert.Contains(t, output, "request_id=req-9")
	assert.Contains(t, output, "node_id=loop-1")
}

func TestCorrelationHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	logger.With("component", "engine").WithGroup("g").InfoContext(WithController(context.Background(), "c"), "grouped", "k", "v")

	output := buf.String()
	assert.Contains(t, output, "component=engine")
	assert.Contains(t, output, "g.k=v")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("debug", "json", &buf)

	logger.DebugContext(WithRequestID(context.Background(), "r1"), "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "r1", rec["request_id"])
}

func TestNewLoggerTextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "text", &buf)

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNewLeveledLogger(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	level.Set(slog.LevelError)
	logger := NewLeveledLogger(&level, "text", &buf)

	logger.Info("before")
	level.Set(slog.LevelInfo)
	logger.Info("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "msg=after")
}
