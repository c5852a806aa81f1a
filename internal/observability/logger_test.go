package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralabs/aura/internal/config"
)

func testConfig() config.LoggingConfig {
	return config.LoggingConfig{Level: "debug", Format: "json"}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestLoggerRedactsAPIKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(testConfig(), &buf)

	type creds struct {
		APIKey string
		Host   string
	}
	logger.Info("provider configured",
		slog.String("api_key", "sk-verysecret"),
		slog.Any("creds", creds{APIKey: "sk-alsosecret", Host: "example.test"}),
	)

	out := buf.String()
	assert.NotContains(t, out, "sk-verysecret")
	assert.NotContains(t, out, "sk-alsosecret")
	assert.Contains(t, out, "example.test")
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(testConfig(), &buf)
	WithComponent(logger, "queue").Info("started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "queue", entry["component"])
	assert.Equal(t, "started", entry["msg"])
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CorrelationIDFromContext(ctx))

	ctx = ContextWithCorrelationID(ctx, "corr-9")
	assert.Equal(t, "corr-9", CorrelationIDFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	logger := NewLoggerWithWriter(testConfig(), &bytes.Buffer{})
	ctx = ContextWithLogger(ctx, logger)
	assert.Same(t, logger, LoggerFromContext(ctx))
}
