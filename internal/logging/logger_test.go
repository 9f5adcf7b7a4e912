package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/taxrag/internal/config"
)

func TestNewLoggerTo_JSON(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	var buf bytes.Buffer

	logger, err := NewLoggerTo(cfg, &buf, nil)
	require.NoError(t, err)

	ctx := WithStage(WithRequestID(context.Background(), "req-1"), "answer")
	logger.Info(ctx, "answer generated", zap.Int("sources", 3))
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "answer generated", entry["msg"])
	assert.Equal(t, "answer", entry["stage"])
	assert.Equal(t, "req-1", entry["request.id"])
	assert.Equal(t, "taxrag", entry["service"])
	assert.EqualValues(t, 3, entry["sources"])
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestLogger_LevelsAndChildren(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Trace(ctx, "link skipped")
	tl.Debug(ctx, "batch embedded")
	tl.Warn(ctx, "fetch failed")
	tl.Named("crawler").With(zap.String("url", "https://x")).Error(ctx, "gave up")

	tl.AssertLogged(t, TraceLevel, "link skipped")
	tl.AssertLogged(t, zapcore.DebugLevel, "batch embedded")
	tl.AssertLogged(t, zapcore.WarnLevel, "fetch failed")
	tl.AssertField(t, "gave up", "url", "https://x")
	tl.AssertNotLogged(t, zapcore.InfoLevel, "fetch failed")

	assert.Equal(t, "crawler", tl.FilterMessage("gave up").All()[0].LoggerName)
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.False(t, cfg.Sampling.Enabled)

	cfg, err = FromSettings(config.LoggingConfig{Level: "trace", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.True(t, cfg.Sampling.Enabled)

	_, err = FromSettings(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestRedactingEncoder(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	var buf bytes.Buffer
	logger, err := NewLoggerTo(cfg, &buf, nil)
	require.NoError(t, err)

	logger.Info(context.Background(), "client configured",
		zap.String("api_key", "gsk_abcdefghijklmnopqrstuvwxyz"),
		zap.String("note", "Bearer abc.def"),
		Secret("groq", config.Secret("12345")),
		zap.String("model", "llama-3.3-70b-versatile"),
	)

	out := buf.String()
	assert.NotContains(t, out, "gsk_abcdefghijklmnopqrstuvwxyz")
	assert.NotContains(t, out, "abc.def")
	assert.Contains(t, out, "[REDACTED:5]")
	assert.Contains(t, out, "llama-3.3-70b-versatile")
}

func TestSampling_ErrorsNeverDropped(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Initial = 1
	cfg.Sampling.Thereafter = 0
	var buf bytes.Buffer
	logger, err := NewLoggerTo(cfg, &buf, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		logger.Info(context.Background(), "page saved")
		logger.Error(context.Background(), "store unreachable")
	}

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "page saved"))
	assert.Equal(t, 5, strings.Count(out, "store unreachable"))
}

func TestWithRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithRequestID(ctx, ""))

	long := strings.Repeat("a", 300)
	assert.Len(t, RequestIDFromContext(WithRequestID(ctx, long)), maxIDLen)
}

func TestFromContext(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
