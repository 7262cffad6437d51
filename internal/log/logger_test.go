package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWithCapture(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "json", slog.LevelDebug)

	logger.Debug("debug message", String("key", "value"))
	logger.Info("info message", Int("count", 42))
	logger.Warn("warn message", Bool("flag", true))
	logger.Error("error message", Duration("elapsed", time.Second))

	output := buf.String()
	for _, msg := range []string{"debug message", "info message", "warn message", "error message"} {
		assert.Contains(t, output, msg)
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.NotNil(t, entry["msg"])
		assert.NotNil(t, entry["level"])
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "json", slog.LevelInfo).With(
		String("component", "cardinality"),
		Float64("rows", 10),
	)
	logger.Warn("estimation failed", Err(errors.New("boom")))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "cardinality", entry["component"])
	assert.Equal(t, 10.0, entry["rows"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "text", slog.LevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.False(t, logger.Enabled(slog.LevelDebug))
	assert.True(t, logger.Enabled(slog.LevelError))
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(slog.LevelError))
	l.Error("dropped")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
	assert.True(t, ValidLevel("warn"))
	assert.False(t, ValidLevel("bogus"))
}

func TestDefaultLogger(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(Build(Config{Level: "debug", Format: "json"}, &buf))
	Debug("via default")
	assert.Contains(t, buf.String(), "via default")
}
