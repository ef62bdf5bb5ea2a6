package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLevel(tc.in))
		})
	}
}

func TestInitWriter_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", "json")
	defer Init("info", "text")

	For("rangefinder").Debug("poll", "bytes", 9)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "poll", rec["msg"])
	assert.Equal(t, "rangefinder", rec["component"])
	assert.EqualValues(t, 9, rec["bytes"])
}

func TestInitWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn", "text")
	defer Init("info", "text")

	Info("hidden")
	assert.Zero(t, buf.Len())

	Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
