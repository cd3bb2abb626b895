package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			assert.Equal(t, tt.expected, level)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestStructuredLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("entities").
		With("type", "characters").
		Warn(context.Background(), errors.New("bad json"), "Entity skipped", "id", "demo>hero")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "Entity skipped", record["msg"])
	assert.Equal(t, "entities", record["component"])
	assert.Equal(t, "characters", record["type"])
	assert.Equal(t, "demo>hero", record["id"])
	assert.Equal(t, "bad json", record["error"])
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})
	ctx := context.Background()

	logger.Debug(ctx, "hidden debug")
	logger.Info(ctx, "hidden info")
	logger.Error(ctx, nil, "visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible error")
}

func TestStructuredLogger_WithDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LevelInfo, Output: &buf})

	_ = base.With("request", "abc")
	base.Info(context.Background(), "plain")

	assert.False(t, strings.Contains(buf.String(), "request=abc"))
}

func TestFileLogger(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(&LoggerConfig{Level: LevelInfo}, dir)
	require.NoError(t, err)

	logger.Info(context.Background(), "written to file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logger.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "discarded")
	})
}
