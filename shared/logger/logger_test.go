package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, output *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(output.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_JSONLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel []string
	}{
		{name: "debug logs everything", level: "debug", wantLevel: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{name: "info drops debug", level: "info", wantLevel: []string{"INFO", "WARN", "ERROR"}},
		{name: "warn drops info", level: "warn", wantLevel: []string{"WARN", "ERROR"}},
		{name: "error only", level: "error", wantLevel: []string{"ERROR"}},
		{name: "unknown defaults to info", level: "verbose", wantLevel: []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			log, err := New(&Config{Level: tt.level, Format: "json", writer: output})
			require.NoError(t, err)

			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e", slog.String("request_id", "r-1"))

			entries := decodeLines(t, output)
			require.Len(t, entries, len(tt.wantLevel))
			for i, entry := range entries {
				assert.Equal(t, tt.wantLevel[i], entry["level"])
			}
			assert.Equal(t, "r-1", entries[len(entries)-1]["request_id"])
		})
	}
}

func TestNew_Console(t *testing.T) {
	output := &bytes.Buffer{}
	log, err := New(&Config{Level: "info", Format: "console", NoColor: true, writer: output})
	require.NoError(t, err)

	log.Info("printer connected", slog.String("address", "10.0.0.5:9100"))

	// tint abbreviates levels
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "printer connected")
	assert.Contains(t, output.String(), "address=10.0.0.5:9100")
}

func TestNew_UnsupportedFormat(t *testing.T) {
	log, err := New(&Config{Format: "xml", writer: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Nil(t, log)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")

	log, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("heartbeat sent")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"heartbeat sent"`)
}

func TestNew_Source(t *testing.T) {
	output := &bytes.Buffer{}
	log, err := New(&Config{Format: "json", EnableSource: true, writer: output})
	require.NoError(t, err)

	log.Info("with source")

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	source, ok := entries[0]["source"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestLogger_ComponentAndGroup(t *testing.T) {
	output := &bytes.Buffer{}
	log, err := New(&Config{Format: "json", writer: output})
	require.NoError(t, err)

	log.Component("dispatcher").Info("tick")
	log.WithGroup("job").Info("claimed", slog.String("id", "abc"))

	entries := decodeLines(t, output)
	require.Len(t, entries, 2)
	assert.Equal(t, "dispatcher", entries[0]["component"])

	group, ok := entries[1]["job"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "abc", group["id"])
}

func TestNewDiscard(t *testing.T) {
	log := NewDiscard()
	require.NotNil(t, log)
	log.Info("nothing")
	assert.NoError(t, log.Close())
}
