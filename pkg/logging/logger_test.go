package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := InitLogger(Options{Level: "debug", Format: "json", Output: &buf})
	WithCall(NewComponentLogger(logger, "registry"), "CA1", "MZ1", "t1").Debug("session_started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "session_started", entry["msg"])
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, "CA1", entry["call_sid"])
	assert.Equal(t, "MZ1", entry["stream_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
