package observers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mercy2112/ai-voice-assistant/pkg/metrics"
)

func callTags(callSID string) map[string]string {
	return map[string]string{"call_sid": callSID, "stream_id": "MZ-" + callSID, "trace_id": "trace-" + callSID}
}

func TestTimelineObserverWritesPerCallJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTurnStart, Time: time.Now(), Tags: callTags("CA1")})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTurnStart, Time: time.Now(), Tags: callTags("CA2")})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSessionEnd, Time: time.Now(), Tags: callTags("CA1")})
	require.NoError(t, obs.Close())

	b, err := os.ReadFile(filepath.Join(dir, "CA1.jsonl"))
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	require.Len(t, lines, 2)
	var last map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &last))
	assert.Equal(t, metrics.EventSessionEnd, last["event"])
	assert.Equal(t, "CA1", last["call_sid"])

	_, err = os.Stat(filepath.Join(dir, "CA2.jsonl"))
	assert.NoError(t, err)
}

func TestCostObserverWritesOnSessionEnd(t *testing.T) {
	dir := t.TempDir()
	obs := NewCostObserver(dir)
	tags := callTags("CA7")
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSTTDone, Tags: tags, Fields: map[string]any{"audio_ms": 1500}})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventLLMDone, Tags: tags, Fields: map[string]any{"tokens": 42}})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTTSDone, Tags: tags, Fields: map[string]any{"audio_ms": 500}})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTurnDone, Tags: tags})

	sum, ok := obs.Summary("CA7")
	require.True(t, ok)
	assert.Equal(t, 1, sum.Turns)
	assert.InDelta(t, 1.5, sum.STTAudioSec, 0.001)

	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSessionEnd, Tags: tags})
	_, ok = obs.Summary("CA7")
	assert.False(t, ok)

	b, err := os.ReadFile(filepath.Join(dir, "CA7.cost.json"))
	require.NoError(t, err)
	var got CostSummary
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, 42, got.LLMTokenCount)
	assert.InDelta(t, 0.5, got.TTSAudioSec, 0.001)
}

func TestLatencyObserverLogsCompletedTurn(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLatencyObserver(slog.New(slog.NewJSONHandler(&buf, nil)))
	tags := callTags("CA3")
	turn := map[string]any{"turn": 1}

	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSTTDone, Tags: tags, Fields: turn, Value: 5})
	assert.Zero(t, obs.Pending())

	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTurnStart, Tags: tags, Fields: turn})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSTTDone, Tags: tags, Fields: turn, Value: 120})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventLLMDone, Tags: tags, Fields: turn, Value: 300})
	assert.Equal(t, 1, obs.Pending())
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTurnDone, Tags: tags, Fields: turn, Value: 700})
	assert.Zero(t, obs.Pending())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "turn_latency", entry["msg"])
	assert.EqualValues(t, 120, entry["stt_ms"])
	assert.EqualValues(t, 300, entry["llm_ms"])
	assert.EqualValues(t, 700, entry["total_ms"])
}

func TestPurgeArtifactsOnlyTouchesOldArtifacts(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "CA1.jsonl")
	fresh := filepath.Join(dir, "CA2.cost.json")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))
	}
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	n, err := PurgeArtifacts(dir, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)

	n, err = PurgeArtifacts(filepath.Join(dir, "missing"), time.Hour)
	assert.NoError(t, err)
	assert.Zero(t, n)
}
