package observers

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/Mercy2112/ai-voice-assistant/pkg/metrics"
)

// LatencyObserver collects per-stage latencies of one turn and logs them
// once the turn finishes or aborts.
type LatencyObserver struct {
	mu    sync.Mutex
	turns map[string]*turnTrace
	log   *slog.Logger
}

type turnTrace struct {
	callSID string
	traceID string
	turn    int
	sttMs   float64
	llmMs   float64
	ttsMs   float64
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		turns: make(map[string]*turnTrace),
		log:   log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	callSID := ev.Tags["call_sid"]
	if callSID == "" {
		return
	}
	turn := fieldInt(ev.Fields, "turn")
	key := callSID + "/" + strconv.Itoa(turn)

	o.mu.Lock()
	defer o.mu.Unlock()
	if ev.Name == metrics.EventSessionEnd {
		for k, t := range o.turns {
			if t.callSID == callSID {
				delete(o.turns, k)
			}
		}
		return
	}
	t := o.turns[key]
	if t == nil {
		if ev.Name != metrics.EventTurnStart {
			return
		}
		t = &turnTrace{callSID: callSID, traceID: ev.Tags["trace_id"], turn: turn}
		o.turns[key] = t
	}
	switch ev.Name {
	case metrics.EventSTTDone:
		t.sttMs = ev.Value
	case metrics.EventLLMDone:
		t.llmMs = ev.Value
	case metrics.EventTTSDone:
		t.ttsMs = ev.Value
	case metrics.EventTurnDone:
		o.log.Info("turn_latency",
			"call_sid", t.callSID,
			"trace_id", t.traceID,
			"turn", t.turn,
			"stt_ms", int64(t.sttMs),
			"llm_ms", int64(t.llmMs),
			"tts_ms", int64(t.ttsMs),
			"total_ms", int64(ev.Value),
		)
		delete(o.turns, key)
	case metrics.EventTurnAborted, metrics.EventTurnEmpty:
		delete(o.turns, key)
	}
}

// Pending reports turns that have started but not finished.
func (o *LatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.turns)
}

func fieldInt(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func fieldFloat(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return 0
}
