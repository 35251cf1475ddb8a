package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Mercy2112/ai-voice-assistant/pkg/metrics"
)

// CostSummary is the billable usage of one call.
type CostSummary struct {
	CallSID       string  `json:"call_sid"`
	TraceID       string  `json:"trace_id,omitempty"`
	Turns         int     `json:"turns"`
	STTAudioSec   float64 `json:"stt_audio_seconds"`
	TTSAudioSec   float64 `json:"tts_audio_seconds"`
	LLMTokenCount int     `json:"llm_tokens"`
	RecordedAtUTC string  `json:"recorded_at_utc"`
}

// CostObserver accumulates usage per call and writes <call>.cost.json to dir
// when the session ends.
type CostObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*CostSummary
}

func NewCostObserver(dir string) *CostObserver {
	return &CostObserver{dir: dir, stats: make(map[string]*CostSummary)}
}

func (o *CostObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" {
		return
	}
	callSID := ev.Tags["call_sid"]
	if callSID == "" {
		return
	}

	o.mu.Lock()
	stat := o.stats[callSID]
	if stat == nil {
		stat = &CostSummary{CallSID: callSID, TraceID: ev.Tags["trace_id"]}
		o.stats[callSID] = stat
	}
	switch ev.Name {
	case metrics.EventSTTDone:
		stat.STTAudioSec += fieldFloat(ev.Fields, "audio_ms") / 1000
	case metrics.EventTTSDone:
		stat.TTSAudioSec += fieldFloat(ev.Fields, "audio_ms") / 1000
	case metrics.EventLLMDone:
		stat.LLMTokenCount += fieldInt(ev.Fields, "tokens")
	case metrics.EventTurnDone:
		stat.Turns++
	case metrics.EventSessionEnd:
		delete(o.stats, callSID)
		o.mu.Unlock()
		_ = o.write(stat)
		return
	}
	o.mu.Unlock()
}

// Summary returns a copy of the running totals for a call.
func (o *CostObserver) Summary(callSID string) (CostSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	stat, ok := o.stats[callSID]
	if !ok {
		return CostSummary{}, false
	}
	return *stat, true
}

// Close writes any calls that never reported session end.
func (o *CostObserver) Close() error {
	o.mu.Lock()
	pending := o.stats
	o.stats = make(map[string]*CostSummary)
	o.mu.Unlock()
	var errOut error
	for _, stat := range pending {
		errOut = errors.Join(errOut, o.write(stat))
	}
	return errOut
}

func (o *CostObserver) write(stat *CostSummary) error {
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
	b, err := json.MarshalIndent(stat, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(o.dir, sanitizeID(stat.CallSID)+".cost.json"), b, 0o644)
}

var _ metrics.Observer = (*CostObserver)(nil)
