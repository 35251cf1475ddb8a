package metrics

import "time"

// Event names emitted by the turn pipeline and the providers.
const (
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
	EventFrameDropped = "frame_dropped"

	EventTurnStart   = "turn_start"
	EventTurnEmpty   = "turn_empty"
	EventTurnAborted = "turn_aborted"
	EventTurnDone    = "turn_done"

	EventSTTDone  = "stt_done"
	EventLLMDone  = "llm_done"
	EventTTSDone  = "tts_done"
	EventAudioOut = "audio_out"

	EventBreakerOpen  = "breaker_open"
	EventBreakerClose = "breaker_close"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Multi fans events out to every non-nil observer.
type Multi []Observer

func (m Multi) RecordEvent(ev MetricsEvent) {
	for _, o := range m {
		if o != nil {
			o.RecordEvent(ev)
		}
	}
}

// Flush flushes every observer that supports it and returns the first error.
func (m Multi) Flush() error {
	var first error
	for _, o := range m {
		if f, ok := o.(Flusher); ok {
			if err := f.Flush(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
