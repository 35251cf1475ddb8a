package metrics

import (
	"hash/fnv"
	"math"
)

// SamplingObserver forwards events for a fraction of calls. The choice is
// made per call SID, so a sampled call keeps every one of its events.
// Events without a call SID always pass.
type SamplingObserver struct {
	inner     Observer
	all       bool
	threshold uint32
}

func NewSamplingObserver(inner Observer, rate float64) *SamplingObserver {
	rate = math.Max(0, math.Min(1, rate))
	return &SamplingObserver{
		inner:     inner,
		all:       rate >= 1,
		threshold: uint32(rate * math.MaxUint32),
	}
}

// Sampled reports whether events for callSID are forwarded.
func (s *SamplingObserver) Sampled(callSID string) bool {
	if s.all || callSID == "" {
		return true
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(callSID))
	return h.Sum32() < s.threshold
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if s.Sampled(ev.Tags["call_sid"]) {
		s.inner.RecordEvent(ev)
	}
}
