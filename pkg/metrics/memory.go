package metrics

import "sync"

// MemoryObserver keeps every event; used by tests and the /calls report.
type MemoryObserver struct {
	mu     sync.Mutex
	events []MetricsEvent
}

func NewMemoryObserver() *MemoryObserver {
	return &MemoryObserver{}
}

func (m *MemoryObserver) RecordEvent(ev MetricsEvent) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (m *MemoryObserver) Events() []MetricsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MetricsEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Count reports how many events carry name, optionally limited to one call.
func (m *MemoryObserver) Count(name, callSID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Name != name {
			continue
		}
		if callSID != "" && ev.Tags["call_sid"] != callSID {
			continue
		}
		n++
	}
	return n
}
