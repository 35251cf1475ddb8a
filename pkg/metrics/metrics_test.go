package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncObserverDeliversBeforeClose(t *testing.T) {
	mem := NewMemoryObserver()
	async := NewAsyncObserver(mem, 16)
	for i := 0; i < 10; i++ {
		async.RecordEvent(MetricsEvent{Name: EventTurnDone, Tags: map[string]string{"call_sid": "CA1"}})
	}
	async.Close()
	assert.Equal(t, 10, mem.Count(EventTurnDone, "CA1"))
	assert.Zero(t, mem.Count(EventTurnDone, "CA2"))

	async.RecordEvent(MetricsEvent{Name: EventTurnDone})
	assert.Len(t, mem.Events(), 10)
}

func TestSamplingObserver(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0.5)
	kept := 0
	for i := 0; i < 200; i++ {
		sid := fmt.Sprintf("CA%03d", i)
		if !s.Sampled(sid) {
			continue
		}
		kept++
		assert.True(t, s.Sampled(sid), "choice is stable per call")
		s.RecordEvent(MetricsEvent{Name: EventAudioOut, Tags: map[string]string{"call_sid": sid}})
		s.RecordEvent(MetricsEvent{Name: EventTurnDone, Tags: map[string]string{"call_sid": sid}})
	}
	assert.Greater(t, kept, 50)
	assert.Less(t, kept, 150)
	assert.Equal(t, kept, mem.Count(EventAudioOut, ""))
	assert.Equal(t, kept, mem.Count(EventTurnDone, ""))

	none := NewMemoryObserver()
	n := NewSamplingObserver(none, 0)
	n.RecordEvent(MetricsEvent{Name: EventAudioOut, Tags: map[string]string{"call_sid": "CA1"}})
	assert.Empty(t, none.Events())
	n.RecordEvent(MetricsEvent{Name: EventBreakerOpen})
	assert.Len(t, none.Events(), 1, "events outside a call always pass")
}

func TestJSONLObserver(t *testing.T) {
	var buf bytes.Buffer
	o := NewJSONLObserver(&buf)
	o.RecordEvent(MetricsEvent{
		Name:  EventSTTDone,
		Time:  time.Unix(0, 0),
		Value: 120,
		Tags:  map[string]string{"call_sid": "CA9"},
	})
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, EventSTTDone, line["name"])
	assert.Equal(t, "CA9", line["call_sid"])
	assert.EqualValues(t, 120, line["value"])
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewMemoryObserver(), NewMemoryObserver()
	m := Multi{a, nil, b}
	m.RecordEvent(MetricsEvent{Name: EventTurnStart})
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.NoError(t, m.Flush())
}
