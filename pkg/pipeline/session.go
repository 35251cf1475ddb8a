package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mercy2112/ai-voice-assistant/pkg/accumulator"
	"github.com/Mercy2112/ai-voice-assistant/pkg/codec"
	"github.com/Mercy2112/ai-voice-assistant/pkg/conversation"
	"github.com/Mercy2112/ai-voice-assistant/pkg/metrics"
	"github.com/Mercy2112/ai-voice-assistant/pkg/turn"
)

// Session is the live state of one phone call: its memory, its audio
// buffer, its turn machine and the goroutine that runs turns one at a time.
type Session struct {
	CallSID   string
	StreamID  string
	TraceID   string
	From      string
	Objective string
	Created   time.Time

	memory   *conversation.Memory
	acc      *accumulator.Accumulator
	fsm      *turn.Machine
	pipeline *TurnPipeline
	out      *outbound
	obs      metrics.Observer
	log      *slog.Logger
	tags     map[string]string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	results []TurnResult
	frames  atomic.Int64
	ended   atomic.Bool
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.acc.Ready():
		}
		if s.ctx.Err() != nil {
			return
		}
		res := s.pipeline.RunTurn(s.ctx)
		if res.Outcome == OutcomeBusy {
			continue
		}
		s.mu.Lock()
		s.results = append(s.results, res)
		s.mu.Unlock()
	}
}

// Append decodes one inbound media payload and buffers it.
func (s *Session) Append(payload string) error {
	if s.ended.Load() {
		return nil
	}
	chunk, err := codec.DecodePayload(payload)
	if err != nil {
		return err
	}
	s.frames.Add(1)
	if !s.acc.Append(chunk) {
		s.obs.RecordEvent(metrics.MetricsEvent{
			Name:   metrics.EventFrameDropped,
			Time:   time.Now(),
			Tags:   s.tags,
			Fields: map[string]any{"bytes": len(chunk)},
		})
	}
	return nil
}

// Memory exposes the call's dialogue history.
func (s *Session) Memory() *conversation.Memory { return s.memory }

// State returns the current turn state.
func (s *Session) State() turn.State { return s.fsm.State() }

// Results returns the turns completed so far.
func (s *Session) Results() []TurnResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TurnResult, len(s.results))
	copy(out, s.results)
	return out
}

// Done is closed once the session worker has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Summary is a point-in-time view of a session.
type Summary struct {
	CallSID      string        `json:"call_sid"`
	StreamID     string        `json:"stream_id"`
	TraceID      string        `json:"trace_id"`
	From         string        `json:"from,omitempty"`
	Objective    string        `json:"objective"`
	State        string        `json:"state"`
	InTurn       bool          `json:"in_turn"`
	Turns        int           `json:"turns"`
	MemoryLen    int           `json:"memory_len"`
	FramesIn     int64         `json:"frames_in"`
	FramesOut    int64         `json:"frames_out"`
	FramesDrop   int64         `json:"frames_dropped"`
	Age          time.Duration `json:"age_ns"`
	CreatedAtUTC time.Time     `json:"created_at"`
}

func (s *Session) Summary() Summary {
	state := s.fsm.State()
	return Summary{
		CallSID:      s.CallSID,
		StreamID:     s.StreamID,
		TraceID:      s.TraceID,
		From:         s.From,
		Objective:    s.Objective,
		State:        state.String(),
		InTurn:       state.Busy(),
		Turns:        len(s.Results()),
		MemoryLen:    s.memory.Len(),
		FramesIn:     s.frames.Load(),
		FramesOut:    s.out.frames.Load(),
		FramesDrop:   s.acc.Dropped(),
		Age:          time.Since(s.Created),
		CreatedAtUTC: s.Created.UTC(),
	}
}
