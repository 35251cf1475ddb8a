package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mercy2112/ai-voice-assistant/pkg/accumulator"
	"github.com/Mercy2112/ai-voice-assistant/pkg/conversation"
	"github.com/Mercy2112/ai-voice-assistant/pkg/errorsx"
	"github.com/Mercy2112/ai-voice-assistant/pkg/logging"
	"github.com/Mercy2112/ai-voice-assistant/pkg/metrics"
	"github.com/Mercy2112/ai-voice-assistant/pkg/turn"
)

// AgentConfig is the deployment's persona and default call objective.
type AgentConfig struct {
	Persona   string `mapstructure:"persona"`
	Objective string `mapstructure:"objective"`
	Greeting  string `mapstructure:"greeting"`
}

// StartInfo describes a call that just connected.
type StartInfo struct {
	CallSID  string
	StreamID string
	TraceID  string
	From     string
	// Objective overrides the deployment objective for this call.
	Objective string
}

// Ended is handed to end hooks once a session's worker has exited.
type Ended struct {
	Summary Summary
	Turns   []conversation.Turn
	Results []TurnResult
	Reason  string
	EndedAt time.Time
}

// EndHook runs after a session is torn down, before its stream is hung up.
type EndHook func(ctx context.Context, ended Ended)

// Deps configures every session a registry creates.
type Deps struct {
	Clients     Clients
	Pipeline    Config
	Accumulator accumulator.Config
	// Agent is read on every call start so persona edits apply to new calls.
	Agent    func() AgentConfig
	Observer metrics.Observer
	Logger   *slog.Logger
	OnEnd    []EndHook
}

// SessionRegistry maps call SIDs to live sessions. It is the only place
// sessions are created and destroyed.
type SessionRegistry struct {
	deps     Deps
	sessions sync.Map
	count    atomic.Int64
	draining atomic.Bool
	teardown sync.WaitGroup
	log      *slog.Logger
}

func NewSessionRegistry(deps Deps) *SessionRegistry {
	if deps.Observer == nil {
		deps.Observer = metrics.NoopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Agent == nil {
		deps.Agent = func() AgentConfig { return AgentConfig{} }
	}
	return &SessionRegistry{
		deps: deps,
		log:  logging.NewComponentLogger(deps.Logger, "registry"),
	}
}

// OnStart creates the session for a new call and starts its worker.
func (r *SessionRegistry) OnStart(ctx context.Context, info StartInfo, sink Sink) (*Session, error) {
	if r.draining.Load() {
		return nil, errorsx.Wrap(&errorsx.SessionError{CallID: info.CallSID, Err: errorsx.ErrDraining}, errorsx.ReasonSessionDraining)
	}
	if _, ok := r.sessions.Load(info.CallSID); ok {
		return nil, errorsx.DuplicateSession(info.CallSID)
	}

	agent := r.deps.Agent()
	objective := agent.Objective
	if info.Objective != "" {
		objective = info.Objective
	}
	tags := map[string]string{
		"call_sid":  info.CallSID,
		"stream_id": info.StreamID,
		"trace_id":  info.TraceID,
	}
	log := logging.WithCall(r.deps.Logger, info.CallSID, info.StreamID, info.TraceID)

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &Session{
		CallSID:   info.CallSID,
		StreamID:  info.StreamID,
		TraceID:   info.TraceID,
		From:      info.From,
		Objective: objective,
		Created:   time.Now(),
		memory:    conversation.NewMemory(agent.Persona, objective),
		acc:       accumulator.New(r.deps.Accumulator),
		fsm:       turn.NewMachine(),
		out:       newOutbound(sink),
		obs:       r.deps.Observer,
		log:       log,
		tags:      tags,
		ctx:       sctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	sess.pipeline = newTurnPipeline(r.deps.Pipeline, r.deps.Clients, sess.memory, sess.acc, sess.fsm, sess.out, r.deps.Observer, log, tags)
	sess.fsm.AddListener(turn.ListenerFunc(func(ev turn.StateChange) {
		log.Debug("turn_state", "from", ev.FromState.String(), "to", ev.ToState.String(), "reason", ev.Reason)
	}))

	if _, loaded := r.sessions.LoadOrStore(info.CallSID, sess); loaded {
		cancel()
		return nil, errorsx.DuplicateSession(info.CallSID)
	}
	r.count.Add(1)
	go sess.run()

	r.deps.Observer.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventSessionStart,
		Time: sess.Created,
		Tags: tags,
	})
	log.Info("session_started", "active", r.count.Load())
	return sess, nil
}

// OnMedia forwards one inbound payload to its call's accumulator.
func (r *SessionRegistry) OnMedia(callSID, payload string) error {
	sess, ok := r.Get(callSID)
	if !ok {
		return errorsx.UnknownSession(callSID)
	}
	return sess.Append(payload)
}

// OnStop tears down a call's session. Unknown or already stopped calls are
// ignored. Outbound audio is refused before OnStop returns; the worker is
// awaited and the stream hung up in the background.
func (r *SessionRegistry) OnStop(callSID, reason string) {
	v, ok := r.sessions.LoadAndDelete(callSID)
	if !ok {
		return
	}
	sess := v.(*Session)
	sess.ended.Store(true)
	sess.cancel()
	sess.out.close()
	r.count.Add(-1)

	r.teardown.Add(1)
	go func() {
		defer r.teardown.Done()
		<-sess.done
		r.finish(sess, reason)
	}()
}

func (r *SessionRegistry) finish(sess *Session, reason string) {
	ended := Ended{
		Summary: sess.Summary(),
		Turns:   sess.memory.Turns(),
		Results: sess.Results(),
		Reason:  reason,
		EndedAt: time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, hook := range r.deps.OnEnd {
		hook(ctx, ended)
	}
	if err := sess.out.hangup(); err != nil {
		sess.log.Warn("stream_close_failed", "error", err)
	}
	r.deps.Observer.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventSessionEnd,
		Time:  ended.EndedAt,
		Value: float64(ended.Summary.Age.Milliseconds()),
		Tags:  sess.tags,
		Fields: map[string]any{
			"turns":  ended.Summary.Turns,
			"reason": reason,
		},
	})
	sess.log.Info("session_ended",
		"reason", reason,
		"turns", ended.Summary.Turns,
		"frames_in", ended.Summary.FramesIn,
		"frames_out", ended.Summary.FramesOut,
	)
}

func (r *SessionRegistry) Get(callSID string) (*Session, bool) {
	if v, ok := r.sessions.Load(callSID); ok {
		return v.(*Session), true
	}
	return nil, false
}

// Sessions returns summaries of every live session.
func (r *SessionRegistry) Sessions() []Summary {
	var out []Summary
	r.sessions.Range(func(_, value any) bool {
		out = append(out, value.(*Session).Summary())
		return true
	})
	return out
}

func (r *SessionRegistry) CloseAll(reason string) {
	r.sessions.Range(func(key, _ any) bool {
		if callSID, ok := key.(string); ok {
			r.OnStop(callSID, reason)
		}
		return true
	})
}

func (r *SessionRegistry) Count() int64 {
	return r.count.Load()
}

func (r *SessionRegistry) SetDraining(v bool) {
	r.draining.Store(v)
}

func (r *SessionRegistry) Draining() bool {
	return r.draining.Load()
}

// Wait blocks until every started teardown has finished or ctx is done.
func (r *SessionRegistry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.teardown.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *SessionRegistry) WaitForEmpty(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if r.Count() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
