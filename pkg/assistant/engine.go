// Package assistant assembles the voice agent: it loads config, builds the
// vendor clients, and routes transport events into the session registry.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/Mercy2112/ai-voice-assistant/pkg/errorsx"
	"github.com/Mercy2112/ai-voice-assistant/pkg/frames"
	"github.com/Mercy2112/ai-voice-assistant/pkg/logging"
	"github.com/Mercy2112/ai-voice-assistant/pkg/metrics"
	"github.com/Mercy2112/ai-voice-assistant/pkg/observers"
	"github.com/Mercy2112/ai-voice-assistant/pkg/pipeline"
	"github.com/Mercy2112/ai-voice-assistant/pkg/redact"
	"github.com/Mercy2112/ai-voice-assistant/pkg/runner"
	"github.com/Mercy2112/ai-voice-assistant/pkg/transports"
)

type Options struct {
	Config    Config
	Providers *ProviderRegistry
	// Clients, when set, is used instead of building clients from
	// Config.Vendors.
	Clients   *pipeline.Clients
	Transport transports.Transport
	// Agent is read at every call start; defaults to Config.Agent.
	Agent     func() pipeline.AgentConfig
	OnEnd     []pipeline.EndHook
	Observers []metrics.Observer
	Logger    *slog.Logger
}

type drainable interface {
	SetDraining(bool)
}

type Engine struct {
	cfg       Config
	registry  *pipeline.SessionRegistry
	transport transports.Transport
	runner    *runner.LifecycleRunner
	obs       *metrics.AsyncObserver
	closers   []io.Closer
	log       *slog.Logger

	routeCtx    context.Context
	routeCancel context.CancelFunc
}

func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Transport == nil {
		return nil, errors.New("missing transport")
	}
	cfg := opts.Config
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	log := logging.NewComponentLogger(base, "engine")
	redact.SetEnabled(cfg.Privacy.RedactPII)

	log.Info("assistant_init",
		"environment", cfg.Environment,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"stt_provider", cfg.Vendors.STT.Provider,
		"tts_provider", cfg.Vendors.TTS.Provider,
		"transport", opts.Transport.Name(),
	)

	obs, closers := buildObservers(cfg.Observability, base, opts.Observers)

	var clients pipeline.Clients
	if opts.Clients != nil {
		clients = *opts.Clients
	} else {
		providers := opts.Providers
		if providers == nil {
			providers = DefaultProviders()
		}
		built, err := providers.BuildClients(ctx, cfg.Vendors, cfg.Resilience, obs)
		if err != nil {
			obs.Close()
			return nil, err
		}
		clients = built
	}

	agent := opts.Agent
	if agent == nil {
		static := cfg.Agent
		agent = func() pipeline.AgentConfig { return static }
	}

	registry := pipeline.NewSessionRegistry(pipeline.Deps{
		Clients:     clients,
		Pipeline:    cfg.Pipeline,
		Accumulator: cfg.Accumulator,
		Agent:       agent,
		Observer:    obs,
		Logger:      base,
		OnEnd:       opts.OnEnd,
	})

	routeCtx, routeCancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:         cfg,
		registry:    registry,
		transport:   opts.Transport,
		obs:         obs,
		closers:     closers,
		log:         log,
		routeCtx:    routeCtx,
		routeCancel: routeCancel,
	}

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{"message", "Voice Assistant Ready"}
			if rr, ok := e.transport.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			log.Info("engine_ready", fields...)
		},
		OnStop: func() {
			e.routeCancel()
			e.obs.Close()
			for _, c := range e.closers {
				_ = c.Close()
			}
			log.Info("shutdown", "goroutines", runtime.NumGoroutine(), "active_calls", e.registry.Count())
		},
	}
	timeout := time.Duration(cfg.Server.ShutdownTimeoutMs) * time.Millisecond
	e.runner = runner.NewLifecycleRunner(runner.DrainerFunc(e.drain), hooks, timeout)
	return e, nil
}

func buildObservers(cfg ObservabilityConfig, log *slog.Logger, extra []metrics.Observer) (*metrics.AsyncObserver, []io.Closer) {
	var logObs metrics.Observer = observers.NewLoggerObserver(log)
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		logObs = metrics.NewSamplingObserver(logObs, cfg.SampleRate)
	}
	list := metrics.Multi{observers.NewLatencyObserver(log), logObs}
	var closers []io.Closer
	if dir := strings.TrimSpace(cfg.ArtifactsDir); dir != "" {
		if cfg.RetentionDays > 0 {
			if n, err := observers.PurgeArtifacts(dir, time.Duration(cfg.RetentionDays)*24*time.Hour); err != nil {
				log.Warn("artifact_purge_failed", "dir", dir, "error", err)
			} else if n > 0 {
				log.Info("artifacts_purged", "dir", dir, "count", n)
			}
		}
		timeline := observers.NewTimelineObserver(dir)
		cost := observers.NewCostObserver(dir)
		list = append(list, timeline, cost)
		closers = append(closers, timeline, cost)
	}
	for _, o := range extra {
		if o != nil {
			list = append(list, o)
		}
	}
	return metrics.NewAsyncObserver(list, cfg.EventBuffer), closers
}

// Start starts the transport and the router. The engine drains once ctx is
// done or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// The transport outlives ctx so live calls can be drained first.
	if err := e.transport.Start(e.routeCtx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	go e.route(e.routeCtx)
	go func() {
		if err := e.runner.Run(ctx); err != nil {
			e.log.Warn("drain_incomplete", "error", err)
		}
	}()
	return nil
}

// Stop drains live calls and stops the transport.
func (e *Engine) Stop() error {
	return e.runner.Stop()
}

func (e *Engine) drain(ctx context.Context) error {
	if d, ok := e.transport.(drainable); ok {
		d.SetDraining(true)
	}
	err := e.registry.Drain(ctx)
	if stopErr := e.transport.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

func (e *Engine) route(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-e.transport.Recv():
			if !ok {
				return
			}
			e.handle(ctx, f)
		}
	}
}

func (e *Engine) handle(ctx context.Context, f frames.Frame) {
	meta := f.Meta()
	callSID := meta[frames.MetaCallSID]
	if callSID == "" {
		return
	}
	switch fr := f.(type) {
	case frames.MediaFrame:
		if err := e.registry.OnMedia(callSID, fr.Payload()); err != nil {
			if errors.Is(err, errorsx.ErrUnknownSession) {
				e.log.Debug("media_unknown_call", "call_sid", callSID)
				return
			}
			e.log.Warn("frame_rejected", "call_sid", callSID, "reason_code", string(errorsx.Reason(err)), "error", err)
		}
	case frames.SystemFrame:
		switch fr.Name() {
		case frames.SystemCallStart:
			e.startCall(ctx, meta)
		case frames.SystemCallEnd:
			reason := meta[frames.MetaCallEndReason]
			if reason == "" {
				reason = "completed"
			}
			e.registry.OnStop(callSID, reason)
		}
	}
}

func (e *Engine) startCall(ctx context.Context, meta map[string]string) {
	info := pipeline.StartInfo{
		CallSID:   meta[frames.MetaCallSID],
		StreamID:  meta[frames.MetaStreamID],
		TraceID:   meta[frames.MetaTraceID],
		From:      meta[frames.MetaFromNumber],
		Objective: meta[frames.MetaObjective],
	}
	sink := pipeline.TransportSink{Transport: e.transport, StreamID: info.StreamID, CallSID: info.CallSID}
	if _, err := e.registry.OnStart(ctx, info, sink); err != nil {
		e.log.Warn("session_rejected",
			"call_sid", info.CallSID,
			"stream_id", info.StreamID,
			"reason_code", string(errorsx.Reason(err)),
			"error", err)
		if errors.Is(err, errorsx.ErrDraining) {
			_ = sink.Close()
		}
	}
}

func (e *Engine) Registry() *pipeline.SessionRegistry { return e.registry }

func (e *Engine) Transport() transports.Transport { return e.transport }

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) State() runner.State { return e.runner.State() }

// Health reports whether the engine accepts new calls.
func (e *Engine) Health() error {
	if e.registry.Draining() {
		return errors.New("draining")
	}
	if s := e.runner.State(); s != runner.StateRunning {
		return fmt.Errorf("engine %s", s)
	}
	return nil
}
