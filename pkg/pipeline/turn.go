package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Mercy2112/ai-voice-assistant/pkg/accumulator"
	"github.com/Mercy2112/ai-voice-assistant/pkg/adapters/stt"
	"github.com/Mercy2112/ai-voice-assistant/pkg/adapters/tts"
	"github.com/Mercy2112/ai-voice-assistant/pkg/codec"
	"github.com/Mercy2112/ai-voice-assistant/pkg/conversation"
	"github.com/Mercy2112/ai-voice-assistant/pkg/errorsx"
	"github.com/Mercy2112/ai-voice-assistant/pkg/llm"
	"github.com/Mercy2112/ai-voice-assistant/pkg/metrics"
	"github.com/Mercy2112/ai-voice-assistant/pkg/processors"
	"github.com/Mercy2112/ai-voice-assistant/pkg/redact"
	"github.com/Mercy2112/ai-voice-assistant/pkg/turn"
)

// Config tunes one session's turn pipeline.
type Config struct {
	TranscribeTimeoutMs int     `mapstructure:"transcribe_timeout_ms"`
	CompleteTimeoutMs   int     `mapstructure:"complete_timeout_ms"`
	SynthesizeTimeoutMs int     `mapstructure:"synthesize_timeout_ms"`
	EmitTimeoutMs       int     `mapstructure:"emit_timeout_ms"`
	MinTranscriptChars  int     `mapstructure:"min_transcript_chars"`
	MaxFrameBytes       int     `mapstructure:"max_frame_bytes"`
	Temperature         float64 `mapstructure:"temperature"`
	MaxTokens           int     `mapstructure:"max_tokens"`
	// Text rewrites transcripts and replies between stages.
	Text processors.Config `mapstructure:"text"`
}

func (c Config) WithDefaults() Config {
	if c.TranscribeTimeoutMs <= 0 {
		c.TranscribeTimeoutMs = 10000
	}
	if c.CompleteTimeoutMs <= 0 {
		c.CompleteTimeoutMs = 15000
	}
	if c.SynthesizeTimeoutMs <= 0 {
		c.SynthesizeTimeoutMs = 15000
	}
	if c.EmitTimeoutMs <= 0 {
		c.EmitTimeoutMs = 30000
	}
	if c.MinTranscriptChars <= 0 {
		c.MinTranscriptChars = 2
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = codec.FrameBytes
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.4
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 200
	}
	return c
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Outcome is how a turn ended.
type Outcome string

const (
	OutcomeSpoken  Outcome = "spoken"
	OutcomeEmpty   Outcome = "empty"
	OutcomeAborted Outcome = "aborted"
	OutcomeBusy    Outcome = "busy"
)

// TurnResult reports one RunTurn call.
type TurnResult struct {
	Turn       int
	Outcome    Outcome
	Transcript string
	Reply      string
	AudioBytes int
	Frames     int
	Err        error
	Duration   time.Duration
}

// TurnPipeline runs listen, transcribe, complete, synthesize and speak for
// one utterance at a time. It borrows the session's memory, accumulator and
// outbound guard and keeps no state across turns beyond a counter.
type TurnPipeline struct {
	cfg    Config
	stt    stt.Transcriber
	llm    llm.Adapter
	tts    tts.Synthesizer
	heard  processors.Chain
	spoken processors.Chain
	memory *conversation.Memory
	acc    *accumulator.Accumulator
	fsm    *turn.Machine
	out    *outbound
	obs    metrics.Observer
	log    *slog.Logger
	tags   map[string]string
	turns  int
}

// Clients bundles the three remote services a turn calls.
type Clients struct {
	STT stt.Transcriber
	LLM llm.Adapter
	TTS tts.Synthesizer
}

func newTurnPipeline(cfg Config, clients Clients, memory *conversation.Memory, acc *accumulator.Accumulator, fsm *turn.Machine, out *outbound, obs metrics.Observer, log *slog.Logger, tags map[string]string) *TurnPipeline {
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	heard, spoken := cfg.Text.Build()
	return &TurnPipeline{
		cfg:    cfg.WithDefaults(),
		heard:  heard,
		spoken: spoken,
		stt:    clients.STT,
		llm:    clients.LLM,
		tts:    clients.TTS,
		memory: memory,
		acc:    acc,
		fsm:    fsm,
		out:    out,
		obs:    obs,
		log:    log,
		tags:   tags,
	}
}

// RunTurn processes the utterance currently buffered. It always leaves the
// state machine in IDLE.
func (p *TurnPipeline) RunTurn(ctx context.Context) TurnResult {
	start := time.Now()
	if err := p.fsm.Transition(turn.StateListening, "utterance ready"); err != nil {
		return TurnResult{Outcome: OutcomeBusy, Err: err}
	}
	audio, ok := p.acc.Drain()
	if !ok {
		_ = p.fsm.Transition(turn.StateIdle, "nothing buffered")
		return TurnResult{Outcome: OutcomeEmpty}
	}

	p.turns++
	res := TurnResult{Turn: p.turns}
	audioMs := codec.DurationMs(len(audio))
	p.record(metrics.EventTurnStart, float64(audioMs), map[string]any{"turn": res.Turn, "audio_ms": audioMs})

	_ = p.fsm.Transition(turn.StateTranscribing, "audio drained")
	stageStart := time.Now()
	transcript, err := runStage(ctx, errorsx.StageTranscribe, ms(p.cfg.TranscribeTimeoutMs), func(ctx context.Context) (string, error) {
		return p.stt.Transcribe(ctx, audio)
	})
	if err != nil {
		return p.abort(res, start, err)
	}
	transcript = strings.TrimSpace(p.heard.Process(transcript))
	p.record(metrics.EventSTTDone, msSince(stageStart), map[string]any{"turn": res.Turn, "audio_ms": audioMs, "chars": len(transcript)})
	if utf8.RuneCountInString(transcript) < p.cfg.MinTranscriptChars {
		_ = p.fsm.Transition(turn.StateIdle, "empty transcript")
		p.record(metrics.EventTurnEmpty, 0, map[string]any{"turn": res.Turn})
		p.log.Debug("turn_empty", "turn", res.Turn, "audio_ms", audioMs)
		res.Outcome = OutcomeEmpty
		res.Duration = time.Since(start)
		return res
	}
	res.Transcript = transcript

	_ = p.fsm.Transition(turn.StateCompleting, "transcript received")
	p.memory.AppendUser(transcript)
	p.log.Info("user_turn", "turn", res.Turn, "text", redact.Text(transcript))
	input := p.memory.Context(p.cfg.Temperature, p.cfg.MaxTokens)
	stageStart = time.Now()
	resp, err := runStage(ctx, errorsx.StageComplete, ms(p.cfg.CompleteTimeoutMs), func(ctx context.Context) (llm.Response, error) {
		resp, err := p.llm.Generate(ctx, input)
		if err == nil {
			resp.Text = p.spoken.Process(resp.Text)
			if strings.TrimSpace(resp.Text) == "" {
				err = errors.New("empty completion")
			}
		}
		return resp, err
	})
	if err != nil {
		return p.abort(res, start, err)
	}
	reply := strings.TrimSpace(resp.Text)
	p.record(metrics.EventLLMDone, msSince(stageStart), map[string]any{"turn": res.Turn, "tokens": resp.Usage.TotalTokens})
	if err := p.memory.AppendAssistant(reply); err != nil {
		return p.abort(res, start, errorsx.NewStageError(errorsx.StageComplete, false, err))
	}
	res.Reply = reply
	p.log.Info("assistant_turn", "turn", res.Turn, "text", redact.Text(reply))

	_ = p.fsm.Transition(turn.StateSynthesizing, "completion received")
	stageStart = time.Now()
	speech, err := runStage(ctx, errorsx.StageSynthesize, ms(p.cfg.SynthesizeTimeoutMs), func(ctx context.Context) ([]byte, error) {
		audio, err := p.tts.Synthesize(ctx, reply)
		if err == nil && len(audio) == 0 {
			err = errors.New("no audio returned")
		}
		return audio, err
	})
	if err != nil {
		return p.abort(res, start, err)
	}
	res.AudioBytes = len(speech)
	p.record(metrics.EventTTSDone, msSince(stageStart), map[string]any{"turn": res.Turn, "audio_ms": codec.DurationMs(len(speech))})

	_ = p.fsm.Transition(turn.StateSpeaking, "audio received")
	n, err := p.emit(ctx, res.Turn, speech)
	res.Frames = n
	if err != nil {
		return p.abort(res, start, err)
	}
	p.record(metrics.EventAudioOut, float64(n), map[string]any{"turn": res.Turn, "audio_ms": codec.DurationMs(len(speech))})

	_ = p.fsm.Transition(turn.StateIdle, "emission complete")
	res.Outcome = OutcomeSpoken
	res.Duration = time.Since(start)
	p.record(metrics.EventTurnDone, float64(res.Duration.Milliseconds()), map[string]any{"turn": res.Turn})
	return res
}

// emit hands every encoded frame to the outbound guard, then a mark naming
// the turn. Emission is complete once the transport has accepted them.
func (p *TurnPipeline) emit(ctx context.Context, turnNo int, audio []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, ms(p.cfg.EmitTimeoutMs))
	defer cancel()
	sent := 0
	for _, payload := range codec.EncodeFrames(audio, p.cfg.MaxFrameBytes) {
		if err := p.out.sendMedia(ctx, payload); err != nil {
			return sent, errorsx.NewStageError(errorsx.StageEmit, errors.Is(err, context.DeadlineExceeded), err)
		}
		sent++
	}
	if err := p.out.mark(ctx, "turn-"+strconv.Itoa(turnNo)); err != nil {
		return sent, errorsx.NewStageError(errorsx.StageEmit, false, err)
	}
	return sent, nil
}

func (p *TurnPipeline) abort(res TurnResult, start time.Time, err error) TurnResult {
	state := p.fsm.State()
	p.fsm.Abort(err.Error())
	res.Outcome = OutcomeAborted
	res.Err = err
	res.Duration = time.Since(start)

	stage := ""
	var se *errorsx.StageError
	if errors.As(err, &se) {
		stage = string(se.Stage)
	}
	reason := errorsx.Reason(err)
	p.record(metrics.EventTurnAborted, 0, map[string]any{"turn": res.Turn, "stage": stage, "reason_code": string(reason)})
	attrs := []any{
		"turn", res.Turn,
		"state", state.String(),
		"stage", stage,
		"reason_code", string(reason),
		"error", err.Error(),
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrOutboundClosed) {
		p.log.Info("turn_cancelled", attrs...)
	} else {
		p.log.Warn("turn_aborted", attrs...)
	}
	return res
}

func (p *TurnPipeline) record(name string, value float64, fields map[string]any) {
	p.obs.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Value:  value,
		Tags:   p.tags,
		Fields: fields,
	})
}

type stageResult[T any] struct {
	val T
	err error
}

// runStage calls fn under a per-stage deadline. The result is abandoned if
// the deadline passes or the session is cancelled, even when fn ignores its
// context; a result arriving after cancellation is discarded.
func runStage[T any](ctx context.Context, stage errorsx.Stage, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan stageResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stageResult[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(sctx)
		done <- stageResult[T]{val: v, err: err}
	}()

	var res stageResult[T]
	select {
	case res = <-done:
	case <-sctx.Done():
		res.err = sctx.Err()
	}
	if ctx.Err() != nil {
		return zero, errorsx.NewStageError(stage, false, ctx.Err())
	}
	if res.err != nil {
		timedOut := errors.Is(sctx.Err(), context.DeadlineExceeded)
		return zero, errorsx.NewStageError(stage, timedOut, res.err)
	}
	return res.val, nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Milliseconds())
}
