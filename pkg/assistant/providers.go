package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Mercy2112/ai-voice-assistant/pkg/adapters/stt"
	"github.com/Mercy2112/ai-voice-assistant/pkg/adapters/tts"
	"github.com/Mercy2112/ai-voice-assistant/pkg/configutil"
	"github.com/Mercy2112/ai-voice-assistant/pkg/llm"
	"github.com/Mercy2112/ai-voice-assistant/pkg/metrics"
	"github.com/Mercy2112/ai-voice-assistant/pkg/pipeline"
	"github.com/Mercy2112/ai-voice-assistant/pkg/providers/deepgram"
	"github.com/Mercy2112/ai-voice-assistant/pkg/providers/elevenlabs"
	"github.com/Mercy2112/ai-voice-assistant/pkg/providers/gemini"
	"github.com/Mercy2112/ai-voice-assistant/pkg/providers/mock"
	"github.com/Mercy2112/ai-voice-assistant/pkg/providers/openai"
	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

type STTFactory func(ctx context.Context, settings configutil.Settings) (stt.Transcriber, error)
type TTSFactory func(ctx context.Context, settings configutil.Settings) (tts.Synthesizer, error)
type LLMFactory func(ctx context.Context, settings configutil.Settings) (llm.Adapter, error)

// ProviderRegistry builds vendor clients by provider name. Clients are
// shared by every call, so they must be safe for concurrent use.
type ProviderRegistry struct {
	stt map[string]STTFactory
	tts map[string]TTSFactory
	llm map[string]LLMFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt: make(map[string]STTFactory),
		tts: make(map[string]TTSFactory),
		llm: make(map[string]LLMFactory),
	}
}

// DefaultProviders registers every bundled vendor.
func DefaultProviders() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterSTT("openai", openaiSTT)
	r.RegisterSTT("deepgram", deepgramSTT)
	r.RegisterSTT("mock", mockSTT)
	r.RegisterTTS("openai", openaiTTS)
	r.RegisterTTS("elevenlabs", elevenlabsTTS)
	r.RegisterTTS("mock", mockTTS)
	r.RegisterLLM("openai", openaiLLM)
	r.RegisterLLM("gemini", geminiLLM)
	r.RegisterLLM("mock", mockLLM)
	return r
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *ProviderRegistry) RegisterSTT(name string, factory STTFactory) {
	r.stt[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterTTS(name string, factory TTSFactory) {
	r.tts[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[normalizeName(name)] = factory
}

func (r *ProviderRegistry) BuildSTT(ctx context.Context, vc VendorConfig) (stt.Transcriber, error) {
	fn := r.stt[normalizeName(vc.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", vc.Provider)
	}
	return fn(ctx, vc.Settings)
}

func (r *ProviderRegistry) BuildTTS(ctx context.Context, vc VendorConfig) (tts.Synthesizer, error) {
	fn := r.tts[normalizeName(vc.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", vc.Provider)
	}
	return fn(ctx, vc.Settings)
}

func (r *ProviderRegistry) BuildLLM(ctx context.Context, vc VendorConfig) (llm.Adapter, error) {
	fn := r.llm[normalizeName(vc.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", vc.Provider)
	}
	return fn(ctx, vc.Settings)
}

// BuildClients builds the three vendor clients and wraps each one in its
// rate-limit breaker. Completions are also retried on transient errors.
func (r *ProviderRegistry) BuildClients(ctx context.Context, vendors VendorsConfig, rc ResilienceConfig, obs metrics.Observer) (pipeline.Clients, error) {
	transcriber, err := r.BuildSTT(ctx, vendors.STT)
	if err != nil {
		return pipeline.Clients{}, fmt.Errorf("stt %s: %w", vendors.STT.Provider, err)
	}
	synth, err := r.BuildTTS(ctx, vendors.TTS)
	if err != nil {
		return pipeline.Clients{}, fmt.Errorf("tts %s: %w", vendors.TTS.Provider, err)
	}
	adapter, err := r.BuildLLM(ctx, vendors.LLM)
	if err != nil {
		return pipeline.Clients{}, fmt.Errorf("llm %s: %w", vendors.LLM.Provider, err)
	}
	var completion llm.Adapter = llm.NewBreaker(adapter, breaker("llm", vendors.LLM.Provider, rc, obs))
	if rc.LLMRetries > 0 {
		policy := resilience.NewRetryPolicy(rc.LLMRetries, time.Duration(rc.RetryBaseMs)*time.Millisecond)
		policy.MaxBackoff = 2 * time.Second
		policy.Jitter = 0.2
		completion = llm.NewRetryAdapter(completion, policy)
	}
	return pipeline.Clients{
		STT: stt.NewBreaker(transcriber, breaker("stt", vendors.STT.Provider, rc, obs)),
		LLM: completion,
		TTS: tts.NewBreaker(synth, breaker("tts", vendors.TTS.Provider, rc, obs)),
	}, nil
}

// breaker reports trips and recoveries of one provider's breaker.
func breaker(component, provider string, rc ResilienceConfig, obs metrics.Observer) *resilience.CircuitBreaker {
	cb := resilience.NewCircuitBreaker(rc.BreakerThreshold, time.Duration(rc.BreakerCooldownMs)*time.Millisecond)
	if obs == nil {
		return cb
	}
	tags := map[string]string{"component": component, "provider": normalizeName(provider)}
	cb.Notify(func(open bool) {
		name := metrics.EventBreakerClose
		if open {
			name = metrics.EventBreakerOpen
		}
		obs.RecordEvent(metrics.MetricsEvent{Name: name, Time: time.Now(), Tags: tags})
	})
	return cb
}

var keyed = []string{"api_key"}

func schemaFor(cfg any, required ...string) configutil.Schema {
	return configutil.Schema{Required: required, Optional: configutil.Keys(cfg)}
}

func decodeOpenAI(settings configutil.Settings) (openai.Config, error) {
	var cfg openai.Config
	err := configutil.Decode(settings, schemaFor(cfg, keyed...), &cfg)
	return cfg, err
}

func openaiSTT(_ context.Context, settings configutil.Settings) (stt.Transcriber, error) {
	cfg, err := decodeOpenAI(settings)
	if err != nil {
		return nil, err
	}
	return openai.NewTranscriber(cfg), nil
}

func openaiTTS(_ context.Context, settings configutil.Settings) (tts.Synthesizer, error) {
	cfg, err := decodeOpenAI(settings)
	if err != nil {
		return nil, err
	}
	return openai.NewSynthesizer(cfg), nil
}

func openaiLLM(_ context.Context, settings configutil.Settings) (llm.Adapter, error) {
	cfg, err := decodeOpenAI(settings)
	if err != nil {
		return nil, err
	}
	return openai.NewAdapter(cfg), nil
}

func deepgramSTT(_ context.Context, settings configutil.Settings) (stt.Transcriber, error) {
	var cfg deepgram.Config
	if err := configutil.Decode(settings, schemaFor(cfg, keyed...), &cfg); err != nil {
		return nil, err
	}
	return deepgram.New(cfg), nil
}

func elevenlabsTTS(_ context.Context, settings configutil.Settings) (tts.Synthesizer, error) {
	var cfg elevenlabs.Config
	if err := configutil.Decode(settings, schemaFor(cfg, "api_key", "voice_id"), &cfg); err != nil {
		return nil, err
	}
	return elevenlabs.New(cfg), nil
}

func geminiLLM(ctx context.Context, settings configutil.Settings) (llm.Adapter, error) {
	var cfg gemini.Config
	if err := configutil.Decode(settings, schemaFor(cfg, keyed...), &cfg); err != nil {
		return nil, err
	}
	return gemini.NewAdapter(ctx, cfg)
}

// mockSettings scripts the bundled mock vendors from config.
type mockSettings struct {
	Transcripts  []string `mapstructure:"transcripts"`
	Responses    []string `mapstructure:"responses"`
	DelayMs      int      `mapstructure:"delay_ms"`
	BytesPerChar int      `mapstructure:"bytes_per_char"`
	Tokens       int      `mapstructure:"tokens"`
}

func decodeMock(settings configutil.Settings) (mockSettings, error) {
	var cfg mockSettings
	err := configutil.Decode(settings, schemaFor(cfg), &cfg)
	return cfg, err
}

func mockSTT(_ context.Context, settings configutil.Settings) (stt.Transcriber, error) {
	cfg, err := decodeMock(settings)
	if err != nil {
		return nil, err
	}
	return mock.NewSTT(mock.STTConfig{
		Transcripts: cfg.Transcripts,
		Delay:       mock.Delay(time.Duration(cfg.DelayMs) * time.Millisecond),
	}), nil
}

func mockTTS(_ context.Context, settings configutil.Settings) (tts.Synthesizer, error) {
	cfg, err := decodeMock(settings)
	if err != nil {
		return nil, err
	}
	return mock.NewTTS(mock.TTSConfig{
		BytesPerChar: cfg.BytesPerChar,
		Delay:        mock.Delay(time.Duration(cfg.DelayMs) * time.Millisecond),
	}), nil
}

func mockLLM(_ context.Context, settings configutil.Settings) (llm.Adapter, error) {
	cfg, err := decodeMock(settings)
	if err != nil {
		return nil, err
	}
	return mock.NewLLMAdapter(mock.LLMConfig{
		Responses: cfg.Responses,
		Tokens:    cfg.Tokens,
		Delay:     mock.Delay(time.Duration(cfg.DelayMs) * time.Millisecond),
	}), nil
}
