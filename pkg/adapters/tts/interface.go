package tts

import (
	"context"

	"github.com/Mercy2112/ai-voice-assistant/pkg/errorsx"
	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

// Synthesizer renders reply text as call audio (8kHz mu-law).
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config contains vendor-agnostic TTS configuration.
type Config struct {
	SampleRate int    `mapstructure:"sample_rate"`
	Encoding   string `mapstructure:"encoding"`
}

// Func adapts a function to Synthesizer.
type Func func(ctx context.Context, text string) ([]byte, error)

func (f Func) Name() string { return "func" }

func (f Func) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f(ctx, text)
}

// Breaker stops calling a rate limited synthesizer for the breaker cooldown.
type Breaker struct {
	Inner   Synthesizer
	Breaker *resilience.CircuitBreaker
}

func NewBreaker(inner Synthesizer, cb *resilience.CircuitBreaker) *Breaker {
	if cb == nil {
		cb = resilience.NewCircuitBreaker(0, 0)
	}
	return &Breaker{Inner: inner, Breaker: cb}
}

func (b *Breaker) Name() string { return b.Inner.Name() }

func (b *Breaker) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	err := b.Breaker.Do(func() (err error) {
		audio, err = b.Inner.Synthesize(ctx, text)
		return err
	})
	if err != nil {
		return nil, errorsx.Guarded(err, b.Name(), errorsx.ReasonTTSCircuitOpen, errorsx.ReasonTTSRateLimit)
	}
	return audio, nil
}
