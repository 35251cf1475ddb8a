package stt

import (
	"context"

	"github.com/Mercy2112/ai-voice-assistant/pkg/errorsx"
	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

// Transcriber turns one utterance of raw call audio (8kHz mu-law) into text.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Transcribe returns the caller's words; an empty string means nothing
	// intelligible was said.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Config contains vendor-agnostic STT configuration.
type Config struct {
	SampleRate int    `mapstructure:"sample_rate"`
	Encoding   string `mapstructure:"encoding"`
	Language   string `mapstructure:"language"`
}

// Func adapts a function to Transcriber.
type Func func(ctx context.Context, audio []byte) (string, error)

func (f Func) Name() string { return "func" }

func (f Func) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f(ctx, audio)
}

// Breaker stops calling a rate limited transcriber for the breaker cooldown.
type Breaker struct {
	Inner   Transcriber
	Breaker *resilience.CircuitBreaker
}

func NewBreaker(inner Transcriber, cb *resilience.CircuitBreaker) *Breaker {
	if cb == nil {
		cb = resilience.NewCircuitBreaker(0, 0)
	}
	return &Breaker{Inner: inner, Breaker: cb}
}

func (b *Breaker) Name() string { return b.Inner.Name() }

func (b *Breaker) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var text string
	err := b.Breaker.Do(func() (err error) {
		text, err = b.Inner.Transcribe(ctx, audio)
		return err
	})
	if err != nil {
		return "", errorsx.Guarded(err, b.Name(), errorsx.ReasonSTTCircuitOpen, errorsx.ReasonSTTRateLimit)
	}
	return text, nil
}
