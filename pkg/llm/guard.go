package llm

import (
	"context"

	"github.com/Mercy2112/ai-voice-assistant/pkg/errorsx"
	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

// Breaker stops calling a rate limited model for the breaker cooldown.
type Breaker struct {
	Inner   Adapter
	Breaker *resilience.CircuitBreaker
}

func NewBreaker(inner Adapter, cb *resilience.CircuitBreaker) *Breaker {
	if cb == nil {
		cb = resilience.NewCircuitBreaker(0, 0)
	}
	return &Breaker{Inner: inner, Breaker: cb}
}

func (b *Breaker) Name() string { return b.Inner.Name() }

func (b *Breaker) Generate(ctx context.Context, input Context) (Response, error) {
	var resp Response
	err := b.Breaker.Do(func() (err error) {
		resp, err = b.Inner.Generate(ctx, input)
		return err
	})
	if err != nil {
		return Response{}, errorsx.Guarded(err, b.Name(), errorsx.ReasonLLMCircuitOpen, errorsx.ReasonLLMRateLimit)
	}
	return resp, nil
}

// RetryAdapter retries transient Generate failures. Rate limits are left to
// the breaker.
type RetryAdapter struct {
	inner  Adapter
	policy resilience.RetryPolicy
}

func NewRetryAdapter(inner Adapter, policy resilience.RetryPolicy) *RetryAdapter {
	return &RetryAdapter{inner: inner, policy: policy}
}

func (a *RetryAdapter) Name() string { return a.inner.Name() }

func (a *RetryAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	var resp Response
	err := a.policy.Do(ctx, func(ctx context.Context) (err error) {
		resp, err = a.inner.Generate(ctx, input)
		return err
	})
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}
