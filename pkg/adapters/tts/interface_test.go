package tts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

func TestBreakerPassesThrough(t *testing.T) {
	inner := Func(func(ctx context.Context, text string) ([]byte, error) {
		return []byte(text), nil
	})
	b := NewBreaker(inner, resilience.NewCircuitBreaker(1, time.Hour))
	audio, err := b.Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), audio)
	assert.Equal(t, "func", b.Name())
}

func TestBreakerIgnoresPlainErrors(t *testing.T) {
	inner := Func(func(ctx context.Context, text string) ([]byte, error) {
		return nil, errors.New("boom")
	})
	b := NewBreaker(inner, resilience.NewCircuitBreaker(1, time.Hour))
	for i := 0; i < 3; i++ {
		_, err := b.Synthesize(context.Background(), "hi")
		assert.EqualError(t, err, "boom")
	}
	assert.True(t, b.Breaker.Allow())
}
