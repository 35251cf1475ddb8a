package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mercy2112/ai-voice-assistant/pkg/errorsx"
	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

type scriptedAdapter struct {
	errs  []error
	calls int
}

func (s *scriptedAdapter) Name() string { return "scripted" }

func (s *scriptedAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return Response{}, err
		}
	}
	return Response{Text: "ok"}, nil
}

func TestContextSystem(t *testing.T) {
	c := Context{Messages: []Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "b"},
	}}
	assert.Equal(t, "a\n\nb", c.System())
}

func TestRetryAdapterRetriesTransient(t *testing.T) {
	inner := &scriptedAdapter{errs: []error{errors.New("502"), nil}}
	a := NewRetryAdapter(inner, resilience.RetryPolicy{MaxRetries: 2, Sleep: func(time.Duration) {}})
	resp, err := a.Generate(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryAdapterSkipsRateLimit(t *testing.T) {
	inner := &scriptedAdapter{errs: []error{resilience.RateLimitError{Provider: "x"}}}
	a := NewRetryAdapter(inner, resilience.RetryPolicy{MaxRetries: 2, Sleep: func(time.Duration) {}})
	_, err := a.Generate(context.Background(), Context{})
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimit(err))
	assert.Equal(t, 1, inner.calls)
}

func TestBreakerDeniesWhenOpen(t *testing.T) {
	inner := &scriptedAdapter{errs: []error{resilience.RateLimitError{Provider: "x"}}}
	a := NewBreaker(inner, resilience.NewCircuitBreaker(1, time.Hour))

	_, err := a.Generate(context.Background(), Context{})
	assert.Equal(t, errorsx.ReasonLLMRateLimit, errorsx.Reason(err))

	_, err = a.Generate(context.Background(), Context{})
	assert.Equal(t, errorsx.ReasonLLMCircuitOpen, errorsx.Reason(err))
	assert.True(t, resilience.IsRateLimit(err))
	assert.Equal(t, 1, inner.calls)
}

func TestRetryInsideBreaker(t *testing.T) {
	inner := &scriptedAdapter{errs: []error{errors.New("502"), errors.New("503"), nil}}
	a := NewRetryAdapter(NewBreaker(inner, nil), resilience.RetryPolicy{MaxRetries: 2, Sleep: func(time.Duration) {}})
	resp, err := a.Generate(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 3, inner.calls)
}
