package mock

import (
	"context"
	"sync"

	"github.com/Mercy2112/ai-voice-assistant/pkg/llm"
)

// LLMConfig scripts a completion client.
type LLMConfig struct {
	// Responses are returned in order; the last one repeats.
	Responses []string
	// Errors, when set at an index, fail that call instead.
	Errors map[int]error
	// Delay blocks each call unless ctx ends first.
	Delay  Delay
	Tokens int
}

// LLMAdapter is a scripted llm.Adapter that records every context it sees.
type LLMAdapter struct {
	cfg LLMConfig

	mu    sync.Mutex
	calls []llm.Context
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if len(cfg.Responses) == 0 {
		cfg.Responses = []string{"mock response"}
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	a.mu.Lock()
	n := len(a.calls)
	msgs := make([]llm.Message, len(input.Messages))
	copy(msgs, input.Messages)
	input.Messages = msgs
	a.calls = append(a.calls, input)
	a.mu.Unlock()

	if err := a.cfg.Delay.wait(ctx); err != nil {
		return llm.Response{}, err
	}
	if err := a.cfg.Errors[n]; err != nil {
		return llm.Response{}, err
	}
	text := a.cfg.Responses[min(n, len(a.cfg.Responses)-1)]
	return llm.Response{
		Text:         text,
		Usage:        llm.Usage{TotalTokens: a.cfg.Tokens},
		FinishReason: "stop",
	}, nil
}

// Calls returns the contexts passed to Generate so far.
func (a *LLMAdapter) Calls() []llm.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Context, len(a.calls))
	copy(out, a.calls)
	return out
}
