package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/Mercy2112/ai-voice-assistant/pkg/llm"
)

// Adapter is an llm.Adapter over /chat/completions.
type Adapter struct {
	client
}

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{client: newClient(cfg)}
}

func (a *Adapter) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	req := chatRequest{
		Model:       a.cfg.Model,
		Messages:    make([]chatMessage, 0, len(input.Messages)),
		Temperature: input.Temperature,
		MaxTokens:   input.MaxTokens,
	}
	for _, m := range input.Messages {
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	b, err := json.Marshal(req)
	if err != nil {
		return llm.Response{}, err
	}
	resp, err := a.do(ctx, "/chat/completions", "application/json", bytes.NewReader(b))
	if err != nil {
		return llm.Response{}, err
	}
	defer resp.Body.Close()

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return llm.Response{}, err
	}
	if len(payload.Choices) == 0 {
		return llm.Response{}, errors.New("openai: no choices")
	}
	first := payload.Choices[0]
	return llm.Response{
		Text:         first.Message.Content,
		FinishReason: first.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     payload.Usage.PromptTokens,
			CompletionTokens: payload.Usage.CompletionTokens,
			TotalTokens:      payload.Usage.TotalTokens,
		},
	}, nil
}
