// Package gemini adapts the Google Gen AI SDK to llm.Adapter.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/Mercy2112/ai-voice-assistant/pkg/llm"
	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

type Config struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type Adapter struct {
	client *genai.Client
	model  string
}

func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: client, model: cfg.Model}, nil
}

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(input.Temperature)),
	}
	if input.MaxTokens > 0 {
		config.MaxOutputTokens = int32(input.MaxTokens)
	}
	if sys := input.System(); sys != "" {
		config.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, toContents(input.Messages), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			return llm.Response{}, resilience.RateLimitError{Provider: "gemini", Message: apiErr.Message}
		}
		return llm.Response{}, err
	}
	out := llm.Response{Text: resp.Text()}
	if len(resp.Candidates) > 0 {
		out.FinishReason = strings.ToLower(string(resp.Candidates[0].FinishReason))
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// toContents drops system turns and merges consecutive turns of one role.
func toContents(msgs []llm.Message) []*genai.Content {
	var out []*genai.Content
	var lastRole genai.Role
	for _, m := range msgs {
		role := genai.Role(genai.RoleUser)
		switch m.Role {
		case llm.RoleSystem:
			continue
		case llm.RoleAssistant:
			role = genai.RoleModel
		}
		if len(out) > 0 && role == lastRole {
			out[len(out)-1].Parts = append(out[len(out)-1].Parts, &genai.Part{Text: m.Content})
			continue
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
		lastRole = role
	}
	return out
}
