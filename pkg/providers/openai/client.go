// Package openai talks to the OpenAI REST API for chat completions, Whisper
// transcription and speech synthesis.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config is shared by every OpenAI client.
type Config struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	// Model is the chat model; TranscribeModel and SpeechModel cover audio.
	Model           string  `mapstructure:"model"`
	TranscribeModel string  `mapstructure:"transcribe_model"`
	SpeechModel     string  `mapstructure:"speech_model"`
	Voice           string  `mapstructure:"voice"`
	Language        string  `mapstructure:"language"`
	Speed           float64 `mapstructure:"speed"`
	TimeoutMs       int     `mapstructure:"timeout_ms"`
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.TranscribeModel == "" {
		c.TranscribeModel = "whisper-1"
	}
	if c.SpeechModel == "" {
		c.SpeechModel = "tts-1-hd"
	}
	if c.Voice == "" {
		c.Voice = "nova"
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 60000
	}
	return c
}

type client struct {
	cfg  Config
	http *http.Client
}

func newClient(cfg Config) client {
	cfg = cfg.withDefaults()
	return client{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai: status %d: %s", e.Status, e.Message)
}

func (c client) do(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := string(raw)
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resilience.RateLimitError{Provider: "openai", Message: msg}
	}
	return nil, &APIError{Status: resp.StatusCode, Message: msg}
}
