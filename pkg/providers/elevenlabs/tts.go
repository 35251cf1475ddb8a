// Package elevenlabs synthesizes replies over the ElevenLabs stream-input
// websocket, asking for 8kHz mu-law so audio needs no transcoding.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Mercy2112/ai-voice-assistant/pkg/logging"
	"github.com/Mercy2112/ai-voice-assistant/pkg/resilience"
)

const defaultBaseURL = "wss://api.elevenlabs.io/v1"

type Config struct {
	APIKey       string  `mapstructure:"api_key"`
	VoiceID      string  `mapstructure:"voice_id"`
	ModelID      string  `mapstructure:"model_id"`
	OutputFormat string  `mapstructure:"output_format"`
	BaseURL      string  `mapstructure:"base_url"`
	Stability    float64 `mapstructure:"stability"`
	Similarity   float64 `mapstructure:"similarity_boost"`
}

// Synthesizer opens one websocket per reply.
type Synthesizer struct {
	cfg    Config
	dialer websocket.Dialer
	logger *slog.Logger
}

func New(cfg Config) *Synthesizer {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "ulaw_8000"
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_turbo_v2_5"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.Similarity == 0 {
		cfg.Similarity = 0.8
	}
	return &Synthesizer{
		cfg:    cfg,
		dialer: websocket.Dialer{Proxy: http.ProxyFromEnvironment},
		logger: logging.NewComponentLogger(slog.Default(), "elevenlabs_tts"),
	}
}

func (s *Synthesizer) Name() string { return "elevenlabs_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return nil, errors.New("missing elevenlabs config")
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.buildURL(), http.Header{
		"xi-api-key": []string{s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
		}
		return nil, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	text = strings.TrimSpace(text) + " "
	for _, msg := range []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        s.cfg.Stability,
				"similarity_boost": s.cfg.Similarity,
			},
		},
		{"text": text, "try_trigger_generation": true},
		{"text": ""},
	} {
		if err := conn.WriteJSON(msg); err != nil {
			return nil, s.ctxErr(ctx, err)
		}
	}

	var audio []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(audio) > 0 {
				return audio, nil
			}
			return nil, s.ctxErr(ctx, err)
		}
		chunk, final, err := decodeMessage(data)
		if err != nil {
			return nil, err
		}
		audio = append(audio, chunk...)
		if final {
			s.logger.Debug("tts_complete", "bytes", len(audio))
			return audio, nil
		}
	}
}

func (s *Synthesizer) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Synthesizer) buildURL() string {
	q := url.Values{}
	q.Set("model_id", s.cfg.ModelID)
	q.Set("output_format", s.cfg.OutputFormat)
	q.Set("optimize_streaming_latency", "3")
	return strings.TrimSuffix(s.cfg.BaseURL, "/") + "/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) + "/stream-input?" + q.Encode()
}

type streamMessage struct {
	Audio   *string `json:"audio"`
	IsFinal *bool   `json:"isFinal"`
	Error   string  `json:"error"`
	Message string  `json:"message"`
}

func decodeMessage(data []byte) (audio []byte, final bool, err error) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, fmt.Errorf("elevenlabs: bad message: %w", err)
	}
	if msg.Error != "" {
		if strings.Contains(msg.Error, "quota") || strings.Contains(msg.Error, "rate") {
			return nil, false, resilience.RateLimitError{Provider: "elevenlabs", Message: msg.Message}
		}
		return nil, false, fmt.Errorf("elevenlabs: %s: %s", msg.Error, msg.Message)
	}
	if msg.Audio != nil && *msg.Audio != "" {
		audio, err = base64.StdEncoding.DecodeString(*msg.Audio)
		if err != nil {
			return nil, false, fmt.Errorf("elevenlabs: audio decode: %w", err)
		}
	}
	return audio, msg.IsFinal != nil && *msg.IsFinal, nil
}
