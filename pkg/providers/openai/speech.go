package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/Mercy2112/ai-voice-assistant/pkg/codec"
)

// speechRate is the sample rate of /audio/speech "pcm" output.
const speechRate = 24000

// Synthesizer renders replies with /audio/speech and converts the 24kHz
// PCM it returns to 8kHz mu-law.
type Synthesizer struct {
	client
}

func NewSynthesizer(cfg Config) *Synthesizer {
	return &Synthesizer{client: newClient(cfg)}
}

func (s *Synthesizer) Name() string { return "openai_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	req := map[string]any{
		"model":           s.cfg.SpeechModel,
		"voice":           s.cfg.Voice,
		"input":           text,
		"response_format": "pcm",
	}
	if s.cfg.Speed > 0 {
		req["speed"] = s.cfg.Speed
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := s.do(ctx, "/audio/speech", "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	pcm := codec.Resample(codec.BytesToPCM16(raw), speechRate, codec.SampleRate)
	return codec.PCM16ToMulaw(pcm), nil
}
