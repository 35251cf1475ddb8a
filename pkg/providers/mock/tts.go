package mock

import (
	"bytes"
	"context"
	"sync"
)

// TTSConfig scripts a synthesizer.
type TTSConfig struct {
	// BytesPerChar sizes the returned silence; default 80 (10ms per char).
	BytesPerChar int
	Errors       map[int]error
	Delay        Delay
}

// TTS is a scripted tts.Synthesizer returning mu-law silence.
type TTS struct {
	cfg TTSConfig

	mu    sync.Mutex
	texts []string
}

func NewTTS(cfg TTSConfig) *TTS {
	if cfg.BytesPerChar <= 0 {
		cfg.BytesPerChar = 80
	}
	return &TTS{cfg: cfg}
}

func (t *TTS) Name() string { return "mock_tts" }

func (t *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	t.mu.Lock()
	n := len(t.texts)
	t.texts = append(t.texts, text)
	t.mu.Unlock()

	if err := t.cfg.Delay.wait(ctx); err != nil {
		return nil, err
	}
	if err := t.cfg.Errors[n]; err != nil {
		return nil, err
	}
	return bytes.Repeat([]byte{0xFF}, len(text)*t.cfg.BytesPerChar), nil
}

// Texts returns the replies synthesized so far.
func (t *TTS) Texts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.texts...)
}
