package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"strings"

	"github.com/Mercy2112/ai-voice-assistant/pkg/codec"
)

// Transcriber uploads each utterance to /audio/transcriptions as a WAV file.
type Transcriber struct {
	client
}

func NewTranscriber(cfg Config) *Transcriber {
	return &Transcriber{client: newClient(cfg)}
}

func (t *Transcriber) Name() string { return "openai_whisper" }

func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(codec.MulawWAV(audio)); err != nil {
		return "", err
	}
	_ = mw.WriteField("model", t.cfg.TranscribeModel)
	_ = mw.WriteField("response_format", "json")
	if t.cfg.Language != "" {
		_ = mw.WriteField("language", t.cfg.Language)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	resp, err := t.do(ctx, "/audio/transcriptions", mw.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}
