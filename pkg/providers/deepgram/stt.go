// Package deepgram transcribes utterances with Deepgram's live websocket
// API, one connection per utterance.
package deepgram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/Mercy2112/ai-voice-assistant/pkg/codec"
	"github.com/Mercy2112/ai-voice-assistant/pkg/logging"
)

type Config struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	UtteranceEndMs int    `mapstructure:"utterance_end_ms"`
	// SettleMs bounds how long to wait for results after the audio is sent.
	SettleMs int `mapstructure:"settle_ms"`
}

// liveConn is the part of the SDK websocket client a transcription uses.
type liveConn interface {
	Connect() bool
	Stream(r io.Reader) error
	Stop()
}

type dialFunc func(ctx context.Context, cb msginterfaces.LiveMessageCallback) (liveConn, error)

type Transcriber struct {
	cfg    Config
	dial   dialFunc
	logger *slog.Logger
}

func New(cfg Config) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = "nova-2-phonecall"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.UtteranceEndMs <= 0 {
		cfg.UtteranceEndMs = 1000
	}
	if cfg.SettleMs <= 0 {
		cfg.SettleMs = 1500
	}
	t := &Transcriber{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
	t.dial = t.dialSDK
	return t
}

func (t *Transcriber) Name() string { return "deepgram" }

func (t *Transcriber) dialSDK(ctx context.Context, cb msginterfaces.LiveMessageCallback) (liveConn, error) {
	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          t.cfg.Model,
		Language:       t.cfg.Language,
		Encoding:       "mulaw",
		SampleRate:     codec.SampleRate,
		InterimResults: true,
		VadEvents:      true,
		SmartFormat:    true,
		UtteranceEndMs: fmt.Sprintf("%d", t.cfg.UtteranceEndMs),
	}
	return client.NewWSUsingCallback(ctx, t.cfg.APIKey, clientOptions, transcriptOptions, cb)
}

// Transcribe streams the utterance followed by a silence tail and returns
// the joined final transcripts. Results are collected until Deepgram reports
// the end of the utterance after all audio was sent, or until SettleMs passes
// after streaming finished.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	u := newUtterance(t.logger)
	conn, err := t.dial(ctx, &callback{u: u})
	if err != nil {
		return "", err
	}
	if !conn.Connect() {
		return "", errors.New("deepgram connection failed")
	}
	defer conn.Stop()

	tail := bytes.Repeat([]byte{0xFF}, codec.BytesForMs(t.cfg.UtteranceEndMs))
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- conn.Stream(io.MultiReader(bytes.NewReader(audio), bytes.NewReader(tail)))
	}()

	var (
		settle  *time.Timer
		settleC <-chan time.Time
	)
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err := <-streamErr:
			if err != nil && !errors.Is(err, io.EOF) {
				return "", err
			}
			streamErr = nil
			// Ends reported so far were pauses inside the audio.
			u.drainEnds()
			settle = time.NewTimer(time.Duration(t.cfg.SettleMs) * time.Millisecond)
			settleC = settle.C
		case <-u.ends:
			if streamErr == nil {
				return u.result()
			}
		case <-u.failed:
			return u.result()
		case <-settleC:
			return u.result()
		}
	}
}

// utterance collects the results of one connection.
type utterance struct {
	mu     sync.Mutex
	finals []string
	err    error
	ends   chan struct{}
	failed chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newUtterance(logger *slog.Logger) *utterance {
	return &utterance{
		ends:   make(chan struct{}, 1),
		failed: make(chan struct{}),
		logger: logger,
	}
}

// transcript keeps final results. speech_final only marks an endpointing
// pause, so it does not end the utterance.
func (u *utterance) transcript(text string, final, speechFinal bool) {
	text = strings.TrimSpace(text)
	if text != "" && (final || speechFinal) {
		u.mu.Lock()
		u.finals = append(u.finals, text)
		u.mu.Unlock()
	}
}

func (u *utterance) fail(err error) {
	u.mu.Lock()
	if u.err == nil {
		u.err = err
	}
	u.mu.Unlock()
	u.once.Do(func() { close(u.failed) })
}

func (u *utterance) end() {
	select {
	case u.ends <- struct{}{}:
	default:
	}
}

func (u *utterance) drainEnds() {
	select {
	case <-u.ends:
	default:
	}
}

func (u *utterance) result() (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.finals) == 0 && u.err != nil {
		return "", u.err
	}
	return strings.Join(u.finals, " "), nil
}

type callback struct {
	u *utterance
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.u.logger.Debug("deepgram_connection_opened")
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	c.u.transcript(mr.Channel.Alternatives[0].Transcript, mr.IsFinal, mr.SpeechFinal)
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.u.logger.Debug("deepgram_metadata_received", "request_id", md.RequestID)
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.u.end()
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.u.end()
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.u.logger.Warn("deepgram_error", "error_code", er.ErrCode, "error_message", er.ErrMsg)
	c.u.fail(fmt.Errorf("deepgram: %s: %s", er.ErrCode, er.ErrMsg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.u.logger.Debug("deepgram_unhandled_event", "data", string(byData))
	return nil
}
