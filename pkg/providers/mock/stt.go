// Package mock provides scripted vendor clients for local runs and tests.
package mock

import (
	"context"
	"sync"
	"time"
)

// Delay makes a mock call take time. A zero Delay returns at once.
type Delay time.Duration

func (d Delay) wait(ctx context.Context) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(d))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// STTConfig scripts a transcriber.
type STTConfig struct {
	// Transcripts are returned in order; the last one repeats.
	Transcripts []string
	Errors      map[int]error
	Delay       Delay
}

// STT is a scripted stt.Transcriber.
type STT struct {
	cfg STTConfig

	mu     sync.Mutex
	calls  int
	frames [][]byte
}

func NewSTT(cfg STTConfig) *STT {
	if len(cfg.Transcripts) == 0 {
		cfg.Transcripts = []string{"mock transcript"}
	}
	return &STT{cfg: cfg}
}

func (s *STT) Name() string { return "mock_stt" }

func (s *STT) Transcribe(ctx context.Context, audio []byte) (string, error) {
	s.mu.Lock()
	n := s.calls
	s.calls++
	s.frames = append(s.frames, append([]byte(nil), audio...))
	s.mu.Unlock()

	if err := s.cfg.Delay.wait(ctx); err != nil {
		return "", err
	}
	if err := s.cfg.Errors[n]; err != nil {
		return "", err
	}
	return s.cfg.Transcripts[min(n, len(s.cfg.Transcripts)-1)], nil
}

// Audio returns the utterances transcribed so far.
func (s *STT) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

// Calls returns the number of Transcribe calls.
func (s *STT) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
