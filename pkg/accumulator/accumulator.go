// Package accumulator buffers a call's inbound audio and decides where one
// caller utterance ends.
package accumulator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mercy2112/ai-voice-assistant/pkg/codec"
)

// Config holds boundary thresholds. Zero values take the defaults below.
type Config struct {
	MinUtteranceMs    int     `mapstructure:"min_utterance_ms"`
	TrailingSilenceMs int     `mapstructure:"trailing_silence_ms"`
	MaxUtteranceMs    int     `mapstructure:"max_utterance_ms"`
	HardLimitMs       int     `mapstructure:"hard_limit_ms"`
	SilenceThreshold  float64 `mapstructure:"silence_threshold"`
	BytesPerSecond    int     `mapstructure:"bytes_per_second"`
}

func (c Config) WithDefaults() Config {
	if c.MinUtteranceMs <= 0 {
		c.MinUtteranceMs = 400
	}
	if c.TrailingSilenceMs <= 0 {
		c.TrailingSilenceMs = 700
	}
	if c.MaxUtteranceMs <= 0 {
		c.MaxUtteranceMs = 15000
	}
	if c.HardLimitMs <= 0 {
		c.HardLimitMs = c.MaxUtteranceMs * 4
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 500
	}
	if c.BytesPerSecond <= 0 {
		c.BytesPerSecond = codec.SampleRate
	}
	return c
}

// Policy returns the silence policy described by the config.
func (c Config) Policy() SilencePolicy {
	c = c.WithDefaults()
	return SilencePolicy{
		MinUtterance:    time.Duration(c.MinUtteranceMs) * time.Millisecond,
		TrailingSilence: time.Duration(c.TrailingSilenceMs) * time.Millisecond,
		MaxUtterance:    time.Duration(c.MaxUtteranceMs) * time.Millisecond,
	}
}

// Accumulator is safe for one producer (the media handler) and one consumer
// (the session worker) running concurrently.
type Accumulator struct {
	mu        sync.Mutex
	buf       []byte
	stats     Stats
	signalled bool

	policy   Policy
	detector Detector
	bps      int
	hardCap  time.Duration

	ready   chan struct{}
	dropped atomic.Int64
}

type Option func(*Accumulator)

// WithPolicy replaces the boundary policy.
func WithPolicy(p Policy) Option {
	return func(a *Accumulator) { a.policy = p }
}

// WithDetector replaces the speech detector.
func WithDetector(d Detector) Option {
	return func(a *Accumulator) { a.detector = d }
}

func New(cfg Config, opts ...Option) *Accumulator {
	cfg = cfg.WithDefaults()
	a := &Accumulator{
		policy:   cfg.Policy(),
		detector: EnergyDetector{Threshold: cfg.SilenceThreshold},
		bps:      cfg.BytesPerSecond,
		hardCap:  time.Duration(cfg.HardLimitMs) * time.Millisecond,
		ready:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ready delivers one signal per completed utterance.
func (a *Accumulator) Ready() <-chan struct{} {
	return a.ready
}

// Append buffers a chunk and never blocks. Empty chunks are ignored. It
// returns false when the chunk was dropped because the buffer reached its
// hard cap while no one drained it.
func (a *Accumulator) Append(chunk []byte) bool {
	if len(chunk) == 0 {
		return true
	}
	d := time.Duration(len(chunk)) * time.Second / time.Duration(a.bps)
	speech := a.detector.IsSpeech(chunk)

	a.mu.Lock()
	if a.hardCap > 0 && a.stats.Buffered+d > a.hardCap {
		a.mu.Unlock()
		a.dropped.Add(1)
		return false
	}
	a.buf = append(a.buf, chunk...)
	a.stats.Chunks++
	a.stats.Buffered += d
	if speech {
		a.stats.Speech += d
		a.stats.SpeechHeard = true
		a.stats.TrailingSilence = 0
	} else if a.stats.SpeechHeard {
		a.stats.TrailingSilence += d
	}
	fire := !a.signalled && a.policy.Ready(a.stats)
	if fire {
		a.signalled = true
	}
	a.mu.Unlock()

	if fire {
		select {
		case a.ready <- struct{}{}:
		default:
		}
	}
	return true
}

// Drain returns the buffered audio and resets the accumulator. ok is false
// when nothing was buffered; that is not an error.
func (a *Accumulator) Drain() (audio []byte, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	audio = a.buf
	a.buf = nil
	a.stats = Stats{}
	a.signalled = false
	select {
	case <-a.ready:
	default:
	}
	return audio, len(audio) > 0
}

// Stats returns a snapshot of the buffered audio.
func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Dropped counts chunks refused at the hard cap.
func (a *Accumulator) Dropped() int64 {
	return a.dropped.Load()
}
