package accumulator

import (
	"time"

	"github.com/Mercy2112/ai-voice-assistant/pkg/codec"
)

// Stats describes the audio currently buffered.
type Stats struct {
	Buffered        time.Duration
	Speech          time.Duration
	TrailingSilence time.Duration
	SpeechHeard     bool
	Chunks          int
}

// Policy decides when buffered audio forms a complete utterance.
type Policy interface {
	Ready(Stats) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(Stats) bool

func (f PolicyFunc) Ready(s Stats) bool { return f(s) }

// SilencePolicy closes an utterance once the caller has spoken for at least
// MinUtterance and then paused for TrailingSilence, or once MaxUtterance of
// audio is buffered whatever it contains.
type SilencePolicy struct {
	MinUtterance    time.Duration
	TrailingSilence time.Duration
	MaxUtterance    time.Duration
}

func (p SilencePolicy) Ready(s Stats) bool {
	if p.MaxUtterance > 0 && s.Buffered >= p.MaxUtterance {
		return true
	}
	if !s.SpeechHeard {
		return false
	}
	return s.Buffered >= p.MinUtterance && s.TrailingSilence >= p.TrailingSilence
}

// Detector classifies a chunk as speech or silence.
type Detector interface {
	IsSpeech(chunk []byte) bool
}

// EnergyDetector treats mu-law chunks whose RMS reaches Threshold as speech.
type EnergyDetector struct {
	Threshold float64
}

func (d EnergyDetector) IsSpeech(chunk []byte) bool {
	return codec.MulawRMS(chunk) >= d.Threshold
}
