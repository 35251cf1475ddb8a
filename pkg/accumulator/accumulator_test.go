package accumulator

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mercy2112/ai-voice-assistant/pkg/codec"
)

// 20ms frames at 8kHz mu-law.
var (
	silenceFrame = bytes.Repeat([]byte{0xFF}, codec.FrameBytes)
	speechFrame  = codec.PCM16ToMulaw(constant(codec.FrameBytes, 6000))
)

func constant(n int, v int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = v
		} else {
			out[i] = -v
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		MinUtteranceMs:    100,
		TrailingSilenceMs: 60,
		MaxUtteranceMs:    1000,
		SilenceThreshold:  500,
	}
}

func isReady(a *Accumulator) bool {
	select {
	case <-a.Ready():
		return true
	default:
		return false
	}
}

func TestReadyAfterSpeechAndTrailingSilence(t *testing.T) {
	a := New(testConfig())
	for i := 0; i < 6; i++ {
		require.True(t, a.Append(speechFrame))
	}
	assert.False(t, isReady(a), "no trailing silence yet")

	a.Append(silenceFrame)
	a.Append(silenceFrame)
	assert.False(t, isReady(a), "40ms of silence is below threshold")

	a.Append(silenceFrame)
	assert.True(t, isReady(a))

	audio, ok := a.Drain()
	require.True(t, ok)
	assert.Len(t, audio, 9*codec.FrameBytes)
	assert.Equal(t, Stats{}, a.Stats())
}

func TestMinimumUtteranceLength(t *testing.T) {
	a := New(testConfig())
	a.Append(speechFrame)
	for i := 0; i < 4; i++ {
		a.Append(silenceFrame)
	}
	// 20ms speech + 80ms silence = 100ms buffered, meets min; trailing silence 80ms
	assert.True(t, isReady(a))

	b := New(testConfig())
	b.Append(speechFrame)
	b.Append(silenceFrame)
	b.Append(silenceFrame)
	b.Append(silenceFrame)
	assert.False(t, isReady(b), "80ms buffered is below the minimum")
}

func TestSilenceAloneWaitsForMaxBound(t *testing.T) {
	a := New(testConfig())
	for i := 0; i < 49; i++ {
		a.Append(silenceFrame)
	}
	assert.False(t, isReady(a))
	a.Append(silenceFrame)
	assert.True(t, isReady(a), "1000ms of audio hits the max bound")
}

func TestSignalsOncePerUtterance(t *testing.T) {
	a := New(testConfig())
	for i := 0; i < 60; i++ {
		a.Append(silenceFrame)
	}
	assert.True(t, isReady(a))
	assert.False(t, isReady(a))

	_, ok := a.Drain()
	assert.True(t, ok)
	for i := 0; i < 50; i++ {
		a.Append(silenceFrame)
	}
	assert.True(t, isReady(a))
}

func TestDrainEmpty(t *testing.T) {
	a := New(testConfig())
	audio, ok := a.Drain()
	assert.False(t, ok)
	assert.Empty(t, audio)
}

func TestZeroLengthChunkIgnored(t *testing.T) {
	a := New(testConfig())
	assert.True(t, a.Append(nil))
	assert.True(t, a.Append([]byte{}))
	assert.Zero(t, a.Stats().Chunks)
	_, ok := a.Drain()
	assert.False(t, ok)
}

func TestHardCapDropsChunks(t *testing.T) {
	cfg := testConfig()
	cfg.HardLimitMs = 100
	a := New(cfg)
	for i := 0; i < 5; i++ {
		require.True(t, a.Append(silenceFrame))
	}
	assert.False(t, a.Append(silenceFrame))
	assert.EqualValues(t, 1, a.Dropped())
	assert.Equal(t, 100*time.Millisecond, a.Stats().Buffered)
}

func TestCustomPolicy(t *testing.T) {
	a := New(testConfig(), WithPolicy(PolicyFunc(func(s Stats) bool { return s.Chunks >= 2 })))
	a.Append([]byte{1})
	assert.False(t, isReady(a))
	a.Append([]byte{2})
	assert.True(t, isReady(a))
	audio, ok := a.Drain()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, audio)
}

func TestCustomDetector(t *testing.T) {
	a := New(testConfig(), WithDetector(detectorFunc(func([]byte) bool { return true })))
	a.Append(silenceFrame)
	s := a.Stats()
	assert.True(t, s.SpeechHeard)
	assert.Equal(t, 20*time.Millisecond, s.Speech)
}

func TestAppendDoesNotBlockWithoutConsumer(t *testing.T) {
	a := New(Config{MinUtteranceMs: 20, TrailingSilenceMs: 20, MaxUtteranceMs: 40})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			a.Append(silenceFrame)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked")
	}
}

func TestConcurrentAppendAndDrain(t *testing.T) {
	a := New(testConfig())
	var wg sync.WaitGroup
	var drained int
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-a.Ready():
				audio, _ := a.Drain()
				drained += len(audio)
			case <-stop:
				return
			}
		}
	}()
	accepted := 0
	for i := 0; i < 200; i++ {
		if a.Append(speechFrame) {
			accepted += len(speechFrame)
		}
	}
	close(stop)
	wg.Wait()
	rest, _ := a.Drain()
	assert.Equal(t, accepted, drained+len(rest))
}

type detectorFunc func([]byte) bool

func (f detectorFunc) IsSpeech(b []byte) bool { return f(b) }
