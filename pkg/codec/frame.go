// Package codec converts between the signaling channel's base64 media
// payloads and raw telephony audio, and carries the small amount of sample
// math the pipeline needs (mu-law, resampling, WAV framing, energy).
package codec

import (
	"encoding/base64"
	"strings"

	"github.com/Mercy2112/ai-voice-assistant/pkg/errorsx"
)

const (
	// SampleRate is the telephony sample rate of the media stream.
	SampleRate = 8000
	// FrameBytes is one 20ms mu-law frame at SampleRate.
	FrameBytes = 160
)

// DecodePayload turns an inbound base64 media payload into raw audio.
// An empty payload decodes to an empty chunk.
func DecodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return []byte{}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errorsx.MalformedFrame(err)
	}
	return raw, nil
}

// EncodePayload encodes one raw chunk for the signaling channel.
func EncodePayload(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// SplitFrames cuts raw audio into chunks of at most maxBytes, each an
// independent slice of the input. maxBytes <= 0 uses FrameBytes.
func SplitFrames(raw []byte, maxBytes int) [][]byte {
	if len(raw) == 0 {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = FrameBytes
	}
	out := make([][]byte, 0, (len(raw)+maxBytes-1)/maxBytes)
	for start := 0; start < len(raw); start += maxBytes {
		end := start + maxBytes
		if end > len(raw) {
			end = len(raw)
		}
		out = append(out, raw[start:end:end])
	}
	return out
}

// EncodeFrames splits raw audio and base64 encodes every chunk on its own,
// so each outbound frame decodes independently of its neighbours.
func EncodeFrames(raw []byte, maxBytes int) []string {
	chunks := SplitFrames(raw, maxBytes)
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = EncodePayload(c)
	}
	return out
}

// DurationMs reports the playback length of mu-law audio at SampleRate.
func DurationMs(n int) int {
	return n * 1000 / SampleRate
}

// BytesForMs reports how many mu-law bytes cover ms milliseconds.
func BytesForMs(ms int) int {
	if ms <= 0 {
		return 0
	}
	return ms * SampleRate / 1000
}
