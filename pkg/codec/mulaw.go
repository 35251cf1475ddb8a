package codec

import (
	"bytes"
	"encoding/binary"
	"math"
)

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// MulawToLinear expands one G.711 mu-law byte into a PCM16 sample.
func MulawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	value := (int(mant) << 3) + mulawBias
	value <<= uint(exp)
	value -= mulawBias
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// LinearToMulaw compresses one PCM16 sample into G.711 mu-law.
func LinearToMulaw(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias
	exp := 7
	for mask := 0x4000; s&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mant := (s >> (uint(exp) + 3)) & 0x0F
	return ^byte(sign | exp<<4 | mant)
}

// MulawToPCM16 expands a mu-law buffer.
func MulawToPCM16(data []byte) []int16 {
	pcm := make([]int16, len(data))
	for i, b := range data {
		pcm[i] = MulawToLinear(b)
	}
	return pcm
}

// PCM16ToMulaw compresses PCM16 samples.
func PCM16ToMulaw(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = LinearToMulaw(s)
	}
	return out
}

// BytesToPCM16 reads little-endian signed 16-bit samples. A trailing odd
// byte is ignored.
func BytesToPCM16(data []byte) []int16 {
	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return pcm
}

// Resample converts PCM16 between sample rates with linear interpolation.
func Resample(pcm []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(pcm) == 0 {
		return pcm
	}
	outLen := int(int64(len(pcm)) * int64(toRate) / int64(fromRate))
	out := make([]int16, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(pcm)-1 {
			out[i] = pcm[len(pcm)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(pcm[idx])*(1-frac) + float64(pcm[idx+1])*frac)
	}
	return out
}

// MulawRMS returns the root-mean-square amplitude of mu-law audio.
func MulawRMS(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, b := range data {
		v := float64(MulawToLinear(b))
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(data)))
}

// PCM16WAV wraps PCM16 mono samples in a RIFF/WAVE container.
func PCM16WAV(pcm []int16, sampleRate int) []byte {
	var buf bytes.Buffer
	dataSize := uint32(len(pcm) * 2)
	buf.Grow(44 + int(dataSize))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36)+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataSize)
	_ = binary.Write(&buf, binary.LittleEndian, pcm)
	return buf.Bytes()
}

// MulawWAV decodes telephony audio into a PCM16 WAV file body.
func MulawWAV(data []byte) []byte {
	return PCM16WAV(MulawToPCM16(data), SampleRate)
}
