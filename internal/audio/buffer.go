// Package audio holds decoded speech as normalized float samples.
package audio

import (
	"encoding/binary"
	"math"
)

// Buffer is interleaved PCM audio with samples in [-1, 1).
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Trim cuts start seconds from the front and end seconds from the back.
//
// The original buffer is returned as is when the window is invalid: start at
// or beyond the clip length, a non-positive end trim, or start+end covering
// the whole clip.
func Trim(b *Buffer, start, end float64) *Buffer {
	length := b.Duration()
	if start >= length || end <= 0 || start+end >= length {
		return b
	}

	frames := b.Frames()
	// offsets truncate to whole samples
	first := int(max(start, 0) * float64(b.SampleRate))
	last := frames - int(end*float64(b.SampleRate))
	if first >= last {
		return b
	}

	samples := make([]float32, (last-first)*b.Channels)
	copy(samples, b.Samples[first*b.Channels:last*b.Channels])

	return &Buffer{
		Samples:    samples,
		SampleRate: b.SampleRate,
		Channels:   b.Channels,
	}
}

// PCM16 encodes the buffer as signed 16-bit little-endian PCM, clamping
// samples outside [-1, 1).
func (b *Buffer) PCM16() []byte {
	out := make([]byte, len(b.Samples)*2)
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// Int16 returns the samples as signed 16-bit integers.
func (b *Buffer) Int16() []int16 {
	out := make([]int16, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = floatToInt16(s)
	}
	return out
}

func floatToInt16(s float32) int16 {
	v := math.Round(float64(s) * 32768)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
