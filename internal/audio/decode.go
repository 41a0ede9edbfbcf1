package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/dgnsrekt/ttsclient/internal/wav"
)

// Audio encodings understood by Decode. Names match the REST API.
const (
	EncodingLinear16 = "LINEAR16"
	EncodingMP3      = "MP3"
)

// ErrDecode is returned when synthesized audio cannot be turned into samples.
var ErrDecode = errors.New("audio decode failed")

// ErrPlayback is returned when an output fails to play a buffer.
var ErrPlayback = errors.New("playback failed")

// Decode converts synthesized audio bytes into a mono buffer. sampleRate is
// used for headerless LINEAR16 data.
func Decode(data []byte, encoding string, sampleRate int) (*Buffer, error) {
	switch encoding {
	case EncodingLinear16, "":
		return DecodePCM16(data, sampleRate)
	case EncodingMP3:
		return DecodeMP3(data)
	default:
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrDecode, encoding)
	}
}

// DecodePCM16 converts little-endian 16-bit PCM into normalized samples
// (s / 32768). A RIFF/WAVE header, as sent with LINEAR16 responses, is
// stripped and its sample rate and channel count take precedence. A trailing
// odd byte is ignored. Multi-channel input is downmixed to mono.
func DecodePCM16(data []byte, sampleRate int) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio payload", ErrDecode)
	}

	channels := 1
	if wav.IsWAV(data) {
		hdr, pcm, err := wav.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if hdr.BitsPerSample != 16 {
			return nil, fmt.Errorf("%w: %d-bit WAV, want 16-bit", ErrDecode, hdr.BitsPerSample)
		}
		data = pcm
		sampleRate = hdr.SampleRate
		channels = max(hdr.Channels, 1)
	}

	count := len(data) / 2
	if count == 0 {
		return nil, fmt.Errorf("%w: no samples in payload", ErrDecode)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrDecode, sampleRate)
	}

	samples := make([]float32, count)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	}

	return &Buffer{
		Samples:    downmix(samples, channels),
		SampleRate: sampleRate,
		Channels:   1,
	}, nil
}

// DecodeMP3 decodes an MP3 stream and downmixes it to mono.
func DecodeMP3(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio payload", ErrDecode)
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	// go-mp3 always yields 16-bit little-endian stereo.
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	buf, err := DecodePCM16(pcm, dec.SampleRate())
	if err != nil {
		return nil, err
	}
	buf.Samples = downmix(buf.Samples, 2)
	return buf, nil
}

// downmix averages interleaved channels into one.
func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
