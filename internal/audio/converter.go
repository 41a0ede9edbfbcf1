package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/dgnsrekt/ttsclient/internal/wav"
)

const (
	// DiscordSampleRate is the required sample rate for Discord voice.
	DiscordSampleRate = 48000
	// DiscordChannels is the required number of channels for Discord voice.
	DiscordChannels = 2
	// DiscordFrameSize is the number of samples per frame (20ms at 48kHz).
	DiscordFrameSize = 960
	// DiscordFrameBytes is the size of one frame in bytes (stereo 16-bit).
	DiscordFrameBytes = DiscordFrameSize * DiscordChannels * 2
)

var (
	// ErrFFmpegNotFound is returned when ffmpeg is not installed.
	ErrFFmpegNotFound = errors.New("ffmpeg not found in PATH")
	// ErrConversionFailed is returned when ffmpeg conversion fails.
	ErrConversionFailed = errors.New("audio conversion failed")
)

// Converter resamples buffers with ffmpeg.
type Converter struct {
	ffmpegPath string
}

// NewConverter locates ffmpeg on PATH.
func NewConverter() (*Converter, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, ErrFFmpegNotFound
	}
	return &Converter{ffmpegPath: path}, nil
}

// NewConverterWithPath creates a converter with a specific ffmpeg path.
func NewConverterWithPath(path string) *Converter {
	return &Converter{ffmpegPath: path}
}

// ToDiscordPCM converts a buffer to 48kHz stereo s16le.
func (c *Converter) ToDiscordPCM(ctx context.Context, buf *Buffer) ([]byte, error) {
	if buf == nil || len(buf.Samples) == 0 {
		return nil, errors.New("empty input buffer")
	}
	return c.convert(ctx, wav.WrapRawPCM(buf.PCM16(), buf.SampleRate, buf.Channels, 16),
		DiscordSampleRate, DiscordChannels)
}

// convert pipes a WAV stream through ffmpeg and returns raw s16le PCM at
// the requested rate and channel count.
func (c *Converter) convert(ctx context.Context, wavData []byte, rate, channels int) ([]byte, error) {
	args := []string{
		"-f", "wav",
		"-i", "pipe:0",
		"-ar", strconv.Itoa(rate),
		"-ac", strconv.Itoa(channels),
		"-f", "s16le",
		"-loglevel", "error",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(wavData)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrConversionFailed, stderr.String())
	}

	return stdout.Bytes(), nil
}

// PCMFrameReader splits raw PCM into Discord-sized frames.
type PCMFrameReader struct {
	data   []byte
	offset int
}

// NewPCMFrameReader creates a new frame reader from raw PCM data.
func NewPCMFrameReader(pcmData []byte) *PCMFrameReader {
	return &PCMFrameReader{data: pcmData}
}

// ReadFrame returns the next full frame, or io.EOF when fewer than
// DiscordFrameBytes remain.
func (r *PCMFrameReader) ReadFrame() ([]byte, error) {
	if r.offset+DiscordFrameBytes > len(r.data) {
		return nil, io.EOF
	}

	frame := r.data[r.offset : r.offset+DiscordFrameBytes]
	r.offset += DiscordFrameBytes
	return frame, nil
}

// Remaining returns the number of bytes remaining.
func (r *PCMFrameReader) Remaining() int {
	return len(r.data) - r.offset
}
