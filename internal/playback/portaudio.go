//go:build !noportaudio

package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/dgnsrekt/ttsclient/internal/audio"
)

// DefaultFramesPerBuffer is the portaudio buffer size used when none is set.
const DefaultFramesPerBuffer = 1024

// PortAudioSink plays clips on the default output device.
type PortAudioSink struct {
	mu              sync.Mutex
	framesPerBuffer int
}

// NewPortAudioSink initializes portaudio. Close must be called to release it.
func NewPortAudioSink(framesPerBuffer int) (*PortAudioSink, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &PortAudioSink{framesPerBuffer: framesPerBuffer}, nil
}

func (s *PortAudioSink) Name() string { return SinkPortAudio }

// Play opens a stream matching the clip format and writes it out. Clips are
// played one at a time.
func (s *PortAudioSink) Play(ctx context.Context, buf *audio.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]float32, s.framesPerBuffer*buf.Channels)
	stream, err := portaudio.OpenDefaultStream(0, buf.Channels, float64(buf.SampleRate), s.framesPerBuffer, out)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	for offset := 0; offset < len(buf.Samples); {
		if err := ctx.Err(); err != nil {
			return err
		}
		offset += fillChunk(out, buf.Samples, offset)
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}

// Close terminates portaudio.
func (s *PortAudioSink) Close() error {
	return portaudio.Terminate()
}

// fillChunk copies samples from src[offset:] into dst, zero-filling the rest
// of dst, and returns how many samples were copied.
func fillChunk(dst, src []float32, offset int) int {
	n := copy(dst, src[offset:])
	clear(dst[n:])
	return n
}
