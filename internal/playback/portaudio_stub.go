//go:build noportaudio

package playback

import (
	"context"
	"errors"

	"github.com/dgnsrekt/ttsclient/internal/audio"
)

var errNoPortAudio = errors.New("portaudio support not compiled in (built with -tags noportaudio)")

// PortAudioSink is unavailable in noportaudio builds.
type PortAudioSink struct{}

// NewPortAudioSink always fails in noportaudio builds.
func NewPortAudioSink(framesPerBuffer int) (*PortAudioSink, error) {
	return nil, errNoPortAudio
}

func (s *PortAudioSink) Name() string { return SinkPortAudio }

func (s *PortAudioSink) Play(ctx context.Context, buf *audio.Buffer) error {
	return errNoPortAudio
}

func (s *PortAudioSink) Close() error { return nil }
