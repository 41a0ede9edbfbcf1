package playback

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgnsrekt/ttsclient/internal/audio"
)

var (
	// ErrConversionFailed is returned when audio cannot be resampled for Discord.
	ErrConversionFailed = errors.New("audio conversion failed")
)

// PCMConverter resamples a buffer to 48kHz stereo s16le.
type PCMConverter interface {
	ToDiscordPCM(ctx context.Context, buf *audio.Buffer) ([]byte, error)
}

// VoiceSpeaker streams 48kHz stereo s16le into a voice channel.
type VoiceSpeaker interface {
	Speak(ctx context.Context, pcm []byte) error
	Close() error
}

// DiscordSink plays clips into a Discord voice channel.
type DiscordSink struct {
	converter PCMConverter
	voice     VoiceSpeaker
	logger    *slog.Logger
}

// NewDiscordSink creates a sink from a converter and a voice connection.
func NewDiscordSink(converter PCMConverter, voice VoiceSpeaker, logger *slog.Logger) *DiscordSink {
	return &DiscordSink{
		converter: converter,
		voice:     voice,
		logger:    logger,
	}
}

func (s *DiscordSink) Name() string { return SinkDiscord }

func (s *DiscordSink) Play(ctx context.Context, buf *audio.Buffer) error {
	pcm, err := s.converter.ToDiscordPCM(ctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Join(ErrConversionFailed, err)
	}

	s.logger.Debug("sending audio to voice channel", "pcm_bytes", len(pcm))
	return s.voice.Speak(ctx, pcm)
}

// Close disconnects from Discord.
func (s *DiscordSink) Close() error {
	return s.voice.Close()
}
