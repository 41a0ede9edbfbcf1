package playback

import (
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/ttsclient/internal/audio"
	"github.com/dgnsrekt/ttsclient/internal/discord"
)

// Sink types accepted by NewSink.
const (
	SinkNone      = "none"
	SinkPortAudio = "portaudio"
	SinkDiscord   = "discord"
	SinkFile      = "file"
)

// Options selects and configures a sink.
type Options struct {
	Type            string
	Dir             string
	FramesPerBuffer int
	FFmpegPath      string
	Discord         discord.Settings
}

// NewSink builds the sink named by opts.Type. It returns a nil sink for
// SinkNone.
func NewSink(opts Options, logger *slog.Logger) (AudioSink, error) {
	switch opts.Type {
	case SinkNone, "":
		return nil, nil
	case SinkFile:
		sink, err := NewFileSink(opts.Dir)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case SinkPortAudio:
		sink, err := NewPortAudioSink(opts.FramesPerBuffer)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case SinkDiscord:
		sink, err := newDiscordSink(opts, logger)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", opts.Type)
	}
}

func newDiscordSink(opts Options, logger *slog.Logger) (*DiscordSink, error) {
	var (
		conv *audio.Converter
		err  error
	)
	if opts.FFmpegPath != "" {
		conv = audio.NewConverterWithPath(opts.FFmpegPath)
	} else if conv, err = audio.NewConverter(); err != nil {
		return nil, err
	}

	vm, err := discord.NewVoiceManager(opts.Discord, logger)
	if err != nil {
		return nil, err
	}
	if err := vm.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}

	return NewDiscordSink(conv, vm, logger.With("component", "discord_sink")), nil
}
