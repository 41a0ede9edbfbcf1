// Package playback delivers decoded speech to an audio output.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgnsrekt/ttsclient/internal/audio"
)

// ErrPlayback is returned when a sink fails to play a buffer.
var ErrPlayback = audio.ErrPlayback

// AudioSink plays a buffer to completion or until ctx ends.
type AudioSink interface {
	Play(ctx context.Context, buf *audio.Buffer) error
	Name() string
}

// Player forwards buffers to an optional sink.
type Player struct {
	sink   AudioSink
	logger *slog.Logger
}

// NewPlayer creates a player. sink may be nil.
func NewPlayer(sink AudioSink, logger *slog.Logger) *Player {
	return &Player{
		sink:   sink,
		logger: logger.With("component", "playback"),
	}
}

// Play sends buf to the sink. Without a sink it logs a warning and returns nil.
func (p *Player) Play(ctx context.Context, buf *audio.Buffer) error {
	if p.sink == nil {
		p.logger.Warn("no audio sink configured, skipping playback")
		return nil
	}
	if buf == nil || len(buf.Samples) == 0 {
		return fmt.Errorf("%w: empty buffer", ErrPlayback)
	}

	p.logger.Debug("playing clip",
		"sink", p.sink.Name(),
		"duration_seconds", buf.Duration(),
	)

	if err := p.sink.Play(ctx, buf); err != nil {
		if errors.Is(err, context.Canceled) {
			p.logger.Info("playback interrupted", "sink", p.sink.Name())
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrPlayback, p.sink.Name(), err)
	}
	return nil
}

// SinkName returns the sink name, or "none".
func (p *Player) SinkName() string {
	if p.sink == nil {
		return SinkNone
	}
	return p.sink.Name()
}

// Close releases the sink when it holds resources.
func (p *Player) Close() error {
	if c, ok := p.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
