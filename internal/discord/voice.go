// Package discord streams synthesized speech into a Discord voice channel.
package discord

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/dgnsrekt/ttsclient/internal/audio"
)

const (
	// voiceConnectTimeout is the maximum time to wait for voice connection readiness.
	voiceConnectTimeout = 10 * time.Second
	// voiceConnectPollInterval is the polling interval while waiting for connection.
	voiceConnectPollInterval = 100 * time.Millisecond
	// frameDuration is the duration of one Discord audio frame (20ms).
	frameDuration = 20 * time.Millisecond
	// maxOpusDataBytes is the maximum size of an encoded Opus frame.
	maxOpusDataBytes = 4000
)

var (
	// ErrNotConnected is returned when trying to send audio while not connected.
	ErrNotConnected = errors.New("not connected to voice channel")
	// ErrConnectionFailed is returned when voice connection fails.
	ErrConnectionFailed = errors.New("failed to connect to voice channel")
	// ErrMissingSettings is returned when token, guild or channel is empty.
	ErrMissingSettings = errors.New("discord token, guild_id and channel_id are required")
)

// Settings identifies the bot and the voice channel it speaks in.
type Settings struct {
	Token     string
	GuildID   string
	ChannelID string
}

// opusEncoder is satisfied by *gopus.Encoder.
type opusEncoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// VoiceManager owns the bot session and its voice connection.
type VoiceManager struct {
	mu              sync.Mutex
	session         *discordgo.Session
	voiceConnection *discordgo.VoiceConnection
	settings        Settings
	logger          *slog.Logger
	encoder         opusEncoder
	frameInterval   time.Duration
}

// NewVoiceManager creates a voice manager. The session is not opened.
func NewVoiceManager(settings Settings, logger *slog.Logger) (*VoiceManager, error) {
	if settings.Token == "" || settings.GuildID == "" || settings.ChannelID == "" {
		return nil, ErrMissingSettings
	}

	session, err := discordgo.New("Bot " + settings.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	// 48kHz stereo, tuned for speech
	encoder, err := gopus.NewEncoder(audio.DiscordSampleRate, audio.DiscordChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	return &VoiceManager{
		session:       session,
		settings:      settings,
		logger:        logger.With("component", "discord"),
		encoder:       encoder,
		frameInterval: frameDuration,
	}, nil
}

// Open opens the Discord gateway session.
func (vm *VoiceManager) Open() error {
	return vm.session.Open()
}

// Close leaves the voice channel and closes the session.
func (vm *VoiceManager) Close() error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.voiceConnection != nil {
		vm.voiceConnection.Disconnect()
		vm.voiceConnection = nil
	}
	if vm.session == nil {
		return nil
	}
	return vm.session.Close()
}

// Connect joins the configured voice channel if not already joined.
func (vm *VoiceManager) Connect(ctx context.Context) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.voiceConnection != nil {
		return nil
	}

	vm.logger.Info("connecting to voice channel",
		"guild_id", vm.settings.GuildID,
		"channel_id", vm.settings.ChannelID,
	)

	// mute=false, deaf=true
	vc, err := vm.session.ChannelVoiceJoin(vm.settings.GuildID, vm.settings.ChannelID, false, true)
	if err != nil {
		return errors.Join(ErrConnectionFailed, err)
	}

	// Ready is a plain bool, so poll it
	deadline := time.Now().Add(voiceConnectTimeout)
	for !vc.Ready {
		if ctx.Err() != nil {
			vc.Disconnect()
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			vc.Disconnect()
			return ErrConnectionFailed
		}
		time.Sleep(voiceConnectPollInterval)
	}

	vm.voiceConnection = vc
	vm.logger.Info("connected to voice channel")
	return nil
}

// Disconnect leaves the voice channel.
func (vm *VoiceManager) Disconnect() error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.voiceConnection == nil {
		return nil
	}

	vm.logger.Info("disconnecting from voice channel")
	err := vm.voiceConnection.Disconnect()
	vm.voiceConnection = nil
	return err
}

// IsConnected reports whether a voice connection is held.
func (vm *VoiceManager) IsConnected() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.voiceConnection != nil
}

// Speak joins the channel when needed and streams pcm, which must be 48kHz
// stereo s16le.
func (vm *VoiceManager) Speak(ctx context.Context, pcm []byte) error {
	if err := vm.Connect(ctx); err != nil {
		return err
	}
	return vm.SendAudio(ctx, pcm)
}

// SendAudio streams pcm over the current voice connection.
func (vm *VoiceManager) SendAudio(ctx context.Context, pcm []byte) error {
	vm.mu.Lock()
	vc := vm.voiceConnection
	vm.mu.Unlock()

	if vc == nil {
		return ErrNotConnected
	}

	if err := vc.Speaking(true); err != nil {
		vm.logger.Error("failed to set speaking state", "error", err)
	}
	defer func() {
		if err := vc.Speaking(false); err != nil {
			vm.logger.Error("failed to clear speaking state", "error", err)
		}
	}()

	return vm.sendFrames(ctx, pcm, vc.OpusSend)
}

// sendFrames encodes pcm frame by frame and paces the frames onto out at the
// real-time rate. A trailing partial frame is dropped.
func (vm *VoiceManager) sendFrames(ctx context.Context, pcm []byte, out chan<- []byte) error {
	frames := audio.NewPCMFrameReader(pcm)

	ticker := time.NewTicker(vm.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, err := frames.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		opus, err := vm.encodeOpus(frame)
		if err != nil {
			vm.logger.Error("opus encoding failed", "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- opus:
		}
	}
}

// encodeOpus converts one 20ms stereo s16le frame to Opus.
func (vm *VoiceManager) encodeOpus(pcm []byte) ([]byte, error) {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return vm.encoder.Encode(samples, audio.DiscordFrameSize, maxOpusDataBytes)
}
