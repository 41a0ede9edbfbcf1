package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/dgnsrekt/ttsclient/internal/api"
	"github.com/dgnsrekt/ttsclient/internal/audio"
	"github.com/dgnsrekt/ttsclient/internal/config"
	"github.com/dgnsrekt/ttsclient/internal/credential"
	"github.com/dgnsrekt/ttsclient/internal/discord"
	"github.com/dgnsrekt/ttsclient/internal/logging"
	"github.com/dgnsrekt/ttsclient/internal/playback"
	"github.com/dgnsrekt/ttsclient/internal/queue"
	"github.com/dgnsrekt/ttsclient/internal/relay"
	"github.com/dgnsrekt/ttsclient/internal/synth"
	"github.com/dgnsrekt/ttsclient/internal/telemetry"
	"github.com/dgnsrekt/ttsclient/internal/tts"
)

const version = "0.1.0"

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (default: ./ttsclient.yaml or ./config/ttsclient.yaml)")
	say := pflag.String("say", "", "synthesize this text once and exit")
	out := pflag.StringP("out", "o", "", "with --say, write the audio to this WAV file instead of playing it")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Use stderr before logger is initialized
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting ttsclient", "version", version)

	logger.Info("configuration loaded",
		"config_file", cfg.File,
		"log_level", cfg.Log.Level,
		"language_code", cfg.TTS.LanguageCode,
		"voice_name", cfg.TTS.VoiceName,
		"audio_encoding", cfg.TTS.AudioEncoding,
		"sink", cfg.Sink.Type,
		"queue_capacity", cfg.Behavior.QueueCapacity,
		"credential_complete", cfg.Credential.IsComplete(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if *say != "" {
		if err := runOnce(ctx, cfg, logger, *say, *out); err != nil {
			logger.Error("synthesis failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cancel, cfg, logger); err != nil {
		logger.Error("ttsclient stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// run starts the daemon and blocks until ctx is cancelled.
func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *slog.Logger) error {
	tel, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Telemetry.Environment,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		StdoutTraces: cfg.Telemetry.StdoutTraces,
	}, logger)
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to flush telemetry", "error", err)
		}
	}()

	player, err := newPlayer(cfg, logger)
	if err != nil {
		return err
	}
	defer player.Close()

	requester := newRequester(cfg, cfg.Behavior.PlayWhenGenerated, player, tel, logger)

	if cfg.Behavior.AutoStart {
		if _, err := requester.Enqueue(cfg.Behavior.StartupText, "", nil); err != nil {
			logger.Warn("failed to enqueue startup text", "error", err)
		}
	}

	var server *api.Server
	if cfg.HTTP.Enabled {
		if cfg.AuthDisabled() {
			logger.Warn("HTTP bearer authentication is disabled (http.bearer_token is empty)")
		}
		server = api.New(cfg, logger, requester, tel.Handler)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("HTTP server error", "error", err)
				cancel()
			}
		}()
	}

	relayDone := make(chan struct{})
	if len(cfg.Relay.Topics) > 0 {
		sub := relay.NewSubscriber(relay.Options{
			Server:        cfg.Relay.Server,
			Topics:        cfg.Relay.Topics,
			Prefix:        cfg.Relay.Prefix,
			Gender:        cfg.Relay.Gender,
			DedupeWindow:  cfg.Relay.DedupeWindow,
			MaxTextLength: cfg.Behavior.MaxTextLength,
		}, requester, nil, logger)
		go func() {
			defer close(relayDone)
			sub.Run(ctx)
		}()
	} else {
		close(relayDone)
	}

	// Blocks until ctx is cancelled and the in-flight request has returned.
	requester.Run(ctx, cfg.Behavior.Tick)

	dropped := requester.Shutdown()
	logger.Info("pending requests dropped", "count", dropped)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var errs []error
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown HTTP server: %w", err))
		}
	}
	<-relayDone

	return errors.Join(errs...)
}

// runOnce synthesizes text through the same requester and either writes the
// result to out or plays it on the configured sink.
func runOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger, text, out string) error {
	var player synth.Player
	if out == "" {
		p, err := newPlayer(cfg, logger)
		if err != nil {
			return err
		}
		defer p.Close()
		player = p
	}

	requester := newRequester(cfg, out == "", player, nil, logger)

	var result *audio.Buffer
	req, err := requester.Enqueue(text, "", func(buf *audio.Buffer) {
		result = buf
	})
	if err != nil {
		return err
	}

	requester.DrainStep(ctx)
	<-req.Done()
	requester.Wait()

	if err := req.Err(); err != nil {
		return fmt.Errorf("%s: %w", synth.ErrorKind(err), err)
	}

	if out != "" {
		if err := playback.WriteWAV(out, result); err != nil {
			return err
		}
		logger.Info("audio written", "path", out, "duration_seconds", result.Duration())
	}
	return nil
}

func newPlayer(cfg *config.Config, logger *slog.Logger) (*playback.Player, error) {
	sink, err := playback.NewSink(playback.Options{
		Type:            cfg.Sink.Type,
		Dir:             cfg.Sink.Dir,
		FramesPerBuffer: cfg.Sink.FramesPerBuffer,
		FFmpegPath:      cfg.Sink.FFmpegPath,
		Discord: discord.Settings{
			Token:     cfg.Discord.Token,
			GuildID:   cfg.Discord.GuildID,
			ChannelID: cfg.Discord.ChannelID,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create %s sink: %w", cfg.Sink.Type, err)
	}
	return playback.NewPlayer(sink, logger), nil
}

func newRequester(cfg *config.Config, play bool, player synth.Player, tel *telemetry.Provider, logger *slog.Logger) *synth.Requester {
	deps := synth.Deps{
		Queue:       queue.NewQueue(cfg.Behavior.QueueCapacity, logger),
		Credentials: credentialSource(cfg),
		Client:      tts.NewClient(cfg.TTS.Endpoint, nil, logger),
		Player:      player,
		Logger:      logger,
	}
	if tel != nil {
		deps.Metrics = tel.Metrics
		deps.Tracer = tel.Tracer
	}

	return synth.New(synth.Options{
		Voice:             cfg.Voice(),
		Audio:             cfg.Audio(),
		TrimEnds:          cfg.Behavior.TrimEnds,
		TrimStart:         cfg.Behavior.TrimStart,
		TrimEnd:           cfg.Behavior.TrimEnd,
		PlayWhenGenerated: play,
		RequestTimeout:    cfg.TTS.RequestTimeout,
	}, deps)
}

// credentialSource reads the credential from the config file on every
// request so that `ttskey rotate` applies without a restart. Credentials
// supplied through the environment are used as loaded.
func credentialSource(cfg *config.Config) synth.CredentialSource {
	if cfg.File == "" || credentialFromEnv() {
		return credential.Static(cfg.Credential)
	}
	return credential.NewFileStore(cfg.File)
}

func credentialFromEnv() bool {
	for _, key := range []string{"ENCRYPTED_API_KEY", "AES_KEY", "AES_IV"} {
		if _, ok := os.LookupEnv(config.EnvPrefix + "_CREDENTIAL_" + key); ok {
			return true
		}
	}
	return false
}
