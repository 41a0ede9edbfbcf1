package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/ttsclient/internal/credential"
	"github.com/dgnsrekt/ttsclient/internal/tts"
)

// EnvPrefix prefixes every environment override, e.g. TTSCLIENT_HTTP_PORT.
const EnvPrefix = "TTSCLIENT"

// DefaultFile is the config file name searched in "." and "./config".
const DefaultFile = "ttsclient.yaml"

// Config holds all application configuration.
type Config struct {
	TTS        TTSConfig             `mapstructure:"tts"`
	Behavior   BehaviorConfig        `mapstructure:"behavior"`
	Credential credential.Credential `mapstructure:"credential"`
	Sink       SinkConfig            `mapstructure:"sink"`
	Discord    DiscordConfig         `mapstructure:"discord"`
	HTTP       HTTPConfig            `mapstructure:"http"`
	Log        LogConfig             `mapstructure:"log"`
	Telemetry  TelemetryConfig       `mapstructure:"telemetry"`
	Relay      RelayConfig           `mapstructure:"relay"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// TTSConfig selects the endpoint, voice and audio format.
type TTSConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	LanguageCode   string        `mapstructure:"language_code"`
	VoiceName      string        `mapstructure:"voice_name"`
	SSMLGender     string        `mapstructure:"ssml_gender"`
	AudioEncoding  string        `mapstructure:"audio_encoding"`
	SampleRate     int           `mapstructure:"sample_rate"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// BehaviorConfig controls what happens around each request.
type BehaviorConfig struct {
	StartupText       string        `mapstructure:"startup_text"`
	AutoStart         bool          `mapstructure:"auto_start"`
	PlayWhenGenerated bool          `mapstructure:"play_when_generated"`
	TrimEnds          bool          `mapstructure:"trim_ends"`
	TrimStart         float64       `mapstructure:"trim_start"`
	TrimEnd           float64       `mapstructure:"trim_end"`
	QueueCapacity     int           `mapstructure:"queue_capacity"`
	MaxTextLength     int           `mapstructure:"max_text_length"`
	Tick              time.Duration `mapstructure:"tick"`
}

// SinkConfig selects where audio is played.
type SinkConfig struct {
	Type            string `mapstructure:"type"`
	Dir             string `mapstructure:"dir"`
	FramesPerBuffer int    `mapstructure:"frames_per_buffer"`
	FFmpegPath      string `mapstructure:"ffmpeg_path"`
}

// DiscordConfig identifies the bot and voice channel for the discord sink.
type DiscordConfig struct {
	Token     string `mapstructure:"token"`
	GuildID   string `mapstructure:"guild_id"`
	ChannelID string `mapstructure:"channel_id"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Port        int      `mapstructure:"port"`
	BearerToken string   `mapstructure:"bearer_token"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig configures exporters.
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	Environment  string `mapstructure:"environment"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	StdoutTraces bool   `mapstructure:"stdout_traces"`
}

// RelayConfig subscribes to ntfy topics. No topics disables the relay.
type RelayConfig struct {
	Server       string        `mapstructure:"server"`
	Topics       []string      `mapstructure:"topics"`
	Prefix       string        `mapstructure:"prefix"`
	Gender       string        `mapstructure:"gender"`
	DedupeWindow time.Duration `mapstructure:"dedupe_window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tts.endpoint", tts.DefaultEndpoint)
	v.SetDefault("tts.language_code", "en-US")
	v.SetDefault("tts.voice_name", "en-US-Standard-A")
	v.SetDefault("tts.ssml_gender", "MALE")
	v.SetDefault("tts.audio_encoding", "LINEAR16")
	v.SetDefault("tts.sample_rate", 24000)
	v.SetDefault("tts.request_timeout", time.Duration(0))

	v.SetDefault("behavior.startup_text", "This is a TTS test with text from the config 'startup_text' field.")
	v.SetDefault("behavior.auto_start", false)
	v.SetDefault("behavior.play_when_generated", false)
	v.SetDefault("behavior.trim_ends", false)
	v.SetDefault("behavior.trim_start", 0.1)
	v.SetDefault("behavior.trim_end", 0.1)
	v.SetDefault("behavior.queue_capacity", 0)
	v.SetDefault("behavior.max_text_length", 5000)
	v.SetDefault("behavior.tick", 50*time.Millisecond)

	v.SetDefault("credential.encrypted_api_key", "")
	v.SetDefault("credential.aes_key", "")
	v.SetDefault("credential.aes_iv", "")

	v.SetDefault("sink.type", "none")
	v.SetDefault("sink.dir", "./clips")
	v.SetDefault("sink.frames_per_buffer", 1024)
	v.SetDefault("sink.ffmpeg_path", "")

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.channel_id", "")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.bearer_token", "")
	v.SetDefault("http.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("telemetry.service_name", "ttsclient")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.stdout_traces", false)

	v.SetDefault("relay.server", "https://ntfy.sh")
	v.SetDefault("relay.topics", []string{})
	v.SetDefault("relay.prefix", "")
	v.SetDefault("relay.gender", "")
	v.SetDefault("relay.dedupe_window", time.Duration(0))
}

// searchDirs are checked in order for DefaultFile.
var searchDirs = []string{".", "config"}

// FindFile returns the first DefaultFile found in the search directories, or
// "" when there is none.
func FindFile() string {
	for _, dir := range searchDirs {
		p := filepath.Join(dir, DefaultFile)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// ResolvePath returns path when set, otherwise the file Load would read. With
// nothing on disk it falls back to DefaultFile in the working directory so
// that writers have somewhere to create it.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if found := FindFile(); found != "" {
		return found
	}
	return DefaultFile
}

// Load reads configuration from path, or from ttsclient.yaml in "." or
// "./config" when path is empty. Environment variables override file values
// and a .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	// A missing .env is normal
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = FindFile()
	}

	// without a file only defaults and environment apply
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// AuthDisabled returns true if bearer token authentication is disabled.
func (c *Config) AuthDisabled() bool {
	return c.HTTP.BearerToken == ""
}

// Voice returns the configured voice selection.
func (c *Config) Voice() tts.VoiceSettings {
	return tts.VoiceSettings{
		LanguageCode: c.TTS.LanguageCode,
		VoiceName:    c.TTS.VoiceName,
		SSMLGender:   c.TTS.SSMLGender,
	}
}

// Audio returns the configured audio format.
func (c *Config) Audio() tts.AudioSettings {
	return tts.AudioSettings{
		Encoding:        c.TTS.AudioEncoding,
		SampleRateHertz: c.TTS.SampleRate,
	}
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}

	if c.Behavior.MaxTextLength < 1 {
		return errors.New("behavior.max_text_length must be at least 1")
	}

	if c.Behavior.QueueCapacity < 0 {
		return errors.New("behavior.queue_capacity must be non-negative")
	}

	if c.Behavior.Tick <= 0 {
		return errors.New("behavior.tick must be positive")
	}

	if c.Behavior.TrimStart < 0 || c.Behavior.TrimEnd < 0 {
		return errors.New("behavior.trim_start and behavior.trim_end must be non-negative")
	}

	if c.TTS.RequestTimeout < 0 {
		return errors.New("tts.request_timeout must be non-negative")
	}

	if c.TTS.SampleRate < 1 {
		return errors.New("tts.sample_rate must be at least 1")
	}

	validEncodings := map[string]bool{"LINEAR16": true, "MP3": true}
	if !validEncodings[c.TTS.AudioEncoding] {
		return errors.New("tts.audio_encoding must be one of: LINEAR16, MP3")
	}

	if c.TTS.LanguageCode == "" {
		return errors.New("tts.language_code is required")
	}

	if c.TTS.SSMLGender != "" && !tts.ValidGender(c.TTS.SSMLGender) {
		return errors.New("tts.ssml_gender must be one of: MALE, FEMALE, NEUTRAL")
	}

	switch c.Sink.Type {
	case "none", "portaudio":
	case "file":
		if c.Sink.Dir == "" {
			return errors.New("sink.dir is required for the file sink")
		}
	case "discord":
		if c.Discord.Token == "" || c.Discord.GuildID == "" || c.Discord.ChannelID == "" {
			return errors.New("discord.token, discord.guild_id and discord.channel_id are required for the discord sink")
		}
	default:
		return errors.New("sink.type must be one of: none, portaudio, discord, file")
	}

	if len(c.Relay.Topics) > 0 && c.Relay.Server == "" {
		return errors.New("relay.server is required when relay.topics is set")
	}

	if c.Relay.DedupeWindow < 0 {
		return errors.New("relay.dedupe_window must be non-negative")
	}

	if c.Relay.Gender != "" && !tts.ValidGender(c.Relay.Gender) {
		return errors.New("relay.gender must be one of: MALE, FEMALE, NEUTRAL")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Log.Level] {
		return errors.New("log.level must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.Log.Format] {
		return errors.New("log.format must be one of: text, json")
	}

	return nil
}
