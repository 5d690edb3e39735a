// Package config provides the configuration schema, loader, and provider registry
// for Sharad.
package config

import (
	"log/slog"
	"time"

	"github.com/chaqchase/sharad/pkg/provider/tts"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog returns the matching slog level. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// VoiceStrategy selects how speakers are mapped to voices.
type VoiceStrategy string

const (
	VoiceDeterministic VoiceStrategy = "deterministic"
	VoiceRandom        VoiceStrategy = "random"
)

// IsValid reports whether s is a recognised strategy.
func (s VoiceStrategy) IsValid() bool {
	return s == VoiceDeterministic || s == VoiceRandom
}

// Default values applied before a file is decoded. Fields absent from the
// file keep these.
const (
	DefaultSpeed             = 1.3
	DefaultMaxConcurrency    = 8
	DefaultRequestTimeout    = 30 * time.Second
	DefaultPollInterval      = 20 * time.Millisecond
	DefaultTranscribeTimeout = 60 * time.Second
	DefaultSampleRate        = 44100
)

// Config is the root configuration structure for Sharad.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Narration NarrationConfig `yaml:"narration"`
	Capture   CaptureConfig   `yaml:"capture"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Storage   StorageConfig   `yaml:"storage"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Narration: NarrationConfig{
			Model:          "tts-1",
			Speed:          DefaultSpeed,
			VoiceStrategy:  VoiceDeterministic,
			MaxConcurrency: DefaultMaxConcurrency,
			RequestTimeout: DefaultRequestTimeout,
			OutputEnabled:  true,
		},
		Capture: CaptureConfig{
			PollInterval:      DefaultPollInterval,
			TranscribeTimeout: DefaultTranscribeTimeout,
			InputEnabled:      true,
		},
		Playback: PlaybackConfig{SampleRate: DefaultSampleRate},
	}
}

// ServerConfig holds logging, error tracking and the optional metrics/health
// listener.
type ServerConfig struct {
	// ListenAddr is the TCP address for /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// SentryDSN enables error reporting when set.
	SentryDSN string `yaml:"sentry_dsn"`

	// Environment is attached to reported errors (e.g., "production").
	Environment string `yaml:"environment"`
}

// ProvidersConfig declares which provider implementation to use for
// synthesis and transcription. Each entry selects a named provider registered
// in the [Registry].
type ProvidersConfig struct {
	TTS ProviderConfig `yaml:"tts"`
	STT ProviderConfig `yaml:"stt"`
}

// ProviderConfig is a primary provider plus ordered fallbacks tried when the
// primary fails.
type ProviderConfig struct {
	ProviderEntry `yaml:",inline"`

	// Fallbacks are tried in order after the primary.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "tts-1", "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// NarrationConfig controls voice assignment and synthesis.
type NarrationConfig struct {
	// Model is the synthesis model requested from OpenAI-compatible backends.
	Model string `yaml:"model"`

	// Speed is the playback speed requested for every line.
	Speed float64 `yaml:"speed"`

	// VoiceStrategy selects deterministic or random assignment.
	VoiceStrategy VoiceStrategy `yaml:"voice_strategy"`

	// VoiceSeed makes random assignment reproducible. 0 seeds randomly.
	VoiceSeed uint64 `yaml:"voice_seed"`

	// Voices restricts the voice set. Empty means every known voice.
	Voices []tts.Voice `yaml:"voices"`

	// MaxConcurrency bounds in-flight synthesis requests per event.
	// 0 means unbounded.
	MaxConcurrency int `yaml:"max_concurrency"`

	// RequestTimeout bounds each synthesis request. 0 disables the timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// OutputEnabled toggles audio output. When false, narration events are
	// dropped without synthesis.
	OutputEnabled bool `yaml:"output_enabled"`
}

// VoiceSet returns the configured voices, or every known voice when none
// are configured.
func (n NarrationConfig) VoiceSet() []tts.Voice {
	if len(n.Voices) == 0 {
		return tts.Voices
	}
	return n.Voices
}

// CaptureConfig controls microphone capture and transcription.
type CaptureConfig struct {
	// PollInterval is how often the capture loop checks its stop flag.
	PollInterval time.Duration `yaml:"poll_interval"`

	// TranscribeTimeout bounds one transcription request. 0 disables it.
	TranscribeTimeout time.Duration `yaml:"transcribe_timeout"`

	// KeepRecordings leaves WAV files on disk after transcription.
	KeepRecordings bool `yaml:"keep_recordings"`

	// InputEnabled toggles microphone input.
	InputEnabled bool `yaml:"input_enabled"`

	// Vocabulary lists campaign names such as characters and places that
	// transcriptions are corrected against. Empty disables correction.
	Vocabulary []string `yaml:"vocabulary"`
}

// PlaybackConfig controls the output device.
type PlaybackConfig struct {
	// SampleRate is the output device rate in Hz. Decoded audio is resampled
	// to it.
	SampleRate int `yaml:"sample_rate"`
}

// StorageConfig controls where audio files are written.
type StorageConfig struct {
	// DataDir is the application data directory holding temp_logs. Empty
	// selects the per-user config directory.
	DataDir string `yaml:"data_dir"`
}
