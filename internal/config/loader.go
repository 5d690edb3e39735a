package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chaqchase/sharad/pkg/provider/tts"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts": {"openai", "elevenlabs"},
	"stt": {"openai", "whisper", "deepgram"},
}

// envKeys maps provider names to the environment variable holding their API
// key. A set variable fills in an empty api_key.
var envKeys = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"elevenlabs": "ELEVENLABS_API_KEY",
	"deepgram":   "DEEPGRAM_API_KEY",
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored. With no arguments it reads ".env" in the working
// directory.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], fills in
// API keys from the environment, and validates the result. An empty document
// yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills empty provider API keys from the environment variables in
// envKeys, and an empty Sentry DSN from SENTRY_DSN.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	fill := func(e *ProviderEntry) {
		if e.APIKey != "" {
			return
		}
		name, ok := envKeys[e.Name]
		if !ok {
			return
		}
		if v, ok := lookup(name); ok && v != "" {
			e.APIKey = v
		}
	}
	for _, pc := range []*ProviderConfig{&cfg.Providers.TTS, &cfg.Providers.STT} {
		fill(&pc.ProviderEntry)
		for i := range pc.Fallbacks {
			fill(&pc.Fallbacks[i])
		}
	}
	if cfg.Server.SentryDSN == "" {
		if v, ok := lookup("SENTRY_DSN"); ok {
			cfg.Server.SentryDSN = v
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	errs = append(errs, validateProvider("tts", cfg.Providers.TTS)...)
	errs = append(errs, validateProvider("stt", cfg.Providers.STT)...)

	// Narration
	n := cfg.Narration
	if n.Speed < 0.25 || n.Speed > 4.0 {
		errs = append(errs, fmt.Errorf("narration.speed %.2f is out of range [0.25, 4.0]", n.Speed))
	}
	if n.VoiceStrategy != "" && !n.VoiceStrategy.IsValid() {
		errs = append(errs, fmt.Errorf("narration.voice_strategy %q is invalid; valid values: deterministic, random", n.VoiceStrategy))
	}
	for i, v := range n.Voices {
		if !v.IsValid() {
			errs = append(errs, fmt.Errorf("narration.voices[%d] %q is invalid; valid values: %v", i, v, tts.Voices))
		}
	}
	if n.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("narration.max_concurrency %d must not be negative", n.MaxConcurrency))
	}
	if n.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("narration.request_timeout %s must not be negative", n.RequestTimeout))
	}

	// Capture
	if cfg.Capture.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("capture.poll_interval %s must not be negative", cfg.Capture.PollInterval))
	}
	if cfg.Capture.TranscribeTimeout < 0 {
		errs = append(errs, fmt.Errorf("capture.transcribe_timeout %s must not be negative", cfg.Capture.TranscribeTimeout))
	}

	// Playback
	if cfg.Playback.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("playback.sample_rate %d must be positive", cfg.Playback.SampleRate))
	}

	return errors.Join(errs...)
}

func validateProvider(kind string, pc ProviderConfig) []error {
	var errs []error
	validateProviderName(kind, pc.Name)
	if pc.Name == "" && len(pc.Fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("providers.%s: fallbacks configured without a primary name", kind))
	}
	for i, fb := range pc.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
