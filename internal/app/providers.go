package app

import (
	"fmt"
	"log/slog"

	"github.com/chaqchase/sharad/internal/config"
	"github.com/chaqchase/sharad/internal/observe"
	"github.com/chaqchase/sharad/internal/resilience"
	"github.com/chaqchase/sharad/pkg/audio"
	"github.com/chaqchase/sharad/pkg/provider/stt"
	"github.com/chaqchase/sharad/pkg/provider/tts"
)

// Providers holds the external services and devices the application drives.
// main fills the speech services with [BuildProviders] and the devices from
// the platform audio packages.
type Providers struct {
	TTS tts.Provider
	STT stt.Provider

	// TTSName and STTName label provider metrics.
	TTSName string
	STTName string

	// Breakers guard the speech backends, keyed by kind ("tts", "stt").
	// Empty when the services were injected directly.
	Breakers map[string][]*resilience.CircuitBreaker

	// Input is the microphone. Nil disables listening.
	Input audio.InputDevice

	// Output plays synthesized narration.
	Output audio.Player
}

// BuildProviders instantiates the configured TTS and STT services through
// reg. Each kind is wrapped in a failover group so its primary and fallbacks
// sit behind their own circuit breakers.
func BuildProviders(reg *config.Registry, cfg config.ProvidersConfig, m *observe.Metrics) (*Providers, error) {
	fbCfg := resilience.FallbackConfig{Metrics: m}
	ps := &Providers{Breakers: make(map[string][]*resilience.CircuitBreaker)}

	if cfg.TTS.Name == "" {
		return nil, fmt.Errorf("app: providers.tts.name is required")
	}
	if cfg.STT.Name == "" {
		return nil, fmt.Errorf("app: providers.stt.name is required")
	}
	if err := reg.Check(cfg); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	primaryTTS, err := reg.CreateTTS(cfg.TTS.ProviderEntry)
	if err != nil {
		return nil, fmt.Errorf("app: create tts provider %q: %w", cfg.TTS.Name, err)
	}
	ttsGroup := resilience.NewTTSFallback(primaryTTS, cfg.TTS.Name, fbCfg)
	for _, fb := range cfg.TTS.Fallbacks {
		p, err := reg.CreateTTS(fb)
		if err != nil {
			return nil, fmt.Errorf("app: create tts fallback %q: %w", fb.Name, err)
		}
		ttsGroup.AddFallback(fb.Name, p)
	}
	slog.Info("provider created", "kind", "tts", "chain", ttsGroup.Names())
	ps.TTS, ps.TTSName = ttsGroup, cfg.TTS.Name
	ps.Breakers["tts"] = ttsGroup.Breakers()

	primarySTT, err := reg.CreateSTT(cfg.STT.ProviderEntry)
	if err != nil {
		return nil, fmt.Errorf("app: create stt provider %q: %w", cfg.STT.Name, err)
	}
	sttGroup := resilience.NewSTTFallback(primarySTT, cfg.STT.Name, fbCfg)
	for _, fb := range cfg.STT.Fallbacks {
		p, err := reg.CreateSTT(fb)
		if err != nil {
			return nil, fmt.Errorf("app: create stt fallback %q: %w", fb.Name, err)
		}
		sttGroup.AddFallback(fb.Name, p)
	}
	slog.Info("provider created", "kind", "stt", "chain", sttGroup.Names())
	ps.STT, ps.STTName = sttGroup, cfg.STT.Name
	ps.Breakers["stt"] = sttGroup.Breakers()

	return ps, nil
}
