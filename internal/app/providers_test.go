package app_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/chaqchase/sharad/internal/app"
	"github.com/chaqchase/sharad/internal/config"
	"github.com/chaqchase/sharad/pkg/provider/stt"
	sttmock "github.com/chaqchase/sharad/pkg/provider/stt/mock"
	"github.com/chaqchase/sharad/pkg/provider/tts"
	ttsmock "github.com/chaqchase/sharad/pkg/provider/tts/mock"
)

// mockRegistry registers every mock under its map key.
func mockRegistry(ttsByName map[string]*ttsmock.Provider, sttByName map[string]*sttmock.Provider) *config.Registry {
	reg := config.NewRegistry()
	for name, p := range ttsByName {
		reg.RegisterTTS(name, func(config.ProviderEntry) (tts.Provider, error) { return p, nil })
	}
	for name, p := range sttByName {
		reg.RegisterSTT(name, func(config.ProviderEntry) (stt.Provider, error) { return p, nil })
	}
	return reg
}

func providersConfig(ttsName, sttName string, ttsFallbacks ...string) config.ProvidersConfig {
	cfg := config.ProvidersConfig{
		TTS: config.ProviderConfig{ProviderEntry: config.ProviderEntry{Name: ttsName}},
		STT: config.ProviderConfig{ProviderEntry: config.ProviderEntry{Name: sttName}},
	}
	for _, fb := range ttsFallbacks {
		cfg.TTS.Fallbacks = append(cfg.TTS.Fallbacks, config.ProviderEntry{Name: fb})
	}
	return cfg
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{SynthesizeErr: errors.New("503")}
	backup := &ttsmock.Provider{Audio: []byte("ID3:backup")}
	whisper := &sttmock.Provider{Text: "hello"}
	reg := mockRegistry(
		map[string]*ttsmock.Provider{"openai": primary, "elevenlabs": backup},
		map[string]*sttmock.Provider{"whisper": whisper},
	)

	ps, err := app.BuildProviders(reg, providersConfig("openai", "whisper", "elevenlabs"), newTestMetrics(t))
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if ps.TTSName != "openai" || ps.STTName != "whisper" {
		t.Errorf("names = %q/%q, want openai/whisper", ps.TTSName, ps.STTName)
	}
	if got := len(ps.Breakers["tts"]); got != 2 {
		t.Errorf("tts breakers = %d, want 2", got)
	}
	if got := len(ps.Breakers["stt"]); got != 1 {
		t.Errorf("stt breakers = %d, want 1", got)
	}

	rc, err := ps.TTS.Synthesize(context.Background(), tts.Request{Text: "Halt!", Voice: tts.VoiceOnyx})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "ID3:backup" {
		t.Errorf("audio = %q, want fallback audio", body)
	}
	if len(primary.Calls()) != 1 || len(backup.Calls()) != 1 {
		t.Errorf("calls primary=%d backup=%d, want 1 each", len(primary.Calls()), len(backup.Calls()))
	}

	text, err := ps.STT.TranscribeFile(context.Background(), "missing.wav")
	if err != nil || text != "hello" {
		t.Errorf("TranscribeFile = %q, %v", text, err)
	}
}

func TestBuildProviders_Errors(t *testing.T) {
	t.Parallel()

	reg := mockRegistry(
		map[string]*ttsmock.Provider{"openai": {}},
		map[string]*sttmock.Provider{"whisper": {}},
	)

	tests := []struct {
		name    string
		cfg     config.ProvidersConfig
		wantErr error
	}{
		{name: "missing tts name", cfg: providersConfig("", "whisper")},
		{name: "missing stt name", cfg: providersConfig("openai", "")},
		{name: "unknown tts", cfg: providersConfig("polly", "whisper"), wantErr: config.ErrProviderNotRegistered},
		{name: "unknown stt", cfg: providersConfig("openai", "vosk"), wantErr: config.ErrProviderNotRegistered},
		{name: "unknown fallback", cfg: providersConfig("openai", "whisper", "polly"), wantErr: config.ErrProviderNotRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := app.BuildProviders(reg, tt.cfg, nil)
			if err == nil {
				t.Fatalf("BuildProviders() = %+v, want error", ps)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
