package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/chaqchase/sharad/pkg/provider/stt"
	"github.com/chaqchase/sharad/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when a config names a speech backend
// that no factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a speech backend from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is the name → constructor table of one provider kind.
type factories[T any] struct {
	kind string

	mu sync.RWMutex
	m  map[string]Factory[T]
}

func newFactories[T any](kind string) *factories[T] {
	return &factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f *factories[T]) register(name string, fn Factory[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[name] = fn
}

func (f *factories[T]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.m))
}

func (f *factories[T]) lookup(name string) error {
	f.mu.RLock()
	_, ok := f.m[name]
	f.mu.RUnlock()
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s/%q (available: %s)", ErrProviderNotRegistered, f.kind, name, strings.Join(f.names(), ", "))
}

func (f *factories[T]) create(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	fn, ok := f.m[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, f.lookup(entry.Name)
	}
	p, err := fn(entry)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("config: build %s provider %q: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

// Registry maps the names used under providers.tts and providers.stt to the
// constructors of the narration and transcription backends. It is safe for
// concurrent use.
type Registry struct {
	tts *factories[tts.Provider]
	stt *factories[stt.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		tts: newFactories[tts.Provider]("tts"),
		stt: newFactories[stt.Provider]("stt"),
	}
}

// RegisterTTS registers a narration backend under name, replacing any
// earlier registration.
func (r *Registry) RegisterTTS(name string, factory Factory[tts.Provider]) {
	r.tts.register(name, factory)
}

// RegisterSTT registers a transcription backend under name, replacing any
// earlier registration.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Provider]) {
	r.stt.register(name, factory)
}

// CreateTTS builds the narration backend registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return r.tts.create(entry)
}

// CreateSTT builds the transcription backend registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create(entry)
}

// TTSNames lists the registered narration backend names, sorted.
func (r *Registry) TTSNames() []string { return r.tts.names() }

// STTNames lists the registered transcription backend names, sorted.
func (r *Registry) STTNames() []string { return r.stt.names() }

// Check reports every provider name in cfg, primaries and fallbacks, that
// has no registered factory. Empty names are skipped; requiring them is up to
// the caller. The error wraps [ErrProviderNotRegistered].
func (r *Registry) Check(cfg ProvidersConfig) error {
	var errs []error
	for _, e := range append([]ProviderEntry{cfg.TTS.ProviderEntry}, cfg.TTS.Fallbacks...) {
		if e.Name != "" {
			errs = append(errs, r.tts.lookup(e.Name))
		}
	}
	for _, e := range append([]ProviderEntry{cfg.STT.ProviderEntry}, cfg.STT.Fallbacks...) {
		if e.Name != "" {
			errs = append(errs, r.stt.lookup(e.Name))
		}
	}
	return errors.Join(errs...)
}
