package resilience

import (
	"context"

	"github.com/chaqchase/sharad/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with failover across several STT
// backends, each behind its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after those already added.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Names returns the backend names in trial order.
func (f *STTFallback) Names() []string { return f.group.Names() }

// Breakers returns the per-backend circuit breakers in trial order.
func (f *STTFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// TranscribeFile submits path to each backend in turn until one answers.
func (f *STTFallback) TranscribeFile(ctx context.Context, path string) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (string, error) {
		return p.TranscribeFile(ctx, path)
	})
}
