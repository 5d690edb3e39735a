package resilience

import (
	"context"
	"io"

	"github.com/chaqchase/sharad/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with failover across several TTS
// backends, each behind its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after those already added.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Names returns the backend names in trial order.
func (f *TTSFallback) Names() []string { return f.group.Names() }

// Breakers returns the per-backend circuit breakers in trial order.
func (f *TTSFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// Synthesize asks each backend in turn until one returns a stream. Only
// opening the stream is covered; a read error halfway through is the
// caller's to handle.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (io.ReadCloser, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (io.ReadCloser, error) {
		return p.Synthesize(ctx, req)
	})
}
