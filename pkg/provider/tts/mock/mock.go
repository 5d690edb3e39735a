// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled audio for each request and to verify which
// text and voice were sent to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{Audio: []byte("ID3...")}
//	rc, _ := p.Synthesize(ctx, tts.Request{Text: "Hello", Voice: tts.VoiceNova})
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/chaqchase/sharad/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Audio is returned as the synthesised stream for every request that has
	// no entry in AudioByText.
	Audio []byte

	// AudioByText overrides Audio for requests whose text matches a key.
	AudioByText map[string][]byte

	// SynthesizeErr, if non-nil, is returned for every request.
	SynthesizeErr error

	// ErrByText fails only the requests whose text matches a key.
	ErrByText map[string]error

	// DelayByText holds the request open for the given duration before
	// answering. A cancelled context ends the wait early with ctx.Err().
	DelayByText map[string]time.Duration

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in arrival order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call, waits for any configured delay, and returns
// the configured audio or error.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (io.ReadCloser, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	delay := p.DelayByText[req.Text]
	err := p.SynthesizeErr
	if e, ok := p.ErrByText[req.Text]; ok {
		err = e
	}
	audio := p.Audio
	if a, ok := p.AudioByText[req.Text]; ok {
		audio = a
	}
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(audio))), nil
}

// Calls returns a snapshot of the recorded calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
