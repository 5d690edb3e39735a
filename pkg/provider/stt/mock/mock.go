// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to return a controlled transcription and to verify which files
// were submitted.
//
// Example:
//
//	p := &mock.Provider{Text: "open the door"}
//	text, _ := p.TranscribeFile(ctx, "/tmp/rec.wav")
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/chaqchase/sharad/pkg/provider/stt"
)

// TranscribeFileCall records a single invocation of TranscribeFile.
type TranscribeFileCall struct {
	// Ctx is the context passed to TranscribeFile.
	Ctx context.Context
	// Path is the file path passed to TranscribeFile.
	Path string
	// Size is the size of the file at call time, or -1 if it did not exist.
	Size int64
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by TranscribeFile when Err is nil.
	Text string

	// Err, if non-nil, is returned as the error from TranscribeFile.
	Err error

	// Calls records every call to TranscribeFile.
	Calls []TranscribeFileCall
}

// TranscribeFile records the call and returns Text, Err.
func (p *Provider) TranscribeFile(ctx context.Context, path string) (string, error) {
	size := int64(-1)
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscribeFileCall{Ctx: ctx, Path: path, Size: size})
	if p.Err != nil {
		return "", p.Err
	}
	return p.Text, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
