// Package mock provides in-memory mock implementations of the
// [audio.InputDevice], [audio.InputStream] and [audio.Player] interfaces for
// use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	dev := &mock.InputDevice{Format: audio.Format{Sample: audio.FormatS16, SampleRate: 16000, Channels: 1}}
//	sess, err := capture.Start(dev, dir)
//	dev.Stream().Emit(pcm) // simulate the device callback
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/chaqchase/sharad/pkg/audio"
)

// ─── InputDevice ──────────────────────────────────────────────────────────────

// InputDevice is a mock implementation of [audio.InputDevice].
type InputDevice struct {
	mu sync.Mutex

	// Format is the native format reported by opened streams.
	Format audio.Format

	// OpenErr is returned by [InputDevice.OpenInput] when non-nil.
	OpenErr error

	// StartErr is returned by the stream's Start when non-nil.
	StartErr error

	// OpenCalls records how many times OpenInput was called.
	OpenCalls int

	stream *InputStream
}

// OpenInput implements [audio.InputDevice].
func (d *InputDevice) OpenInput(onData func([]byte)) (audio.InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls++
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.stream = &InputStream{format: d.Format, onData: onData, startErr: d.StartErr}
	return d.stream, nil
}

// Stream returns the most recently opened stream, or nil.
func (d *InputDevice) Stream() *InputStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream
}

// ─── InputStream ──────────────────────────────────────────────────────────────

// InputStream is the stream returned by [InputDevice.OpenInput]. Tests drive
// the data callback with [InputStream.Emit].
type InputStream struct {
	mu       sync.Mutex
	format   audio.Format
	onData   func([]byte)
	startErr error
	started  bool
	closed   bool

	// CloseCalls records how many times Close was called.
	CloseCalls int
}

// Format implements [audio.InputStream].
func (s *InputStream) Format() audio.Format { return s.format }

// Start implements [audio.InputStream].
func (s *InputStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

// Close implements [audio.InputStream].
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	s.closed = true
	return nil
}

// Emit invokes the data callback with pcm as a real device thread would. It
// reports false without calling back if the stream is not started or already
// closed.
func (s *InputStream) Emit(pcm []byte) bool {
	s.mu.Lock()
	active := s.started && !s.closed
	cb := s.onData
	s.mu.Unlock()
	if !active || cb == nil {
		return false
	}
	cb(pcm)
	return true
}

// Closed reports whether Close has been called.
func (s *InputStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records a single invocation of Play.
type PlayCall struct {
	Path  string
	Start time.Time
	End   time.Time
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// Delay is how long each Play call blocks, honouring ctx.
	Delay time.Duration

	// PlayErr is returned by Play when non-nil.
	PlayErr error

	// ErrByPath overrides PlayErr for specific paths.
	ErrByPath map[string]error

	// Calls records every call to Play in order.
	Calls []PlayCall

	active    int
	maxActive int
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, path string) error {
	p.mu.Lock()
	p.active++
	p.maxActive = max(p.maxActive, p.active)
	delay := p.Delay
	err := p.PlayErr
	if e, ok := p.ErrByPath[path]; ok {
		err = e
	}
	p.mu.Unlock()

	start := time.Now()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	p.mu.Lock()
	p.active--
	p.Calls = append(p.Calls, PlayCall{Path: path, Start: start, End: time.Now()})
	p.mu.Unlock()
	return err
}

// Paths returns the paths passed to Play, in call order.
func (p *Player) Paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Path
	}
	return out
}

// MaxConcurrent returns the highest number of Play calls observed in flight
// at the same time.
func (p *Player) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxActive
}
