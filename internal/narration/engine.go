package narration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chaqchase/sharad/internal/observe"
	"github.com/chaqchase/sharad/internal/storage"
	"github.com/chaqchase/sharad/pkg/provider/tts"
	"github.com/chaqchase/sharad/pkg/script"
)

const (
	// DefaultSpeed is the playback speed requested for every line.
	DefaultSpeed = 1.3

	// DefaultMaxConcurrency bounds in-flight synthesis requests per event.
	DefaultMaxConcurrency = 8

	// DefaultRequestTimeout bounds a single synthesis request.
	DefaultRequestTimeout = 30 * time.Second
)

// ErrVoiceNotAssigned is returned by [Engine.Synthesize] when a line's
// speaker has no voice. No request is issued in that case.
var ErrVoiceNotAssigned = errors.New("narration: voice not assigned")

// EngineOption configures an [Engine].
type EngineOption func(*Engine)

// WithSpeed overrides [DefaultSpeed].
func WithSpeed(speed float64) EngineOption {
	return func(e *Engine) { e.speed = speed }
}

// WithMaxConcurrency bounds the number of concurrent requests. Zero or
// negative means unbounded.
func WithMaxConcurrency(n int) EngineOption {
	return func(e *Engine) { e.maxConcurrency = n }
}

// WithRequestTimeout overrides [DefaultRequestTimeout]. Zero disables the
// per-request timeout.
func WithRequestTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.requestTimeout = d }
}

// WithProviderName sets the provider label used on metrics.
func WithProviderName(name string) EngineOption {
	return func(e *Engine) { e.providerName = name }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// Engine turns a script into one audio file per dialogue line.
type Engine struct {
	tts            tts.Provider
	speed          float64
	maxConcurrency int
	requestTimeout time.Duration
	providerName   string
	metrics        *observe.Metrics
	now            func() time.Time
}

// NewEngine returns an Engine synthesizing through p.
func NewEngine(p tts.Provider, opts ...EngineOption) *Engine {
	e := &Engine{
		tts:            p,
		speed:          DefaultSpeed,
		maxConcurrency: DefaultMaxConcurrency,
		requestTimeout: DefaultRequestTimeout,
		providerName:   "tts",
		now:            time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// lineResult is what a worker hands back to the collector. index is the
// dialogue position the request was dispatched for.
type lineResult struct {
	index int
	path  string
	err   error
}

// Synthesize issues one request per dialogue line of s and returns a copy of
// s whose lines carry the path of their audio file. s itself is not
// modified.
//
// Requests are dispatched in dialogue order but may complete in any order;
// each result is applied to the line it was dispatched for. A failed line
// keeps no audio and is logged; it does not fail the others. Synthesize
// returns only after every request has resolved.
//
// Speakers must already have voices. A line whose speaker has none yields
// [ErrVoiceNotAssigned] before anything is sent.
func (e *Engine) Synthesize(ctx context.Context, s *script.Script, dest storage.Destination) (*script.Script, error) {
	out := s.Clone()

	voices := make([]tts.Voice, len(out.Dialogue))
	for i, line := range out.Dialogue {
		v, ok := out.VoiceFor(i)
		if !ok {
			return nil, fmt.Errorf("%w: line %d (speaker %d)", ErrVoiceNotAssigned, i, line.SpeakerIndex)
		}
		voices[i] = v
	}

	ctx, span := observe.StartSpan(ctx, observe.SpanSynthesize,
		observe.AttrLines.Int(len(out.Dialogue)),
		observe.AttrDestination.String(dest.Kind().String()),
		observe.AttrProvider.String(e.providerName),
	)
	defer span.End()

	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}

	results := make(chan lineResult, len(out.Dialogue))
	go func() {
		for i, line := range out.Dialogue {
			path := dest.NarrationPath(e.now())
			req := tts.Request{Text: line.Text, Voice: voices[i], Speed: e.speed}
			g.Go(func() error {
				results <- lineResult{index: i, path: path, err: e.synthesizeLine(ctx, req, path)}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	failed := 0
	for r := range results {
		if r.err != nil {
			failed++
			observe.Logger(ctx).Warn("narration: line synthesis failed",
				"line", r.index, "err", r.err)
			e.metrics.RecordNarrationLine(ctx, observe.StatusError)
			continue
		}
		out.Dialogue[r.index].Audio = r.path
		e.metrics.RecordNarrationLine(ctx, observe.StatusOK)
	}

	span.SetAttributes(observe.AttrFailedLines.Int(failed))
	observe.Logger(ctx).Info("narration: synthesis complete",
		"lines", len(out.Dialogue), "failed", failed, "dir", dest.Dir())
	return out, nil
}

// synthesizeLine performs one request and writes the response body to path.
// On failure nothing is left at path.
func (e *Engine) synthesizeLine(ctx context.Context, req tts.Request, path string) (err error) {
	if e.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.requestTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		e.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
		status := observe.StatusOK
		if err != nil {
			status = observe.StatusError
			e.metrics.RecordProviderError(ctx, e.providerName, "tts")
		}
		e.metrics.RecordProviderRequest(ctx, e.providerName, "tts", status)
	}()

	body, err := e.tts.Synthesize(ctx, req)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	if _, err = io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write %q: %w", path, err)
	}
	if err = f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close %q: %w", path, err)
	}
	return nil
}
