package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/chaqchase/sharad/internal/observe"
	"github.com/chaqchase/sharad/internal/storage"
	"github.com/chaqchase/sharad/internal/transcript"
	"github.com/chaqchase/sharad/pkg/provider/stt"
)

const (
	// DefaultTranscribeTimeout bounds one transcription request.
	DefaultTranscribeTimeout = 60 * time.Second

	// DefaultSweepAge is the minimum age of a leftover temp recording before
	// the bridge removes it.
	DefaultSweepAge = time.Minute
)

// BridgeOption configures a [Bridge].
type BridgeOption func(*Bridge)

// WithTranscribeTimeout overrides [DefaultTranscribeTimeout]. Zero disables
// the timeout.
func WithTranscribeTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.timeout = d }
}

// WithKeepRecordings leaves recordings on disk after transcription.
func WithKeepRecordings(keep bool) BridgeOption {
	return func(b *Bridge) { b.keep.Store(keep) }
}

// WithSweepAge overrides [DefaultSweepAge].
func WithSweepAge(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.sweepAge = d }
}

// WithProviderName sets the provider label used on metrics.
func WithProviderName(name string) BridgeOption {
	return func(b *Bridge) { b.providerName = name }
}

// WithBridgeMetrics overrides the default metrics instance.
func WithBridgeMetrics(m *observe.Metrics) BridgeOption {
	return func(b *Bridge) { b.metrics = m }
}

// WithCorrector rewrites every transcription against the campaign
// vocabulary held by c before it is published.
func WithCorrector(c *transcript.Corrector) BridgeOption {
	return func(b *Bridge) { b.corrector = c }
}

// Bridge turns a running capture into text.
type Bridge struct {
	stt          stt.Provider
	corrector    *transcript.Corrector
	timeout      time.Duration
	keep         atomic.Bool
	sweepAge     time.Duration
	providerName string
	metrics      *observe.Metrics
	now          func() time.Time
}

// NewBridge returns a Bridge transcribing through p.
func NewBridge(p stt.Provider, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		stt:          p,
		timeout:      DefaultTranscribeTimeout,
		sweepAge:     DefaultSweepAge,
		providerName: "stt",
		now:          time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// SetKeepRecordings changes whether later sessions keep their recordings.
func (b *Bridge) SetKeepRecordings(keep bool) { b.keep.Store(keep) }

// Input stops h, waits until the recording is finalized, transcribes it and
// publishes the result on h's transcription channel. A failure at any step is
// published as a [Transcription] carrying Err and no text. The recording is
// removed afterwards unless the bridge keeps recordings.
//
// Once called, Input runs to completion: the capture goroutine always
// finalizes within one poll interval, so the wait is not bound to ctx. ctx
// does bound the transcription request.
//
// Only the first Input call on a handle does any work; later calls return a
// Transcription carrying [ErrAlreadyStopped].
func (b *Bridge) Input(ctx context.Context, h *Handle) Transcription {
	if !h.claim() {
		return Transcription{Err: ErrAlreadyStopped}
	}
	ctx, span := observe.StartSpan(ctx, observe.SpanCaptureInput,
		observe.AttrDestination.String(h.Destination().Kind().String()),
		observe.AttrProvider.String(b.providerName),
	)

	h.Stop()
	<-h.Done()

	path, err := h.Result()
	var t Transcription
	if err != nil {
		t = Transcription{Err: err}
	} else {
		t = b.transcribe(ctx, path)
	}

	if t.Err != nil {
		observe.Logger(ctx).Warn("capture: transcription failed", "path", path, "err", t.Err)
	}
	h.publish(t)

	b.cleanup(ctx, h.Destination(), path)
	observe.EndSpan(span, t.Err)
	return t
}

// Discard ends a capture that will not be transcribed. It waits for the
// recording to finalize, publishes reason as the handle's transcription and
// removes the file, whatever the destination and keep setting. Like Input it
// only acts on an unclaimed handle.
func (b *Bridge) Discard(ctx context.Context, h *Handle, reason error) {
	if !h.claim() {
		return
	}
	h.Stop()
	<-h.Done()

	h.publish(Transcription{Err: reason})
	path, err := h.Result()
	if err != nil || path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		observe.Logger(ctx).Warn("capture: remove discarded recording", "path", path, "err", err)
	}
}

func (b *Bridge) transcribe(ctx context.Context, path string) (t Transcription) {
	ctx, span := observe.StartSpan(ctx, observe.SpanTranscribe)
	defer func() { observe.EndSpan(span, t.Err) }()

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := b.stt.TranscribeFile(ctx, path)
	b.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		b.metrics.RecordProviderError(ctx, b.providerName, "stt")
		b.metrics.RecordProviderRequest(ctx, b.providerName, "stt", observe.StatusError)
		return Transcription{Err: fmt.Errorf("capture: transcribe: %w", err)}
	}
	b.metrics.RecordProviderRequest(ctx, b.providerName, "stt", observe.StatusOK)

	if b.corrector != nil {
		res := b.corrector.Correct(text)
		for _, c := range res.Corrections {
			observe.Logger(ctx).Debug("capture: corrected transcript",
				"original", c.Original, "corrected", c.Corrected, "confidence", c.Confidence)
		}
		text = res.Text
	}
	return Transcription{Text: text}
}

// cleanup removes the recording and, for temp destinations, leftovers from
// earlier sessions.
func (b *Bridge) cleanup(ctx context.Context, dest storage.Destination, path string) {
	if b.keep.Load() {
		return
	}
	log := observe.Logger(ctx)
	if path != "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("capture: remove recording", "path", path, "err", err)
		}
	}
	if dest.Kind() != storage.KindTemp || dest.IsZero() {
		return
	}
	n, err := storage.SweepRecordings(dest.Dir(), b.sweepAge, b.now())
	if err != nil {
		log.Warn("capture: sweep temp recordings", "dir", dest.Dir(), "err", err)
		return
	}
	if n > 0 {
		log.Debug("capture: swept stale recordings", "removed", n)
	}
}
