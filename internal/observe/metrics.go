// Package observe provides application-wide observability primitives for
// Sharad: OpenTelemetry metrics, distributed tracing, structured logging,
// error reporting, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Sharad metrics.
const meterName = "github.com/chaqchase/sharad"

// Line outcome values for the "status" attribute of [Metrics.NarrationLines].
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Playback outcome values for the "outcome" attribute of [Metrics.PlaybackLines].
const (
	OutcomePlayed  = "played"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks transcription latency of a finished recording.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks synthesis latency of one dialogue line, including
	// writing the audio file.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// NarrationLines counts synthesized dialogue lines by outcome. Use with
	// attribute.String("status", StatusOK|StatusError).
	NarrationLines metric.Int64Counter

	// PlaybackLines counts dialogue lines visited by the player. Use with
	// attribute.String("outcome", OutcomePlayed|OutcomeSkipped|OutcomeFailed).
	PlaybackLines metric.Int64Counter

	// CaptureDroppedBatches counts device sample batches dropped because the
	// encoder was busy.
	CaptureDroppedBatches metric.Int64Counter

	// CircuitTransitions counts circuit breaker state changes. Use with
	// attribute.String("provider", ...), attribute.String("to", ...).
	CircuitTransitions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCaptures tracks the number of running capture sessions.
	ActiveCaptures metric.Int64UpDownCounter

	// ActiveNarrations tracks narration events currently being synthesized or
	// played.
	ActiveNarrations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// network-bound synthesis and transcription calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("sharad.stt.duration",
		metric.WithDescription("Latency of recording transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("sharad.tts.duration",
		metric.WithDescription("Latency of single-line speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("sharad.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.NarrationLines, err = m.Int64Counter("sharad.narration.lines",
		metric.WithDescription("Total synthesized dialogue lines by status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackLines, err = m.Int64Counter("sharad.playback.lines",
		metric.WithDescription("Total dialogue lines visited during playback by outcome."),
	); err != nil {
		return nil, err
	}
	if met.CaptureDroppedBatches, err = m.Int64Counter("sharad.capture.dropped_batches",
		metric.WithDescription("Device sample batches dropped under encoder contention."),
	); err != nil {
		return nil, err
	}

	if met.CircuitTransitions, err = m.Int64Counter("sharad.circuit.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and target state."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("sharad.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCaptures, err = m.Int64UpDownCounter("sharad.active_captures",
		metric.WithDescription("Number of running capture sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveNarrations, err = m.Int64UpDownCounter("sharad.active_narrations",
		metric.WithDescription("Number of narration events being generated or played."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sharad.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordNarrationLine records the outcome of one line synthesis.
func (m *Metrics) RecordNarrationLine(ctx context.Context, status string) {
	m.NarrationLines.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordPlaybackLine records what the player did with one line.
func (m *Metrics) RecordPlaybackLine(ctx context.Context, outcome string) {
	m.PlaybackLines.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCircuitTransition records a breaker moving to state to.
func (m *Metrics) RecordCircuitTransition(ctx context.Context, provider, to string) {
	m.CircuitTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("to", to),
		),
	)
}
