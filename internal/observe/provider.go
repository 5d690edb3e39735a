package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// Resource attributes naming the speech backends a process was started with.
const (
	ResourceTTSProvider = attribute.Key("sharad.tts.provider")
	ResourceSTTProvider = attribute.Key("sharad.stt.provider")
)

// ProviderConfig describes the process to the telemetry backends.
type ProviderConfig struct {
	// ServiceName defaults to "sharad".
	ServiceName    string
	ServiceVersion string

	// TTSProvider and STTProvider are the primary backend names from
	// providers.tts and providers.stt. Empty values are left out.
	TTSProvider string
	STTProvider string

	// TraceExporter receives finished spans. When nil spans are recorded,
	// so trace IDs still reach the logs, but go nowhere.
	TraceExporter sdktrace.SpanExporter

	// Registerer receives the Prometheus collectors. Nil means the default
	// registry, which promhttp.Handler serves on /metrics.
	Registerer prometheus.Registerer
}

// Telemetry owns the SDK providers installed by [InitProvider].
type Telemetry struct {
	// Metrics is built on the installed meter provider.
	Metrics *Metrics

	meters *sdkmetric.MeterProvider
	traces *sdktrace.TracerProvider
}

// InitProvider installs a meter provider exporting to Prometheus and a tracer
// provider as the global OTel providers, and builds the application's
// [Metrics] on top of them. Call [Telemetry.Shutdown] before exit.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "sharad"
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.TTSProvider != "" {
		attrs = append(attrs, ResourceTTSProvider.String(cfg.TTSProvider))
	}
	if cfg.STTProvider != "" {
		attrs = append(attrs, ResourceSTTProvider.String(cfg.STTProvider))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	promExp, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(promExp))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	m, err := NewMetrics(mp)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("observe: metrics: %w", err), mp.Shutdown(ctx), tp.Shutdown(ctx))
	}

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	return &Telemetry{Metrics: m, meters: mp, traces: tp}, nil
}

// ForceFlush pushes buffered spans to the exporter.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	return t.traces.ForceFlush(ctx)
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.traces.Shutdown(ctx), t.meters.Shutdown(ctx))
}
