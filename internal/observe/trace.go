package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/chaqchase/sharad"

// Spans opened by the pipelines. A narration event produces one
// SpanSynthesize followed by one SpanPlay; a microphone recording produces
// SpanCaptureInput with SpanTranscribe nested inside.
const (
	SpanSynthesize   = "narration.synthesize"
	SpanPlay         = "narration.play"
	SpanCaptureInput = "capture.input"
	SpanTranscribe   = "capture.transcribe"
)

// Span attributes.
const (
	AttrLines       = attribute.Key("sharad.narration.lines")
	AttrFailedLines = attribute.Key("sharad.narration.failed_lines")
	AttrDestination = attribute.Key("sharad.storage.kind")
	AttrProvider    = attribute.Key("sharad.provider")
)

// Tracer returns the tracer of the globally registered provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a span named after one of the Span* constants with the
// given attributes. End it with [EndSpan].
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan ends span, marking it failed when err is non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID is the trace ID of the span in ctx, or "" outside a span. It
// ties the log records of one narration event or recording together.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// named is implemented by SDK spans.
type named interface{ Name() string }

// Logger returns the default logger, tagged with trace_id and, when the span
// in ctx is recorded by the SDK, the operation it belongs to.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	span := trace.SpanFromContext(ctx)
	sc := span.SpanContext()
	if !sc.HasTraceID() {
		return l
	}
	attrs := []any{slog.String("trace_id", sc.TraceID().String())}
	if n, ok := span.(named); ok {
		attrs = append(attrs, slog.String("op", n.Name()))
	}
	return l.With(attrs...)
}
