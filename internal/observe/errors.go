package observe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig configures error reporting.
type SentryConfig struct {
	// DSN is the Sentry project DSN. Error reporting is disabled when empty.
	DSN string

	// Release is reported with every event.
	Release string

	// Environment is reported with every event (e.g. "production").
	Environment string
}

// InitSentry initialises the global Sentry client. When cfg.DSN is empty it
// does nothing and returns a no-op flush.
//
// The returned function flushes buffered events and should be deferred from
// main().
func InitSentry(cfg SentryConfig) (flush func(), err error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Release:     cfg.Release,
		Environment: cfg.Environment,
	}); err != nil {
		return nil, fmt.Errorf("observe: init sentry: %w", err)
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// ReportError logs err at error level with msg and the trace-enriched logger
// of ctx, then forwards it to Sentry when a client is bound. The hub on ctx
// takes precedence over the global hub.
//
// Use it for errors nobody upstream can act on: logic errors, device failures
// on background goroutines, dropped narration events.
func ReportError(ctx context.Context, msg string, err error, args ...any) {
	if err == nil {
		return
	}
	Logger(ctx).Error(msg, append(args, slog.Any("err", err))...)

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("message", msg)
		if cid := CorrelationID(ctx); cid != "" {
			scope.SetTag("trace_id", cid)
		}
		hub.CaptureException(err)
	})
}
