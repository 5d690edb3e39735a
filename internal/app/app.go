// Package app wires the Sharad subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the narration pipeline
// and the listening pipeline on top of the injected providers, Run drives
// narration messages until the context ends, and Shutdown tears everything
// down in order.
//
// For testing, inject mock providers through [Providers] and a dispatcher or
// metrics instance through functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaqchase/sharad/internal/capture"
	"github.com/chaqchase/sharad/internal/config"
	"github.com/chaqchase/sharad/internal/dispatch"
	"github.com/chaqchase/sharad/internal/health"
	"github.com/chaqchase/sharad/internal/narration"
	"github.com/chaqchase/sharad/internal/observe"
	"github.com/chaqchase/sharad/internal/storage"
	"github.com/chaqchase/sharad/internal/transcript"
	"github.com/chaqchase/sharad/pkg/script"
)

// poolCloseTimeout bounds how long Shutdown waits for the dispatcher when
// ctx carries no deadline.
const poolCloseTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar
	dataDir   string

	pool       *dispatch.Pool
	dispatcher dispatch.Dispatcher
	narrator   *narration.Narrator
	bridge     *capture.Bridge
	listener   *ListenManager
	onPlayed   narration.PlaybackHook

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithDispatcher injects the task scheduler instead of creating a pool.
func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(a *App) { a.dispatcher = d }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the app the level variable behind the process logger so
// config reloads can change verbosity.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithPlaybackHook is called after every narration event finished playing.
func WithPlaybackHook(h narration.PlaybackHook) Option {
	return func(a *App) { a.onPlayed = h }
}

// New creates an App from cfg and the given providers.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.TTS == nil || providers.STT == nil || providers.Output == nil {
		return nil, errors.New("app: tts, stt and output providers are required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initDataDir(); err != nil {
		return nil, err
	}
	if err := a.initDispatcher(); err != nil {
		return nil, err
	}
	a.initNarration()
	a.initCapture()
	return a, nil
}

func (a *App) initDataDir() error {
	a.dataDir = a.cfg.Storage.DataDir
	if a.dataDir != "" {
		return nil
	}
	dir, err := storage.DefaultDataDir()
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.dataDir = dir
	return nil
}

func (a *App) initDispatcher() error {
	if a.dispatcher != nil {
		return nil
	}
	pool, err := dispatch.New(dispatch.DefaultSize)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.pool = pool
	a.dispatcher = pool
	return nil
}

func (a *App) initNarration() {
	nc := a.cfg.Narration
	assigner := narration.NewVoiceAssigner(narration.VoiceStrategy(nc.VoiceStrategy), nc.VoiceSet(), nc.VoiceSeed)
	engine := narration.NewEngine(a.providers.TTS,
		narration.WithSpeed(nc.Speed),
		narration.WithMaxConcurrency(nc.MaxConcurrency),
		narration.WithRequestTimeout(nc.RequestTimeout),
		narration.WithProviderName(nameOr(a.providers.TTSName, "tts")),
		narration.WithMetrics(a.metrics),
	)
	player := narration.NewPlayer(a.providers.Output, a.metrics)

	opts := []narration.NarratorOption{
		narration.WithOutputEnabled(nc.OutputEnabled),
		narration.WithNarratorMetrics(a.metrics),
	}
	if a.onPlayed != nil {
		opts = append(opts, narration.WithPlaybackHook(a.onPlayed))
	}
	a.narrator = narration.NewNarrator(assigner, engine, player, a.dispatcher, opts...)
}

func (a *App) initCapture() {
	cc := a.cfg.Capture
	bridgeOpts := []capture.BridgeOption{
		capture.WithTranscribeTimeout(cc.TranscribeTimeout),
		capture.WithKeepRecordings(cc.KeepRecordings),
		capture.WithProviderName(nameOr(a.providers.STTName, "stt")),
		capture.WithBridgeMetrics(a.metrics),
	}
	if len(cc.Vocabulary) > 0 {
		corrector := transcript.New(cc.Vocabulary)
		bridgeOpts = append(bridgeOpts, capture.WithCorrector(corrector))
		slog.Info("transcript correction enabled", "terms", corrector.Len())
	}
	a.bridge = capture.NewBridge(a.providers.STT, bridgeOpts...)
	a.listener = NewListenManager(ListenManagerConfig{
		Device:     a.providers.Input,
		Bridge:     a.bridge,
		Dispatcher: a.dispatcher,
		CaptureOptions: []capture.Option{
			capture.WithPollInterval(cc.PollInterval),
			capture.WithMetrics(a.metrics),
		},
		Enabled: cc.InputEnabled,
	})
}

// Destination resolves where a session writes its files: beside savePath
// when given, otherwise in the temp directory under the data directory.
func (a *App) Destination(savePath string) (storage.Destination, error) {
	return storage.Resolve(savePath, a.dataDir)
}

// Narrate schedules synthesis and playback of s. It returns once the event
// is accepted; Run must be running for playback to follow.
func (a *App) Narrate(ctx context.Context, s *script.Script, dest storage.Destination) error {
	return a.narrator.Handle(ctx, narration.Generating{Script: s, Destination: dest})
}

// StartListening begins recording player input into dest.
func (a *App) StartListening(dest storage.Destination) (ListenInfo, error) {
	return a.listener.Start(dest)
}

// Input stops the running recording and returns the channel its
// transcription is published on.
func (a *App) Input(ctx context.Context) (<-chan capture.Transcription, error) {
	return a.listener.Input(ctx)
}

// Listener exposes the listening state.
func (a *App) Listener() *ListenManager { return a.listener }

// Run feeds completed syntheses to playback and blocks until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running",
		"output_enabled", a.cfg.Narration.OutputEnabled,
		"input_enabled", a.listener.Enabled(),
	)
	return a.narrator.Run(ctx)
}

// ApplyConfigDiff applies the hot-reloadable parts of a config change.
func (a *App) ApplyConfigDiff(d config.ConfigDiff) {
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.OutputEnabledChanged {
		a.narrator.SetOutputEnabled(d.NewOutputEnabled)
		slog.Info("narration output toggled", "enabled", d.NewOutputEnabled)
	}
	if d.InputEnabledChanged {
		a.listener.SetEnabled(d.NewInputEnabled)
		slog.Info("microphone input toggled", "enabled", d.NewInputEnabled)
	}
	if d.KeepRecordingsChanged {
		a.bridge.SetKeepRecordings(d.NewKeepRecordings)
	}
	if d.ProvidersChanged {
		slog.Warn("provider configuration changed; restart to apply")
	}
}

// HealthCheckers returns the readiness checks for this app.
func (a *App) HealthCheckers() []health.Checker {
	checks := []health.Checker{
		health.WritableDir("temp_dir", storage.TempDir(a.dataDir)),
	}
	for _, kind := range []string{"tts", "stt"} {
		if bs, ok := a.providers.Breakers[kind]; ok {
			checks = append(checks, health.AnyBreakerClosed(kind, bs...))
		}
	}
	return checks
}

// AddCloser registers fn to run during Shutdown, after the app's own
// subsystems.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Shutdown stops a running capture, drops narration events still waiting for
// playback, waits for scheduled synthesis and transcription work and runs the registered closers. It respects the ctx
// deadline: closers left when ctx expires are skipped.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if path, err := a.listener.Abort(ctx); err == nil {
			slog.Info("recording abandoned", "path", path)
		} else if !errors.Is(err, ErrNotListening) {
			slog.Warn("stop capture", "err", err)
		}

		a.narrator.Close()

		if a.pool != nil {
			timeout := poolCloseTimeout
			if dl, ok := ctx.Deadline(); ok {
				timeout = time.Until(dl)
			}
			if err := a.pool.Wait(ctx); err != nil {
				slog.Warn("pending tasks abandoned", "err", err)
			}
			if err := a.pool.Close(max(timeout, 0)); err != nil {
				slog.Warn("dispatcher close", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
