// Command sharad narrates dialogue scripts through a speech synthesis
// backend and transcribes player input recorded from the microphone.
//
// Usage:
//
//	sharad [-config config.yaml] narrate -script scene.yaml [-save path]
//	sharad [-config config.yaml] listen [-save path] [-duration 10s]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaqchase/sharad/internal/app"
	"github.com/chaqchase/sharad/internal/config"
	"github.com/chaqchase/sharad/internal/health"
	"github.com/chaqchase/sharad/internal/observe"
	"github.com/chaqchase/sharad/pkg/audio/malgo"
	"github.com/chaqchase/sharad/pkg/audio/playback"
	"github.com/chaqchase/sharad/pkg/provider/stt"
	"github.com/chaqchase/sharad/pkg/provider/stt/deepgram"
	sttopenai "github.com/chaqchase/sharad/pkg/provider/stt/openai"
	"github.com/chaqchase/sharad/pkg/provider/stt/whisper"
	"github.com/chaqchase/sharad/pkg/provider/tts"
	"github.com/chaqchase/sharad/pkg/provider/tts/elevenlabs"
	ttsopenai "github.com/chaqchase/sharad/pkg/provider/tts/openai"
	"github.com/chaqchase/sharad/pkg/script"
)

// version is set at build time via -ldflags.
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "path to an optional .env file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		return 2
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd != "narrate" && cmd != "listen" {
		fmt.Fprintf(os.Stderr, "sharad: unknown command %q\n", cmd)
		usage()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "sharad: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sharad: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sharad: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("sharad starting",
		"version", version,
		"command", cmd,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	flush, err := observe.InitSentry(observe.SentryConfig{
		DSN:         cfg.Server.SentryDSN,
		Release:     "sharad@" + version,
		Environment: cfg.Server.Environment,
	})
	if err != nil {
		slog.Error("failed to initialise error reporting", "err", err)
		return 1
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "sharad",
		ServiceVersion: version,
		TTSProvider:    cfg.Providers.TTS.Name,
		STTProvider:    cfg.Providers.STT.Name,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := tel.Metrics

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)
	slog.Debug("providers available", "tts", reg.TTSNames(), "stt", reg.STTNames())

	providers, err := app.BuildProviders(reg, cfg.Providers, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	providers.Input = malgo.New()
	providers.Output = playback.New(playback.WithSampleRate(cfg.Playback.SampleRate))

	played := make(chan error, 1)
	application, err := app.New(cfg, providers,
		app.WithMetrics(metrics),
		app.WithLogLevel(logLevel),
		app.WithPlaybackHook(func(_ *script.Script, err error) {
			select {
			case played <- err:
			default:
			}
		}),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	application.AddCloser(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tel.Shutdown(ctx)
	})

	// ── HTTP listener ─────────────────────────────────────────────────────────
	if addr := cfg.Server.ListenAddr; addr != "" {
		srv := newServer(addr, application, metrics)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				observe.ReportError(ctx, "http listener stopped", err)
			}
		}()
		application.AddCloser(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
		slog.Info("http listener started", "addr", addr)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(d config.ConfigDiff, _ *config.Config) {
		application.ApplyConfigDiff(d)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		application.AddCloser(func() error { watcher.Stop(); return nil })
	}

	go func() {
		if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			observe.ReportError(ctx, "run error", err)
		}
	}()

	// ── Command ───────────────────────────────────────────────────────────────
	var cmdErr error
	switch cmd {
	case "narrate":
		if !cfg.Narration.OutputEnabled {
			cmdErr = errors.New("narration output is disabled in the configuration")
			break
		}
		cmdErr = narrate(ctx, application, played, args)
	case "listen":
		cmdErr = listen(ctx, application, args)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	switch {
	case cmdErr == nil:
		slog.Info("goodbye")
		return 0
	case errors.Is(cmdErr, context.Canceled):
		slog.Info("interrupted")
		return 130
	case errors.Is(cmdErr, flag.ErrHelp):
		return 2
	default:
		slog.Error(cmd+" failed", "err", cmdErr)
		return 1
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: sharad [flags] <command> [command flags]

Commands:
  narrate   synthesize and play a dialogue script
  listen    record from the microphone and print the transcription

Flags:
`)
	flag.PrintDefaults()
}

// narrate plays one script and returns once playback finished.
func narrate(ctx context.Context, a *app.App, played <-chan error, args []string) error {
	fs := flag.NewFlagSet("narrate", flag.ContinueOnError)
	scriptPath := fs.String("script", "", "path to the dialogue script YAML")
	savePath := fs.String("save", "", "keep the rendered audio beside this path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *scriptPath == "" {
		return errors.New("narrate: -script is required")
	}

	s, err := script.Load(*scriptPath)
	if err != nil {
		return err
	}
	dest, err := a.Destination(*savePath)
	if err != nil {
		return err
	}
	slog.Info("narrating", "lines", len(s.Dialogue), "speakers", len(s.Speakers), "dir", dest.Dir())

	if err := a.Narrate(ctx, s, dest); err != nil {
		return err
	}
	select {
	case err := <-played:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// listen records until Enter is pressed or the duration elapses, then prints
// the transcription to stdout.
func listen(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	savePath := fs.String("save", "", "keep the recording beside this path")
	duration := fs.Duration("duration", 0, "stop recording after this long (0 waits for Enter)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dest, err := a.Destination(*savePath)
	if err != nil {
		return err
	}
	if _, err := a.StartListening(dest); err != nil {
		return err
	}

	enter := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()
	var timeout <-chan time.Time
	if *duration > 0 {
		t := time.NewTimer(*duration)
		defer t.Stop()
		timeout = t.C
	}
	fmt.Fprintln(os.Stderr, "recording; press Enter to stop")

	select {
	case <-enter:
	case <-timeout:
	case <-ctx.Done():
		return ctx.Err()
	}

	ch, err := a.Input(ctx)
	if err != nil {
		return err
	}
	select {
	case tr := <-ch:
		if tr.Err != nil {
			return tr.Err
		}
		fmt.Println(tr.Text)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newServer(addr string, a *app.App, m *observe.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(a.HealthCheckers()...).Register(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with
// sharad into reg. Each factory receives a config.ProviderEntry and
// constructs the provider from the implementation packages.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		model := entry.Model
		if model == "" {
			model = cfg.Narration.Model
		}
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if cfg.Narration.RequestTimeout > 0 {
			opts = append(opts, ttsopenai.WithTimeout(cfg.Narration.RequestTimeout))
		}
		return ttsopenai.New(entry.APIKey, model, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.BaseURL))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if id := optString(entry.Options, "default_voice_id"); id != "" {
			opts = append(opts, elevenlabs.WithDefaultVoiceID(id))
		}
		if voices := optStringMap(entry.Options, "voice_ids"); len(voices) > 0 {
			m := make(map[tts.Voice]string, len(voices))
			for v, id := range voices {
				m[tts.Voice(v)] = id
			}
			opts = append(opts, elevenlabs.WithVoiceMap(m))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, sttopenai.WithLanguage(lang))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if kw := optStrings(entry.Options, "keywords"); len(kw) > 0 {
			opts = append(opts, deepgram.WithKeywords(kw...))
		}
		return deepgram.New(entry.APIKey, opts...)
	})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optStrings extracts a YAML sequence of strings. Non-string items are
// skipped.
func optStrings(opts map[string]any, key string) []string {
	items, _ := opts[key].([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// optStringMap extracts a YAML mapping of strings to strings.
func optStringMap(opts map[string]any, key string) map[string]string {
	m, _ := opts[key].(map[string]any)
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
