package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// ApplyFunc receives the hot-reloadable changes of a reload together with the
// config they came from. It is never called with an empty diff.
type ApplyFunc func(d ConfigDiff, cfg *Config)

// Watcher keeps a running process in step with its config file. Each reload
// that parses, validates and differs in content becomes the current config;
// when the change touches a tracked key (log level, narration output,
// microphone input, keep_recordings, providers) the [ApplyFunc] is called
// with the [ConfigDiff]. Broken edits leave the previous config in place.
type Watcher struct {
	path     string
	interval time.Duration
	apply    ApplyFunc

	// reloadMu serializes reloads so diffs are computed against the config
	// that was actually applied last.
	reloadMu sync.Mutex

	mu      sync.Mutex
	current *Config
	sum     [sha256.Size]byte
	mtime   time.Time

	cancel   context.CancelFunc
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. apply may be nil, in which
// case the watcher only tracks [Watcher.Current]. Call Stop when done.
func NewWatcher(path string, apply ApplyFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		apply:    apply,
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.sum, w.mtime = snap.cfg, snap.sum, snap.mtime

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.loop(ctx)
	return w, nil
}

// Current returns the config that was last accepted.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload reads the file now, regardless of its modification time, and
// returns the resulting diff. A file with unchanged content yields an empty
// diff. An unreadable or invalid file returns the error and keeps the current
// config.
func (w *Watcher) Reload() (ConfigDiff, error) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	snap, err := w.read()
	if err != nil {
		return ConfigDiff{}, fmt.Errorf("config: reload %q: %w", w.path, err)
	}
	return w.accept(snap), nil
}

// Stop ends polling and waits for an in-flight reload to finish, so apply is
// never called after Stop returns. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(w.cancel)
	<-w.stopped
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll reloads only when the file's modification time moved.
func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: watched file unavailable", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}
	if _, err := w.Reload(); err != nil {
		slog.Warn("config: keeping previous config", "err", err)
	}
}

// accept installs snap when its content differs and hands the tracked
// changes to apply.
func (w *Watcher) accept(snap snapshot) ConfigDiff {
	w.mu.Lock()
	w.mtime = snap.mtime
	if snap.sum == w.sum {
		w.mu.Unlock()
		return ConfigDiff{}
	}
	old := w.current
	w.current, w.sum = snap.cfg, snap.sum
	w.mu.Unlock()

	d := Diff(old, snap.cfg)
	if d.Empty() {
		slog.Debug("config: file changed, nothing to apply", "path", w.path)
		return d
	}
	slog.Info("config: reloaded", "path", w.path, "changes", d.Changes())
	if w.apply != nil {
		w.apply(d, snap.cfg)
	}
	return d
}

type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// read parses and validates the file, fingerprinting the exact bytes used.
func (w *Watcher) read() (snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
