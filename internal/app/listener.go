package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaqchase/sharad/internal/capture"
	"github.com/chaqchase/sharad/internal/dispatch"
	"github.com/chaqchase/sharad/internal/storage"
	"github.com/chaqchase/sharad/pkg/audio"
)

var (
	// ErrInputDisabled is returned by [ListenManager.Start] while microphone
	// input is switched off in the configuration.
	ErrInputDisabled = errors.New("app: input disabled")

	// ErrAlreadyListening is returned by [ListenManager.Start] while a capture
	// is running.
	ErrAlreadyListening = errors.New("app: already listening")

	// ErrNotListening is returned when no capture is running.
	ErrNotListening = errors.New("app: not listening")
)

// ListenInfo describes the running capture.
type ListenInfo struct {
	// StartedAt is when the capture started.
	StartedAt time.Time

	// Destination is where the recording is written.
	Destination storage.Destination
}

// ListenManager owns the microphone. Only one capture can run at a time; a
// player asks for input by starting a capture and later calling Input, which
// hands the recording to the transcription bridge.
// All exported methods are safe for concurrent use.
type ListenManager struct {
	mu     sync.Mutex
	handle *capture.Handle
	info   ListenInfo

	enabled atomic.Bool

	device      audio.InputDevice
	bridge      *capture.Bridge
	dispatcher  dispatch.Dispatcher
	captureOpts []capture.Option
	now         func() time.Time
}

// ListenManagerConfig holds the dependencies of a [ListenManager].
type ListenManagerConfig struct {
	Device         audio.InputDevice
	Bridge         *capture.Bridge
	Dispatcher     dispatch.Dispatcher
	CaptureOptions []capture.Option
	Enabled        bool
}

// NewListenManager creates a ListenManager.
func NewListenManager(cfg ListenManagerConfig) *ListenManager {
	lm := &ListenManager{
		device:      cfg.Device,
		bridge:      cfg.Bridge,
		dispatcher:  cfg.Dispatcher,
		captureOpts: cfg.CaptureOptions,
		now:         time.Now,
	}
	lm.enabled.Store(cfg.Enabled)
	return lm
}

// SetEnabled switches microphone input on or off. A running capture is not
// affected.
func (lm *ListenManager) SetEnabled(enabled bool) { lm.enabled.Store(enabled) }

// Enabled reports whether new captures may start.
func (lm *ListenManager) Enabled() bool { return lm.enabled.Load() }

// Start begins recording into dest.
func (lm *ListenManager) Start(dest storage.Destination) (ListenInfo, error) {
	if !lm.enabled.Load() {
		return ListenInfo{}, ErrInputDisabled
	}
	if lm.device == nil {
		return ListenInfo{}, audio.ErrNoInputDevice
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.handle != nil {
		return ListenInfo{}, ErrAlreadyListening
	}

	h, err := capture.Start(lm.device, dest, lm.captureOpts...)
	if err != nil {
		return ListenInfo{}, fmt.Errorf("app: start listening: %w", err)
	}
	lm.handle = h
	lm.info = ListenInfo{StartedAt: lm.now(), Destination: dest}
	slog.Info("listening started", "dir", dest.Dir(), "kind", dest.Kind().String())
	return lm.info, nil
}

// Input stops the running capture and schedules its transcription. The
// returned channel delivers exactly one [capture.Transcription] and is then
// closed. The transcription outlives ctx's cancellation but keeps its values.
func (lm *ListenManager) Input(ctx context.Context) (<-chan capture.Transcription, error) {
	h, err := lm.take()
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	if err := lm.dispatcher.Submit(func() { lm.bridge.Input(bg, h) }); err != nil {
		err = fmt.Errorf("app: schedule transcription: %w", err)
		lm.bridge.Discard(bg, h, err)
		return nil, err
	}
	return h.Transcription(), nil
}

// Abort stops the running capture without transcribing it and waits until
// the recording is finalized or ctx is done. It returns the recording path.
func (lm *ListenManager) Abort(ctx context.Context) (string, error) {
	h, err := lm.take()
	if err != nil {
		return "", err
	}
	h.Stop()
	select {
	case <-h.Done():
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return h.Result()
}

// IsActive reports whether a capture is running.
func (lm *ListenManager) IsActive() bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.handle != nil
}

// Info returns the running capture's metadata, or the zero value.
func (lm *ListenManager) Info() ListenInfo {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.info
}

func (lm *ListenManager) take() (*capture.Handle, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	h := lm.handle
	if h == nil {
		return nil, ErrNotListening
	}
	lm.handle = nil
	lm.info = ListenInfo{}
	return h, nil
}
