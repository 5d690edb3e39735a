// Package capture records microphone input to WAV files and hands finished
// recordings to a speech-to-text provider.
//
// [Start] opens the default input device on a goroutine locked to its OS
// thread and streams samples into a WAV encoder until the returned [Handle]
// is stopped. The [Bridge] stops a running capture, waits for the file,
// transcribes it and publishes the text on the handle.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaqchase/sharad/internal/observe"
	"github.com/chaqchase/sharad/internal/storage"
	"github.com/chaqchase/sharad/pkg/audio"
)

// DefaultPollInterval is how often the capture goroutine checks whether it
// should keep recording.
const DefaultPollInterval = 20 * time.Millisecond

var (
	// ErrUnsupportedFormat is returned by Start when the device's native
	// sample format cannot be written to WAV.
	ErrUnsupportedFormat = errors.New("capture: unsupported sample format")

	// ErrStillRecording is returned by [Handle.Result] before the recording
	// has been finalized.
	ErrStillRecording = errors.New("capture: still recording")

	// ErrAlreadyStopped is returned when a handle's recording has already
	// been handed to a [Bridge].
	ErrAlreadyStopped = errors.New("capture: already stopped")
)

// Transcription is the outcome of transcribing one recording. Exactly one of
// Text or Err is meaningful.
type Transcription struct {
	Text string
	Err  error
}

// Option configures [Start].
type Option func(*options)

type options struct {
	pollInterval time.Duration
	metrics      *observe.Metrics
	now          func() time.Time
}

// WithPollInterval overrides [DefaultPollInterval].
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Handle controls one running capture.
//
// The keep-recording flag is set by Start and cleared once by whoever wants
// the recording (normally the [Bridge]). The capture goroutine then finalizes
// the file, writes the result slot exactly once and closes Done.
type Handle struct {
	recording atomic.Bool
	claimed   atomic.Bool

	mu      sync.Mutex
	written bool
	path    string
	err     error

	done chan struct{}
	dest storage.Destination

	publishOnce   sync.Once
	transcription chan Transcription
}

// Stop clears the keep-recording flag. The capture goroutine notices within
// one poll interval.
func (h *Handle) Stop() { h.recording.Store(false) }

// Recording reports whether the keep-recording flag is still set.
func (h *Handle) Recording() bool { return h.recording.Load() }

// Done is closed once the result slot has been written.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Destination returns the directory the recording is written to.
func (h *Handle) Destination() storage.Destination { return h.dest }

// Result returns the finalized recording path, or the error that prevented
// finalization. Before Done is closed it returns [ErrStillRecording].
func (h *Handle) Result() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.written {
		return "", ErrStillRecording
	}
	return h.path, h.err
}

// Transcription returns the channel the transcription is published on. It
// delivers at most one value and is then closed.
func (h *Handle) Transcription() <-chan Transcription { return h.transcription }

func (h *Handle) setResult(path string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.written {
		return
	}
	h.path, h.err, h.written = path, err, true
}

// claim marks the recording as taken. Only the first caller gets true.
func (h *Handle) claim() bool { return h.claimed.CompareAndSwap(false, true) }

// publish delivers t once. Later calls are ignored.
func (h *Handle) publish(t Transcription) bool {
	sent := false
	h.publishOnce.Do(func() {
		h.transcription <- t
		close(h.transcription)
		sent = true
	})
	return sent
}

// recorder owns the encoder. The device callback only ever try-locks it.
type recorder struct {
	mu       sync.Mutex
	w        *wavWriter
	closed   bool
	writeErr error
	onDrop   func()
}

func (r *recorder) write(pcm []byte) {
	if !r.mu.TryLock() {
		r.onDrop()
		return
	}
	defer r.mu.Unlock()
	if r.closed || r.w == nil {
		return
	}
	if err := r.w.write(pcm); err != nil && r.writeErr == nil {
		r.writeErr = err
	}
}

func (r *recorder) finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.w == nil {
		return nil
	}
	return errors.Join(r.writeErr, r.w.close())
}

// Start begins recording from dev into a new file under dest. Device, format
// and file errors are returned before any recording starts.
func Start(dev audio.InputDevice, dest storage.Destination, opts ...Option) (*Handle, error) {
	o := options{pollInterval: DefaultPollInterval, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}

	h := &Handle{
		done:          make(chan struct{}),
		dest:          dest,
		transcription: make(chan Transcription, 1),
	}
	h.recording.Store(true)

	ready := make(chan error, 1)
	go h.run(dev, dest.RecordingPath(o.now()), o, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return h, nil
}

// run owns the device stream and the file for the whole recording.
func (h *Handle) run(dev audio.InputDevice, path string, o options, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx := context.Background()
	rec := &recorder{onDrop: func() { o.metrics.CaptureDroppedBatches.Add(ctx, 1) }}

	stream, err := dev.OpenInput(rec.write)
	if err != nil {
		ready <- fmt.Errorf("capture: open input: %w", err)
		return
	}
	format := stream.Format()
	if _, ok := wavAudioFormat(format.Sample); !ok {
		stream.Close()
		ready <- fmt.Errorf("%w: %s", ErrUnsupportedFormat, format.Sample)
		return
	}

	f, err := os.Create(path)
	if err != nil {
		stream.Close()
		ready <- fmt.Errorf("capture: create %q: %w", path, err)
		return
	}
	w, err := newWavWriter(f, format)
	if err != nil {
		stream.Close()
		f.Close()
		os.Remove(path)
		ready <- err
		return
	}
	rec.w = w

	if err := stream.Start(); err != nil {
		stream.Close()
		f.Close()
		os.Remove(path)
		ready <- fmt.Errorf("capture: start stream: %w", err)
		return
	}

	o.metrics.ActiveCaptures.Add(ctx, 1)
	observe.Logger(ctx).Info("capture: recording", "path", path, "format", format.String())
	ready <- nil

	ticker := time.NewTicker(o.pollInterval)
	for h.recording.Load() {
		<-ticker.C
	}
	ticker.Stop()

	// Close the stream first so no callback races the finalizing encoder.
	closeErr := stream.Close()
	if err := rec.finish(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("capture: finalize wav: %w", err))
	}
	if err := f.Close(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("capture: close %q: %w", path, err))
	}

	o.metrics.ActiveCaptures.Add(ctx, -1)
	h.setResult(path, closeErr)
	close(h.done)
}
