// Package dispatch provides the cooperative task scheduler that runs
// fire-and-forget work such as narration playback and the capture-to-
// transcription bridge, backed by a github.com/panjf2000/ants/v2 goroutine
// pool.
//
// Work that blocks an OS thread for its whole lifetime (the capture loop)
// does not belong here; it runs on its own locked goroutine.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/chaqchase/sharad/internal/observe"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatch: pool closed")

// DefaultSize is the pool capacity used when New is called with size <= 0.
const DefaultSize = 64

// Dispatcher submits tasks for asynchronous execution.
type Dispatcher interface {
	// Submit schedules task. It returns an error if the task cannot be
	// scheduled (pool closed or overloaded); the task is then never run.
	Submit(task func()) error
}

// Compile-time assertion that Pool implements Dispatcher.
var _ Dispatcher = (*Pool)(nil)

// Pool is a [Dispatcher] backed by an ants pool. Panics inside tasks are
// recovered, logged and reported; they never crash the process.
type Pool struct {
	pool *ants.Pool
	wg   sync.WaitGroup
}

// slogAdapter routes ants' internal log lines to slog.
type slogAdapter struct{}

func (slogAdapter) Printf(format string, args ...any) {
	observe.Logger(context.Background()).Debug("dispatch: pool message", "detail", fmt.Sprintf(format, args...))
}

// New creates a Pool with the given capacity. Submit blocks while all workers
// are busy.
func New(size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultSize
	}
	p, err := ants.NewPool(size,
		ants.WithPanicHandler(func(v any) {
			observe.ReportError(context.Background(), "dispatch: task panicked", fmt.Errorf("panic: %v", v))
		}),
		ants.WithLogger(slogAdapter{}),
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch: create pool: %w", err)
	}
	return &Pool{pool: p}, nil
}

// Submit implements [Dispatcher].
func (p *Pool) Submit(task func()) error {
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		task()
	})
	if err != nil {
		p.wg.Done()
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrClosed
		}
		return fmt.Errorf("dispatch: submit: %w", err)
	}
	return nil
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int { return p.pool.Running() }

// Wait blocks until every task submitted so far has returned, or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits up to timeout for running ones.
func (p *Pool) Close(timeout time.Duration) error {
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("dispatch: release: %w", err)
	}
	return nil
}
