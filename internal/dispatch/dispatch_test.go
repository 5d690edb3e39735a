package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsTasks(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(time.Second)

	var n atomic.Int32
	for range 20 {
		if err := p.Submit(func() { n.Add(1) }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := n.Load(); got != 20 {
		t.Errorf("ran %d tasks, want 20", got)
	}
}

func TestPool_PanicDoesNotKillPool(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(time.Second)

	_ = p.Submit(func() { panic("boom") })

	ran := make(chan struct{})
	if err := p.Submit(func() { close(ran) }); err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("pool stopped running tasks after a panic")
	}
}

func TestPool_WaitHonoursContext(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	release := make(chan struct{})
	defer func() {
		close(release)
		_ = p.Close(time.Second)
	}()
	_ = p.Submit(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait err = %v, want deadline exceeded", err)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Close(time.Second); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit err = %v, want ErrClosed", err)
	}
	// A rejected task must not leave Wait hanging.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Errorf("Wait after rejected submit: %v", err)
	}
}

func TestNew_DefaultSize(t *testing.T) {
	p, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(time.Second)
	if got := p.pool.Cap(); got != DefaultSize {
		t.Errorf("cap = %d, want %d", got, DefaultSize)
	}
}

func TestSlogAdapter_LogsDetailAttribute(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	slogAdapter{}.Printf("worker exits from panic: %v", "boom")

	out := buf.String()
	if !strings.Contains(out, `msg="dispatch: pool message"`) {
		t.Errorf("log = %q, want fixed message", out)
	}
	if !strings.Contains(out, `detail="worker exits from panic: boom"`) {
		t.Errorf("log = %q, want formatted detail attribute", out)
	}
}
