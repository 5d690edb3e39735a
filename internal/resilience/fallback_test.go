package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/chaqchase/sharad/internal/observe"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newGroup() *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_Order(t *testing.T) {
	tests := []struct {
		name     string
		failing  []string
		wantCall []string
		wantErr  bool
	}{
		{name: "primary ok", wantCall: []string{"primary"}},
		{name: "primary down", failing: []string{"primary"}, wantCall: []string{"primary", "secondary"}},
		{name: "all down", failing: []string{"primary", "secondary"}, wantCall: []string{"primary", "secondary"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := newGroup()
			var calls []string
			err := fg.Execute(context.Background(), func(v string) error {
				calls = append(calls, v)
				if slices.Contains(tt.failing, v) {
					return errTest
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && (!errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest)) {
				t.Errorf("err = %v, want ErrAllFailed wrapping the last error", err)
			}
			if !slices.Equal(calls, tt.wantCall) {
				t.Errorf("calls = %v, want %v", calls, tt.wantCall)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	fg := newGroup()
	for range 2 {
		_ = fg.Execute(context.Background(), func(v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}
	if s := fg.Breaker("primary").State(); s != StateOpen {
		t.Fatalf("primary breaker = %v, want open", s)
	}

	var calls []string
	if err := fg.Execute(context.Background(), func(v string) error {
		calls = append(calls, v)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(calls, []string{"secondary"}) {
		t.Errorf("calls = %v, want only secondary", calls)
	}
}

func TestFallbackGroup_StopsOnCancel(t *testing.T) {
	fg := newGroup()
	ctx, cancel := context.WithCancel(context.Background())

	var calls []string
	err := fg.Execute(ctx, func(v string) error {
		calls = append(calls, v)
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrAllFailed) {
		t.Error("a cancelled call should not be reported as all providers failing")
	}
	if len(calls) != 1 {
		t.Errorf("calls = %v, want only the first entry", calls)
	}
	if s := fg.Breaker("primary").State(); s != StateClosed {
		t.Errorf("primary breaker = %v, cancellation must not count", s)
	}
}

func TestFallbackGroup_CancelledBeforeStart(t *testing.T) {
	fg := newGroup()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := fg.Execute(ctx, func(string) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("err = %v, called = %v", err, called)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	fg := newGroup()
	fg.AddFallback("tertiary", "tertiary")
	if got := fg.Names(); !slices.Equal(got, []string{"primary", "secondary", "tertiary"}) {
		t.Errorf("Names() = %v", got)
	}
	if fg.Breaker("absent") != nil {
		t.Error("Breaker(absent) should be nil")
	}
}

func TestExecuteWithResult(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{})
	fg.AddFallback("twenty", 20)

	got, err := ExecuteWithResult(context.Background(), fg, func(v int) (int, error) {
		if v == 10 {
			return 0, errTest
		}
		return v * 2, nil
	})
	if err != nil || got != 40 {
		t.Fatalf("ExecuteWithResult = %d, %v; want 40", got, err)
	}
}

func TestFallbackGroup_RecordsTransitions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	var hooked int
	fg := NewFallbackGroup("a", "a", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:   1,
			ResetTimeout:  time.Hour,
			OnStateChange: func(string, State, State) { hooked++ },
		},
		Metrics: m,
	})
	_ = fg.Execute(context.Background(), func(string) error { return errTest })

	if hooked != 1 {
		t.Errorf("configured OnStateChange called %d times, want 1", hooked)
	}
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "sharad.circuit.transitions" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 1 {
		t.Errorf("recorded transitions = %d, want 1", total)
	}
}
