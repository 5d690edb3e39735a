package capture_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/chaqchase/sharad/internal/capture"
	"github.com/chaqchase/sharad/internal/observe"
	"github.com/chaqchase/sharad/internal/storage"
	"github.com/chaqchase/sharad/internal/transcript"
	"github.com/chaqchase/sharad/pkg/audio"
	audiomock "github.com/chaqchase/sharad/pkg/audio/mock"
	sttmock "github.com/chaqchase/sharad/pkg/provider/stt/mock"
)

func recordSomething(t *testing.T, dest storage.Destination) (*capture.Handle, *audiomock.InputDevice) {
	t.Helper()
	dev := &audiomock.InputDevice{Format: audio.Format{Sample: audio.FormatS16, SampleRate: 16000, Channels: 1}}
	h := start(t, dev, dest)
	dev.Stream().Emit(le16(10, 20, 30, 40))
	return h, dev
}

func received(t *testing.T, h *capture.Handle) capture.Transcription {
	t.Helper()
	select {
	case tr, ok := <-h.Transcription():
		if !ok {
			t.Fatal("transcription channel closed without a value")
		}
		return tr
	case <-time.After(5 * time.Second):
		t.Fatal("no transcription published")
		return capture.Transcription{}
	}
}

func TestBridge_Input_PublishesText(t *testing.T) {
	dest := newDest(t)
	h, _ := recordSomething(t, dest)
	p := &sttmock.Provider{Text: "I open the door"}

	got := capture.NewBridge(p).Input(context.Background(), h)
	if got.Err != nil || got.Text != "I open the door" {
		t.Fatalf("Input = %+v", got)
	}
	if tr := received(t, h); tr.Text != "I open the door" {
		t.Errorf("published %+v", tr)
	}
	if h.Recording() {
		t.Error("capture still recording")
	}

	if p.CallCount() != 1 {
		t.Fatalf("transcribe calls = %d, want 1", p.CallCount())
	}
	call := p.Calls[0]
	if call.Size <= 44 {
		t.Errorf("transcribed file size = %d, want header plus samples", call.Size)
	}
	if _, ok := call.Ctx.Deadline(); !ok {
		t.Error("transcription ran without a deadline")
	}
	if _, err := os.Stat(call.Path); !os.IsNotExist(err) {
		t.Error("recording not removed after transcription")
	}
}

func TestBridge_Input_ErrorIsPublishedAndCleanedUp(t *testing.T) {
	dest := newDest(t)
	h, _ := recordSomething(t, dest)
	p := &sttmock.Provider{Err: errors.New("quota exceeded")}

	got := capture.NewBridge(p).Input(context.Background(), h)
	if got.Err == nil || got.Text != "" {
		t.Fatalf("Input = %+v, want error without text", got)
	}
	tr := received(t, h)
	if tr.Err == nil {
		t.Error("published transcription has no error")
	}
	if _, err := os.Stat(p.Calls[0].Path); !os.IsNotExist(err) {
		t.Error("recording not removed after failed transcription")
	}
}

func TestBridge_Input_KeepRecordings(t *testing.T) {
	dest := newDest(t)
	h, _ := recordSomething(t, dest)
	p := &sttmock.Provider{Text: "ok"}

	capture.NewBridge(p, capture.WithKeepRecordings(true)).Input(context.Background(), h)
	if _, err := os.Stat(p.Calls[0].Path); err != nil {
		t.Errorf("recording removed despite keep: %v", err)
	}
}

func TestBridge_Input_SweepsTempDir(t *testing.T) {
	dest := newDest(t)
	stale := filepath.Join(dest.Dir(), "2020-01-01_00-00-00.000"+storage.RecordingSuffix)
	if err := os.WriteFile(stale, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	h, _ := recordSomething(t, dest)
	capture.NewBridge(&sttmock.Provider{Text: "ok"}).Input(context.Background(), h)

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale temp recording not swept")
	}
}

func TestBridge_Input_GameDirNotSwept(t *testing.T) {
	root := t.TempDir()
	dest, err := storage.Resolve(filepath.Join(root, "save.json"), root)
	if err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(dest.Dir(), "2020-01-01_00-00-00.000"+storage.RecordingSuffix)
	if err := os.WriteFile(stale, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	h, _ := recordSomething(t, dest)
	capture.NewBridge(&sttmock.Provider{Text: "ok"}).Input(context.Background(), h)

	if _, err := os.Stat(stale); err != nil {
		t.Errorf("recording in game dir swept: %v", err)
	}
}

func TestBridge_Input_CancelledContext(t *testing.T) {
	dest := newDest(t)
	h, _ := recordSomething(t, dest)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The capture still finalizes; the provider sees the cancelled context.
	p := &sttmock.Provider{Text: "late"}
	capture.NewBridge(p).Input(ctx, h)

	select {
	case <-h.Done():
	default:
		t.Fatal("Input returned before the capture finished")
	}
	if p.CallCount() != 1 || p.Calls[0].Ctx.Err() == nil {
		t.Error("provider did not receive the cancelled context")
	}
}

func TestBridge_Input_SecondCallIsRejected(t *testing.T) {
	dest := newDest(t)
	h, _ := recordSomething(t, dest)
	p := &sttmock.Provider{Text: "once"}
	b := capture.NewBridge(p)

	b.Input(context.Background(), h)
	got := b.Input(context.Background(), h)
	if !errors.Is(got.Err, capture.ErrAlreadyStopped) {
		t.Errorf("second Input err = %v, want ErrAlreadyStopped", got.Err)
	}
	if p.CallCount() != 1 {
		t.Errorf("transcribe calls = %d, want 1", p.CallCount())
	}
}

func TestBridge_SetKeepRecordings(t *testing.T) {
	dest := newDest(t)
	p := &sttmock.Provider{Text: "ok"}
	b := capture.NewBridge(p)
	b.SetKeepRecordings(true)

	h, _ := recordSomething(t, dest)
	b.Input(context.Background(), h)
	if _, err := os.Stat(p.Calls[0].Path); err != nil {
		t.Errorf("recording removed after SetKeepRecordings(true): %v", err)
	}
}

func TestBridge_Input_CorrectsVocabulary(t *testing.T) {
	dest := newDest(t)
	h, _ := recordSomething(t, dest)
	p := &sttmock.Provider{Text: "we ride to the tower of wispers"}
	b := capture.NewBridge(p, capture.WithCorrector(transcript.New([]string{"Tower of Whispers"})))

	want := "we ride to the Tower of Whispers"
	if got := b.Input(context.Background(), h); got.Text != want {
		t.Errorf("Input text = %q, want %q", got.Text, want)
	}
	if tr := received(t, h); tr.Text != want {
		t.Errorf("published text = %q, want %q", tr.Text, want)
	}
}

func TestBridge_Discard(t *testing.T) {
	dest, err := storage.Resolve(filepath.Join(t.TempDir(), "campaign.json"), t.TempDir())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	h, dev := recordSomething(t, dest)
	p := &sttmock.Provider{Text: "never"}
	b := capture.NewBridge(p, capture.WithKeepRecordings(true))
	reason := errors.New("pool closed")

	b.Discard(context.Background(), h, reason)

	if tr := received(t, h); !errors.Is(tr.Err, reason) || tr.Text != "" {
		t.Errorf("published %+v, want the discard reason", tr)
	}
	if _, ok := <-h.Transcription(); ok {
		t.Error("transcription channel not closed")
	}
	path, err := h.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("discarded recording still on disk: %v", err)
	}
	if !dev.Stream().Closed() {
		t.Error("input stream not closed")
	}
	if p.CallCount() != 0 {
		t.Errorf("transcribe calls = %d, want 0", p.CallCount())
	}
	if got := b.Input(context.Background(), h); !errors.Is(got.Err, capture.ErrAlreadyStopped) {
		t.Errorf("Input after Discard = %+v, want ErrAlreadyStopped", got)
	}
}

func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func spansByName(exp *tracetest.InMemoryExporter) map[string]tracetest.SpanStub {
	out := map[string]tracetest.SpanStub{}
	for _, s := range exp.GetSpans() {
		out[s.Name] = s
	}
	return out
}

func TestBridge_Input_Spans(t *testing.T) {
	exp := recordSpans(t)
	h, _ := recordSomething(t, newDest(t))
	p := &sttmock.Provider{Text: "I search the chest"}

	if got := capture.NewBridge(p, capture.WithProviderName("whisper")).Input(context.Background(), h); got.Err != nil {
		t.Fatalf("Input: %v", got.Err)
	}

	spans := spansByName(exp)
	input, ok := spans[observe.SpanCaptureInput]
	if !ok {
		t.Fatalf("no %s span in %v", observe.SpanCaptureInput, spans)
	}
	transcribe, ok := spans[observe.SpanTranscribe]
	if !ok {
		t.Fatalf("no %s span", observe.SpanTranscribe)
	}
	if transcribe.Parent.SpanID() != input.SpanContext.SpanID() {
		t.Error("transcription span not nested in the capture span")
	}
	attrs := attribute.NewSet(input.Attributes...)
	if v, _ := attrs.Value(observe.AttrProvider); v.AsString() != "whisper" {
		t.Errorf("provider = %q, want whisper", v.AsString())
	}
	if v, _ := attrs.Value(observe.AttrDestination); v.AsString() != storage.KindTemp.String() {
		t.Errorf("destination = %q", v.AsString())
	}
	if input.Status.Code == codes.Error || transcribe.Status.Code == codes.Error {
		t.Error("successful capture marked as error")
	}
}

func TestBridge_Input_FailedTranscriptionSpans(t *testing.T) {
	exp := recordSpans(t)
	h, _ := recordSomething(t, newDest(t))
	p := &sttmock.Provider{Err: errors.New("quota exceeded")}

	if got := capture.NewBridge(p).Input(context.Background(), h); got.Err == nil {
		t.Fatal("Input succeeded, want transcription error")
	}

	spans := spansByName(exp)
	for _, name := range []string{observe.SpanCaptureInput, observe.SpanTranscribe} {
		s, ok := spans[name]
		if !ok {
			t.Fatalf("no %s span", name)
		}
		if s.Status.Code != codes.Error {
			t.Errorf("%s status = %v, want error", name, s.Status.Code)
		}
	}
}
