package narration_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chaqchase/sharad/internal/dispatch"
	"github.com/chaqchase/sharad/internal/narration"
	"github.com/chaqchase/sharad/internal/storage"
	audiomock "github.com/chaqchase/sharad/pkg/audio/mock"
	"github.com/chaqchase/sharad/pkg/provider/tts"
	ttsmock "github.com/chaqchase/sharad/pkg/provider/tts/mock"
	"github.com/chaqchase/sharad/pkg/script"
)

type playback struct {
	script *script.Script
	err    error
}

type harness struct {
	narrator *narration.Narrator
	pool     *dispatch.Pool
	tts      *ttsmock.Provider
	out      *audiomock.Player
	played   chan playback
}

func newHarness(t *testing.T, p *ttsmock.Provider, opts ...narration.NarratorOption) *harness {
	t.Helper()
	return newHarnessWithWorkers(t, 4, p, opts...)
}

func newHarnessWithWorkers(t *testing.T, workers int, p *ttsmock.Provider, opts ...narration.NarratorOption) *harness {
	t.Helper()
	pool, err := dispatch.New(workers)
	if err != nil {
		t.Fatalf("dispatch.New: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close(time.Second) })

	h := &harness{pool: pool, tts: p, out: &audiomock.Player{}, played: make(chan playback, 4)}
	opts = append(opts, narration.WithPlaybackHook(func(s *script.Script, err error) {
		h.played <- playback{s, err}
	}))
	h.narrator = narration.NewNarrator(
		narration.NewVoiceAssigner(narration.StrategyDeterministic, tts.Voices, 0),
		narration.NewEngine(p),
		narration.NewPlayer(h.out, nil),
		pool,
		opts...,
	)
	return h
}

func (h *harness) run(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.narrator.Run(ctx) }()
	return ctx
}

func (h *harness) waitPlayed(t *testing.T) playback {
	t.Helper()
	select {
	case pb := <-h.played:
		return pb
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not finish")
		return playback{}
	}
}

// unvoiced returns a script whose speakers still need voices.
func unvoiced(texts ...string) *script.Script {
	s := newScript(texts...)
	for i := range s.Speakers {
		s.Speakers[i].Voice = ""
	}
	return s
}

func TestNarrator_BothLinesPlayInOrder(t *testing.T) {
	texts := []string{"Halt!", "Who goes there?"}
	h := newHarness(t, &ttsmock.Provider{AudioByText: audioFor(texts...)})
	ctx := h.run(t)

	if err := h.narrator.Handle(ctx, narration.Generating{Script: unvoiced(texts...), Destination: newDest(t)}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	pb := h.waitPlayed(t)
	if pb.err != nil {
		t.Fatalf("playback error: %v", pb.err)
	}

	paths := h.out.Paths()
	if len(paths) != 2 {
		t.Fatalf("plays = %d, want 2", len(paths))
	}
	for i, p := range paths {
		if got := readFile(t, p); got != "ID3:"+texts[i] {
			t.Errorf("play %d = %q, want audio for %q", i, got, texts[i])
		}
	}
}

func TestNarrator_FailedLineIsSkipped(t *testing.T) {
	texts := []string{"Halt!", "Who goes there?"}
	h := newHarness(t, &ttsmock.Provider{
		AudioByText: audioFor(texts...),
		ErrByText:   map[string]error{"Who goes there?": errors.New("500")},
	})
	ctx := h.run(t)

	if err := h.narrator.Handle(ctx, narration.Generating{Script: unvoiced(texts...), Destination: newDest(t)}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	pb := h.waitPlayed(t)
	if pb.script.Dialogue[1].HasAudio() {
		t.Error("failed line has audio")
	}
	paths := h.out.Paths()
	if len(paths) != 1 {
		t.Fatalf("plays = %d, want 1", len(paths))
	}
	if got := readFile(t, paths[0]); got != "ID3:Halt!" {
		t.Errorf("played %q, want the first line", got)
	}
}

func TestNarrator_PublishesPlayingAfterAllRequests(t *testing.T) {
	texts := []string{"fast", "slow"}
	const slow = 60 * time.Millisecond
	p := &ttsmock.Provider{
		AudioByText: audioFor(texts...),
		DelayByText: map[string]time.Duration{"slow": slow},
	}
	h := newHarness(t, p)
	ctx := context.Background()

	start := time.Now()
	if err := h.narrator.Handle(ctx, narration.Generating{Script: unvoiced(texts...), Destination: newDest(t)}); err != nil {
		t.Fatal(err)
	}

	var msg narration.State
	select {
	case msg = <-h.narrator.Messages():
	case <-time.After(5 * time.Second):
		t.Fatal("no message published")
	}
	if elapsed := time.Since(start); elapsed < slow {
		t.Errorf("Playing published after %v, before the slow request resolved", elapsed)
	}
	playing, ok := msg.(narration.Playing)
	if !ok {
		t.Fatalf("message = %T, want Playing", msg)
	}
	for i, line := range playing.Script.Dialogue {
		if !line.HasAudio() {
			t.Errorf("line %d has no audio in published script", i)
		}
	}
	if len(h.out.Paths()) != 0 {
		t.Error("playback started before Playing was handed back")
	}
}

func TestNarrator_AssignsVoicesOnce(t *testing.T) {
	h := newHarness(t, &ttsmock.Provider{Audio: []byte("ID3")})
	ctx := h.run(t)
	s := unvoiced("one", "two")

	if err := h.narrator.Handle(ctx, narration.Generating{Script: s, Destination: newDest(t)}); err != nil {
		t.Fatal(err)
	}
	h.waitPlayed(t)

	first := s.Clone()
	for i, sp := range first.Speakers {
		if sp.Voice == "" {
			t.Fatalf("speaker %d has no voice after narration", i)
		}
	}

	if err := h.narrator.Handle(ctx, narration.Generating{Script: s, Destination: newDest(t)}); err != nil {
		t.Fatal(err)
	}
	h.waitPlayed(t)
	for i := range s.Speakers {
		if s.Speakers[i].Voice != first.Speakers[i].Voice {
			t.Errorf("speaker %d voice changed on second event", i)
		}
	}
}

func TestNarrator_InvalidScriptRejected(t *testing.T) {
	p := &ttsmock.Provider{Audio: []byte("ID3")}
	h := newHarness(t, p)
	s := unvoiced("one")
	s.Dialogue[0].SpeakerIndex = 9

	err := h.narrator.Handle(context.Background(), narration.Generating{Script: s, Destination: newDest(t)})
	if err == nil {
		t.Fatal("expected error for dangling speaker")
	}
	if n := len(p.Calls()); n != 0 {
		t.Errorf("issued %d requests, want 0", n)
	}
}

func TestNarrator_OutputDisabled(t *testing.T) {
	p := &ttsmock.Provider{Audio: []byte("ID3")}
	h := newHarness(t, p, narration.WithOutputEnabled(false))

	if err := h.narrator.Handle(context.Background(), narration.Generating{Script: unvoiced("one"), Destination: newDest(t)}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	select {
	case msg := <-h.narrator.Messages():
		t.Fatalf("unexpected message %T", msg)
	case <-time.After(50 * time.Millisecond):
	}
	if n := len(p.Calls()); n != 0 {
		t.Errorf("issued %d requests, want 0", n)
	}
}

func TestNarrator_SetOutputEnabled(t *testing.T) {
	p := &ttsmock.Provider{Audio: []byte("ID3")}
	h := newHarness(t, p)
	h.narrator.SetOutputEnabled(false)
	if err := h.narrator.Handle(context.Background(), narration.Generating{Script: unvoiced("one"), Destination: newDest(t)}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if n := len(p.Calls()); n != 0 {
		t.Fatalf("issued %d requests while disabled, want 0", n)
	}

	h.narrator.SetOutputEnabled(true)
	ctx := h.run(t)
	if err := h.narrator.Handle(ctx, narration.Generating{Script: unvoiced("two"), Destination: newDest(t)}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if pb := h.waitPlayed(t); pb.err != nil {
		t.Fatalf("playback error: %v", pb.err)
	}
	if n := len(p.Calls()); n != 1 {
		t.Errorf("issued %d requests after re-enabling, want 1", n)
	}
}

func TestNarrator_StoppedIsNoop(t *testing.T) {
	h := newHarness(t, &ttsmock.Provider{})
	if err := h.narrator.Handle(context.Background(), narration.Stopped{}); err != nil {
		t.Errorf("Handle(Stopped) = %v", err)
	}
}

func TestNarrator_PlaybackErrorReachesHook(t *testing.T) {
	h := newHarness(t, &ttsmock.Provider{Audio: []byte("ID3")})
	h.out.PlayErr = errors.New("no output device")

	if err := h.narrator.Handle(context.Background(), narration.Playing{Script: annotated("a.mp3", "b.mp3")}); err != nil {
		t.Fatal(err)
	}
	pb := h.waitPlayed(t)
	if pb.err == nil {
		t.Error("hook got nil error")
	}
	if n := len(h.out.Paths()); n != 1 {
		t.Errorf("plays = %d, want 1", n)
	}
}

func TestNarrator_ValidatesEvents(t *testing.T) {
	h := newHarness(t, &ttsmock.Provider{})
	ctx := context.Background()
	if err := h.narrator.Handle(ctx, narration.Generating{Destination: newDest(t)}); err == nil {
		t.Error("expected error for missing script")
	}
	if err := h.narrator.Handle(ctx, narration.Generating{Script: unvoiced("x")}); err == nil {
		t.Error("expected error for missing destination")
	}
	if err := h.narrator.Handle(ctx, narration.Playing{}); err == nil {
		t.Error("expected error for missing script")
	}
}

func TestNarrator_SurvivesCallerCancel(t *testing.T) {
	texts := []string{"Halt!", "Who goes there?"}
	h := newHarness(t, &ttsmock.Provider{
		AudioByText: audioFor(texts...),
		DelayByText: map[string]time.Duration{"Halt!": 50 * time.Millisecond, "Who goes there?": 50 * time.Millisecond},
	})
	h.run(t)

	reqCtx, cancel := context.WithCancel(context.Background())
	if err := h.narrator.Handle(reqCtx, narration.Generating{Script: unvoiced(texts...), Destination: newDest(t)}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	cancel()

	pb := h.waitPlayed(t)
	if pb.err != nil {
		t.Fatalf("playback error: %v", pb.err)
	}
	if n := len(h.out.Paths()); n != 2 {
		t.Errorf("plays = %d, want 2", n)
	}
}

func TestNarrator_SingleWorkerUnbufferedMakesProgress(t *testing.T) {
	const events = 5
	h := newHarnessWithWorkers(t, 1, &ttsmock.Provider{Audio: []byte("ID3")}, narration.WithMessageBuffer(0))
	ctx := h.run(t)

	dests := make([]storage.Destination, events)
	for i := range dests {
		dests[i] = newDest(t)
	}
	errs := make(chan error, 1)
	go func() {
		for _, dest := range dests {
			if err := h.narrator.Handle(ctx, narration.Generating{Script: unvoiced("one"), Destination: dest}); err != nil {
				errs <- err
				return
			}
		}
		errs <- nil
	}()

	for i := range events {
		if pb := h.waitPlayed(t); pb.err != nil {
			t.Fatalf("event %d playback error: %v", i, pb.err)
		}
	}
	if err := <-errs; err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if n := len(h.out.Paths()); n != events {
		t.Errorf("plays = %d, want %d", n, events)
	}
}

func TestNarrator_CloseReleasesPendingSynthesis(t *testing.T) {
	h := newHarness(t, &ttsmock.Provider{Audio: []byte("ID3")}, narration.WithMessageBuffer(0))

	// Nobody runs the narrator, so the finished synthesis waits to publish.
	if err := h.narrator.Handle(context.Background(), narration.Generating{Script: unvoiced("one"), Destination: newDest(t)}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	h.narrator.Close()
	h.narrator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.pool.Wait(ctx); err != nil {
		t.Fatalf("pool.Wait: %v", err)
	}
	select {
	case pb := <-h.played:
		t.Errorf("unexpected playback %+v", pb)
	default:
	}
}
