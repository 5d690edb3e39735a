package narration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chaqchase/sharad/internal/dispatch"
	"github.com/chaqchase/sharad/internal/observe"
	"github.com/chaqchase/sharad/pkg/script"
)

// DefaultMessageBuffer is the capacity of the narration message channel.
const DefaultMessageBuffer = 16

// PlaybackHook is called after a Playing event finished, with the error that
// aborted it (nil when every line with audio was played).
type PlaybackHook func(s *script.Script, err error)

// NarratorOption configures a [Narrator].
type NarratorOption func(*Narrator)

// WithOutputEnabled toggles audio output. When disabled, Generating events
// are dropped without synthesis. Enabled by default.
func WithOutputEnabled(enabled bool) NarratorOption {
	return func(n *Narrator) { n.outputEnabled.Store(enabled) }
}

// WithPlaybackHook registers fn to run after each event's playback.
func WithPlaybackHook(fn PlaybackHook) NarratorOption {
	return func(n *Narrator) { n.onPlayed = fn }
}

// WithMessageBuffer overrides [DefaultMessageBuffer].
func WithMessageBuffer(size int) NarratorOption {
	return func(n *Narrator) { n.bufSize = size }
}

// WithNarratorMetrics overrides the default metrics instance.
func WithNarratorMetrics(m *observe.Metrics) NarratorOption {
	return func(n *Narrator) { n.metrics = m }
}

// Narrator drives narration events through their states. Handle accepts a
// [State]; synthesis runs on the dispatcher, detached from the caller's
// context, and its completion is published as [Playing] on
// [Narrator.Messages]. [Narrator.Run] reads that channel and plays each event
// on its own goroutine, so a full dispatcher never stalls the reader.
type Narrator struct {
	assigner   *VoiceAssigner
	engine     *Engine
	player     *Player
	dispatcher dispatch.Dispatcher
	metrics    *observe.Metrics

	outputEnabled atomic.Bool
	onPlayed      PlaybackHook
	bufSize       int

	messages chan State
	quit     chan struct{}
	quitOnce sync.Once
}

// NewNarrator wires the narration components together.
func NewNarrator(assigner *VoiceAssigner, engine *Engine, player *Player, d dispatch.Dispatcher, opts ...NarratorOption) *Narrator {
	n := &Narrator{
		assigner:   assigner,
		engine:     engine,
		player:     player,
		dispatcher: d,
		bufSize:    DefaultMessageBuffer,
		quit:       make(chan struct{}),
	}
	n.outputEnabled.Store(true)
	for _, o := range opts {
		o(n)
	}
	if n.metrics == nil {
		n.metrics = observe.DefaultMetrics()
	}
	if n.bufSize < 0 {
		n.bufSize = 0
	}
	n.messages = make(chan State, n.bufSize)
	return n
}

// SetOutputEnabled toggles audio output for events handled from now on.
func (n *Narrator) SetOutputEnabled(enabled bool) { n.outputEnabled.Store(enabled) }

// Messages returns the channel on which completed syntheses are published.
func (n *Narrator) Messages() <-chan State { return n.messages }

// Close releases synthesis tasks still waiting to publish; their events are
// dropped. Run calls it on return. Safe to call more than once.
func (n *Narrator) Close() {
	n.quitOnce.Do(func() { close(n.quit) })
}

// Handle processes one state transition. It returns once the work has been
// scheduled; errors are returned only for events that could not be accepted.
// Synthesis outlives ctx: cancelling it after Handle returns does not drop
// the event.
func (n *Narrator) Handle(ctx context.Context, st State) error {
	switch st := st.(type) {
	case Generating:
		return n.generate(ctx, st)
	case Playing:
		return n.play(ctx, st)
	case Stopped:
		return nil
	default:
		return fmt.Errorf("narration: unknown state %T", st)
	}
}

// Run plays every published event in order until ctx is done. Playback of
// the current event is paused when ctx ends.
func (n *Narrator) Run(ctx context.Context) error {
	defer n.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st := <-n.messages:
			playing, ok := st.(Playing)
			if !ok {
				if err := n.Handle(ctx, st); err != nil {
					observe.ReportError(ctx, "narration: handle message", err)
				}
				continue
			}
			if playing.Script == nil {
				observe.Logger(ctx).Warn("narration: playing event without script")
				continue
			}
			n.playNow(ctx, playing)
		}
	}
}

func (n *Narrator) generate(ctx context.Context, st Generating) error {
	log := observe.Logger(ctx)
	if !n.outputEnabled.Load() {
		log.Debug("narration: audio output disabled, dropping event")
		return nil
	}
	if st.Script == nil {
		return errors.New("narration: generating event without script")
	}
	if st.Destination.IsZero() {
		return errors.New("narration: generating event without destination")
	}
	if err := st.Script.Validate(); err != nil {
		return err
	}

	n.assigner.Assign(st.Script)
	s := st.Script.Clone()
	bg := context.WithoutCancel(ctx)

	return n.submit(func() {
		n.metrics.ActiveNarrations.Add(bg, 1)
		defer n.metrics.ActiveNarrations.Add(bg, -1)

		annotated, err := n.engine.Synthesize(bg, s, st.Destination)
		if err != nil {
			observe.ReportError(bg, "narration: event dropped", err)
			return
		}
		select {
		case n.messages <- Playing{Script: annotated}:
		case <-n.quit:
			log.Warn("narration: stopped before playback", "lines", len(annotated.Dialogue))
		}
	})
}

func (n *Narrator) play(ctx context.Context, st Playing) error {
	if st.Script == nil {
		return errors.New("narration: playing event without script")
	}
	return n.submit(func() { n.playNow(ctx, st) })
}

func (n *Narrator) playNow(ctx context.Context, st Playing) {
	n.metrics.ActiveNarrations.Add(ctx, 1)
	defer n.metrics.ActiveNarrations.Add(ctx, -1)

	err := n.player.Play(ctx, st.Script)
	if err != nil {
		observe.ReportError(ctx, "narration: playback aborted", err)
	}
	if n.onPlayed != nil {
		n.onPlayed(st.Script, err)
	}
}

func (n *Narrator) submit(task func()) error {
	if err := n.dispatcher.Submit(task); err != nil {
		return fmt.Errorf("narration: schedule: %w", err)
	}
	return nil
}
