package narration

import (
	"context"
	"fmt"
	"sync"

	"github.com/chaqchase/sharad/internal/observe"
	"github.com/chaqchase/sharad/pkg/audio"
	"github.com/chaqchase/sharad/pkg/script"
)

// Player plays annotated scripts line by line. Only one script plays at a
// time; a second Play call waits for the first to finish.
type Player struct {
	out     audio.Player
	metrics *observe.Metrics
	mu      sync.Mutex
}

// NewPlayer returns a Player writing to out. A nil m selects the default
// metrics.
func NewPlayer(out audio.Player, m *observe.Metrics) *Player {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Player{out: out, metrics: m}
}

// Play plays each line of s that has audio, in dialogue order, waiting for
// each to finish before the next. Lines without audio are skipped. The first
// playback error aborts the remaining lines and is returned.
func (p *Player) Play(ctx context.Context, s *script.Script) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, observe.SpanPlay, observe.AttrLines.Int(len(s.Dialogue)))
	defer func() { observe.EndSpan(span, err) }()

	log := observe.Logger(ctx)
	for i, line := range s.Dialogue {
		if !line.HasAudio() {
			log.Debug("narration: skipping line without audio", "line", i)
			p.metrics.RecordPlaybackLine(ctx, observe.OutcomeSkipped)
			continue
		}
		if err := p.out.Play(ctx, line.Audio); err != nil {
			p.metrics.RecordPlaybackLine(ctx, observe.OutcomeFailed)
			return fmt.Errorf("narration: play line %d: %w", i, err)
		}
		p.metrics.RecordPlaybackLine(ctx, observe.OutcomePlayed)
	}
	return nil
}
