package narration

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/chaqchase/sharad/pkg/provider/tts"
	"github.com/chaqchase/sharad/pkg/script"
)

// VoiceStrategy selects how [VoiceAssigner] picks voices.
type VoiceStrategy string

const (
	// StrategyDeterministic maps speaker index i to voices[i mod len(voices)].
	StrategyDeterministic VoiceStrategy = "deterministic"

	// StrategyRandom draws a voice uniformly at random per speaker.
	StrategyRandom VoiceStrategy = "random"
)

// IsValid reports whether s is a known strategy.
func (s VoiceStrategy) IsValid() bool {
	return s == StrategyDeterministic || s == StrategyRandom
}

// VoiceAssigner gives every speaker of a script a voice exactly once.
// Speakers that already carry a voice are never touched, so calling Assign
// repeatedly on the same script is a no-op after the first call. It is safe
// for concurrent use.
type VoiceAssigner struct {
	voices   []tts.Voice
	strategy VoiceStrategy

	mu  sync.Mutex
	rng *rand.Rand
}

// NewVoiceAssigner returns an assigner drawing from voices. A seed of 0 with
// [StrategyRandom] seeds from the runtime's random source; any other seed
// makes assignment reproducible.
//
// An empty voice set is a programming error and panics.
func NewVoiceAssigner(strategy VoiceStrategy, voices []tts.Voice, seed uint64) *VoiceAssigner {
	if len(voices) == 0 {
		panic("narration: voice assigner needs at least one voice")
	}
	if strategy == "" {
		strategy = StrategyDeterministic
	}
	if !strategy.IsValid() {
		panic(fmt.Sprintf("narration: unknown voice strategy %q", strategy))
	}
	a := &VoiceAssigner{
		voices:   append([]tts.Voice(nil), voices...),
		strategy: strategy,
	}
	if strategy == StrategyRandom {
		if seed == 0 {
			seed = rand.Uint64()
		}
		a.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return a
}

// Assign fills in the voice of every speaker in s that has none.
func (a *VoiceAssigner) Assign(s *script.Script) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.voices)
	for i := range s.Speakers {
		sp := &s.Speakers[i]
		if sp.Voice != "" {
			continue
		}
		switch a.strategy {
		case StrategyRandom:
			sp.Voice = a.voices[a.rng.IntN(n)]
		default:
			sp.Voice = a.voices[((sp.Index%n)+n)%n]
		}
	}
}
