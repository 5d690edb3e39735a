package narration

import (
	"github.com/chaqchase/sharad/internal/storage"
	"github.com/chaqchase/sharad/pkg/script"
)

// State is the narration state of one event. It is a closed set:
// [Generating], [Playing] and [Stopped].
//
// An event enters as Generating. When every synthesis request has resolved
// the [Narrator] publishes Playing with the annotated script on its message
// channel; handing that message back to the Narrator starts playback. The
// transition is one-way.
type State interface {
	state()
}

// Generating asks for synthesis of Script into Destination.
type Generating struct {
	Script      *script.Script
	Destination storage.Destination
}

// Playing carries a script whose lines are annotated with audio paths. Lines
// whose synthesis failed have no audio and are skipped during playback.
type Playing struct {
	Script *script.Script
}

// Stopped is the terminal state. Handling it does nothing.
type Stopped struct{}

func (Generating) state() {}
func (Playing) state()    {}
func (Stopped) state()    {}
