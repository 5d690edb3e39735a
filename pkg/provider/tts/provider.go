// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI or
// ElevenLabs) and turns one line of narration text into an encoded audio
// stream. Narration synthesises whole lines before playback, so the interface
// is request/response rather than incremental: Synthesize returns a reader
// over the complete encoded audio (MP3 unless the implementation documents
// otherwise) that the caller copies to disk.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"io"
	"slices"
)

// Voice names one of the fixed narration voices. The set is closed; see
// [Voices].
type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceEcho    Voice = "echo"
	VoiceFable   Voice = "fable"
	VoiceOnyx    Voice = "onyx"
	VoiceNova    Voice = "nova"
	VoiceShimmer Voice = "shimmer"
)

// Voices is the enumerated voice set used for speaker assignment, in a stable
// order.
var Voices = []Voice{VoiceAlloy, VoiceEcho, VoiceFable, VoiceOnyx, VoiceNova, VoiceShimmer}

// IsValid reports whether v is part of [Voices].
func (v Voice) IsValid() bool {
	return slices.Contains(Voices, v)
}

// Request describes a single synthesis call.
type Request struct {
	// Text is the line to speak.
	Text string

	// Voice selects the speaker voice.
	Voice Voice

	// Speed is the speaking-rate multiplier. Zero means the provider default.
	Speed float64
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. The narration engine issues
// one request per dialogue line, all in flight at the same time.
type Provider interface {
	// Synthesize generates speech for req and returns the encoded audio. The
	// caller must close the returned reader. A non-nil error means no audio was
	// produced; errors raised while reading the stream surface from Read.
	Synthesize(ctx context.Context, req Request) (io.ReadCloser, error)
}
