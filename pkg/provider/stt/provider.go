// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., OpenAI Whisper, a local
// whisper.cpp server, or Deepgram) and turns a finished recording on disk into
// text. Player input is captured into a WAV file first and transcribed as a
// whole once capture stops, so the interface is file based.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Provider is the abstraction over any STT backend.
type Provider interface {
	// TranscribeFile uploads the audio file at path and returns the recognised
	// text. The file must be in a container the backend understands; the
	// capture pipeline always produces WAV.
	//
	// Returns an error if the file cannot be read, the service fails, or ctx
	// is cancelled before a result arrives. An empty string with a nil error
	// means the service heard no speech.
	TranscribeFile(ctx context.Context, path string) (string, error)
}
