// Package audio defines the interfaces and types for local audio device
// access within Sharad.
//
// The primary abstractions are:
//
//   - [InputDevice] opens the default capture device and returns an
//     [InputStream] that delivers raw interleaved samples in the device's
//     native [Format] to a callback.
//   - [Player] plays an encoded audio file on the default output device,
//     blocking until playback finishes.
//
// Implementations live in adapter packages (audio/malgo for capture,
// audio/playback for output, audio/mock for tests). The interfaces are kept
// narrow so the capture and narration pipelines stay decoupled from the
// native audio libraries.
package audio

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoInputDevice is returned when no default capture device is available.
var ErrNoInputDevice = errors.New("audio: no input device available")

// SampleFormat is the native sample encoding of a device stream.
type SampleFormat int

const (
	// FormatUnknown is any encoding the pipeline cannot handle.
	FormatUnknown SampleFormat = iota

	// FormatU8 is unsigned 8-bit PCM.
	FormatU8

	// FormatS16 is signed 16-bit little-endian PCM.
	FormatS16

	// FormatS24 is packed signed 24-bit PCM. Devices may report it but it is
	// not supported for recording.
	FormatS24

	// FormatS32 is signed 32-bit little-endian PCM.
	FormatS32

	// FormatF32 is 32-bit little-endian IEEE float.
	FormatF32
)

// String returns the human-readable name of the sample format.
func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16"
	case FormatS24:
		return "s24"
	case FormatS32:
		return "s32"
	case FormatF32:
		return "f32"
	default:
		return "unknown"
	}
}

// BitDepth returns the number of bits per sample, or 0 for [FormatUnknown].
func (f SampleFormat) BitDepth() int {
	switch f {
	case FormatU8:
		return 8
	case FormatS16:
		return 16
	case FormatS24:
		return 24
	case FormatS32, FormatF32:
		return 32
	default:
		return 0
	}
}

// BytesPerSample returns BitDepth/8.
func (f SampleFormat) BytesPerSample() int { return f.BitDepth() / 8 }

// Format describes the native encoding of a device stream.
type Format struct {
	Sample     SampleFormat
	SampleRate int
	Channels   int
}

// String returns e.g. "s16 48000Hz stereo".
func (f Format) String() string {
	return fmt.Sprintf("%s %s", f.Sample, formatString(f.SampleRate, f.Channels))
}

// InputStream is an opened capture stream. The data callback passed to
// [InputDevice.OpenInput] starts firing after Start and stops before Close
// returns.
type InputStream interface {
	// Format returns the negotiated native format of the stream.
	Format() Format

	// Start begins delivering samples.
	Start() error

	// Close stops the stream and releases the device. Safe to call more than
	// once.
	Close() error
}

// InputDevice opens the default capture device.
//
// The callback receives interleaved samples in the stream's native format. It
// runs on the audio library's real-time thread: it must not block, and the
// slice is only valid for the duration of the call.
type InputDevice interface {
	OpenInput(onData func(pcm []byte)) (InputStream, error)
}

// Player plays encoded audio files on the default output device.
//
// Implementations must be safe for concurrent use; concurrent calls may be
// mixed by the device, so callers that need strict sequencing serialize them.
type Player interface {
	// Play decodes and plays the file at path, returning once playback has
	// finished or ctx is cancelled.
	Play(ctx context.Context, path string) error
}
