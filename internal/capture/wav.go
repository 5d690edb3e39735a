package capture

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/chaqchase/sharad/pkg/audio"
)

// WAV fmt-chunk audio format codes.
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// wavAudioFormat returns the WAV audio format code for a native sample
// format, or false if recordings in that format are not supported.
func wavAudioFormat(f audio.SampleFormat) (int, bool) {
	switch f {
	case audio.FormatU8, audio.FormatS16, audio.FormatS32:
		return wavFormatPCM, true
	case audio.FormatF32:
		return wavFormatFloat, true
	default:
		return 0, false
	}
}

// wavWriter encodes native interleaved samples into a WAV stream whose
// header matches the device format.
type wavWriter struct {
	enc    *wav.Encoder
	sample audio.SampleFormat
	buf    goaudio.IntBuffer
}

// newWavWriter writes the WAV header to w immediately, so even a recording
// that never receives samples is a well-formed file once closed.
func newWavWriter(w io.WriteSeeker, f audio.Format) (*wavWriter, error) {
	code, ok := wavAudioFormat(f.Sample)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Sample)
	}
	ww := &wavWriter{
		enc:    wav.NewEncoder(w, f.SampleRate, f.Sample.BitDepth(), f.Channels, code),
		sample: f.Sample,
		buf: goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
			SourceBitDepth: f.Sample.BitDepth(),
		},
	}
	if err := ww.enc.Write(&ww.buf); err != nil {
		return nil, fmt.Errorf("capture: write wav header: %w", err)
	}
	return ww, nil
}

// write converts pcm and appends it. pcm is not retained.
func (w *wavWriter) write(pcm []byte) error {
	samples, err := audio.Samples(w.sample, pcm)
	if err != nil {
		return err
	}
	w.buf.Data = samples
	return w.enc.Write(&w.buf)
}

// close patches the header sizes. The underlying file stays open.
func (w *wavWriter) close() error {
	return w.enc.Close()
}
