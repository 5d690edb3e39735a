package capture_test

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/chaqchase/sharad/internal/capture"
	"github.com/chaqchase/sharad/internal/storage"
	"github.com/chaqchase/sharad/pkg/audio"
	audiomock "github.com/chaqchase/sharad/pkg/audio/mock"
)

func newDest(t *testing.T) storage.Destination {
	t.Helper()
	d, err := storage.Resolve("", t.TempDir())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return d
}

func start(t *testing.T, dev *audiomock.InputDevice, dest storage.Destination) *capture.Handle {
	t.Helper()
	h, err := capture.Start(dev, dest, capture.WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h
}

func stopAndWait(t *testing.T, h *capture.Handle) string {
	t.Helper()
	h.Stop()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("capture did not finish")
	}
	path, err := h.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	return path
}

func decode(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatalf("%s is not a valid wav file: %v", path, d.Err())
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	return d, buf.Data
}

func le16(vs ...int16) []byte {
	b := make([]byte, 0, len(vs)*2)
	for _, v := range vs {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return b
}

func le32(vs ...uint32) []byte {
	b := make([]byte, 0, len(vs)*4)
	for _, v := range vs {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return b
}

func TestStart_RecordsSupportedFormats(t *testing.T) {
	f1, f2 := math.Float32bits(0.5), math.Float32bits(-0.25)
	neg := int32(-70000)
	tests := []struct {
		name       string
		format     audio.Format
		batches    [][]byte
		wantCode   uint16
		wantDepth  uint16
		wantSample []int
	}{
		{
			name:       "u8 mono",
			format:     audio.Format{Sample: audio.FormatU8, SampleRate: 8000, Channels: 1},
			batches:    [][]byte{{0, 128}, {255, 1}},
			wantCode:   1,
			wantDepth:  8,
			wantSample: []int{0, 128, 255, 1},
		},
		{
			name:       "s16 mono",
			format:     audio.Format{Sample: audio.FormatS16, SampleRate: 16000, Channels: 1},
			batches:    [][]byte{le16(100, -200), le16(300)},
			wantCode:   1,
			wantDepth:  16,
			wantSample: []int{100, -200, 300},
		},
		{
			name:       "s32 stereo",
			format:     audio.Format{Sample: audio.FormatS32, SampleRate: 48000, Channels: 2},
			batches:    [][]byte{le32(1, uint32(neg))},
			wantCode:   1,
			wantDepth:  32,
			wantSample: []int{1, -70000},
		},
		{
			name:       "f32 mono",
			format:     audio.Format{Sample: audio.FormatF32, SampleRate: 44100, Channels: 1},
			batches:    [][]byte{le32(f1, f2)},
			wantCode:   3,
			wantDepth:  32,
			wantSample: []int{int(int32(f1)), int(int32(f2))},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &audiomock.InputDevice{Format: tt.format}
			h := start(t, dev, newDest(t))
			for _, b := range tt.batches {
				if !dev.Stream().Emit(b) {
					t.Fatal("stream did not accept samples")
				}
			}
			path := stopAndWait(t, h)

			d, samples := decode(t, path)
			if d.WavAudioFormat != tt.wantCode {
				t.Errorf("audio format = %d, want %d", d.WavAudioFormat, tt.wantCode)
			}
			if d.BitDepth != tt.wantDepth {
				t.Errorf("bit depth = %d, want %d", d.BitDepth, tt.wantDepth)
			}
			if int(d.NumChans) != tt.format.Channels || int(d.SampleRate) != tt.format.SampleRate {
				t.Errorf("header = %dch %dHz, want %s", d.NumChans, d.SampleRate, tt.format)
			}
			if !slices.Equal(samples, tt.wantSample) {
				t.Errorf("samples = %v, want %v", samples, tt.wantSample)
			}
		})
	}
}

func TestStart_UnsupportedFormat(t *testing.T) {
	for _, sf := range []audio.SampleFormat{audio.FormatS24, audio.FormatUnknown} {
		t.Run(sf.String(), func(t *testing.T) {
			dest := newDest(t)
			dev := &audiomock.InputDevice{Format: audio.Format{Sample: sf, SampleRate: 48000, Channels: 1}}

			_, err := capture.Start(dev, dest)
			if !errors.Is(err, capture.ErrUnsupportedFormat) {
				t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
			}
			if !dev.Stream().Closed() {
				t.Error("stream left open")
			}
			if entries, _ := os.ReadDir(dest.Dir()); len(entries) != 0 {
				t.Errorf("file created for unsupported format: %s", entries[0].Name())
			}
		})
	}
}

func TestStart_DeviceErrors(t *testing.T) {
	format := audio.Format{Sample: audio.FormatS16, SampleRate: 16000, Channels: 1}

	t.Run("open", func(t *testing.T) {
		dev := &audiomock.InputDevice{Format: format, OpenErr: audio.ErrNoInputDevice}
		_, err := capture.Start(dev, newDest(t))
		if !errors.Is(err, audio.ErrNoInputDevice) {
			t.Errorf("err = %v, want ErrNoInputDevice", err)
		}
	})

	t.Run("start", func(t *testing.T) {
		dest := newDest(t)
		dev := &audiomock.InputDevice{Format: format, StartErr: errors.New("device busy")}
		if _, err := capture.Start(dev, dest); err == nil {
			t.Fatal("expected error")
		}
		if entries, _ := os.ReadDir(dest.Dir()); len(entries) != 0 {
			t.Errorf("file left behind: %s", entries[0].Name())
		}
	})

	t.Run("file", func(t *testing.T) {
		dest := newDest(t)
		if err := os.RemoveAll(dest.Dir()); err != nil {
			t.Fatal(err)
		}
		dev := &audiomock.InputDevice{Format: format}
		if _, err := capture.Start(dev, dest); err == nil {
			t.Fatal("expected error when the destination is gone")
		}
		if !dev.Stream().Closed() {
			t.Error("stream left open")
		}
	})
}

func TestHandle_ResultLifecycle(t *testing.T) {
	dest := newDest(t)
	dev := &audiomock.InputDevice{Format: audio.Format{Sample: audio.FormatS16, SampleRate: 16000, Channels: 1}}
	h := start(t, dev, dest)

	if !h.Recording() {
		t.Error("handle not recording after Start")
	}
	if _, err := h.Result(); !errors.Is(err, capture.ErrStillRecording) {
		t.Errorf("Result before stop = %v, want ErrStillRecording", err)
	}

	path := stopAndWait(t, h)
	if h.Recording() {
		t.Error("handle still recording after Stop")
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() < 44 {
		t.Errorf("recording missing or without header: %v", err)
	}
	if h.Destination().Dir() != dest.Dir() {
		t.Errorf("destination = %q", h.Destination().Dir())
	}
	if dev.Stream().Emit(le16(1)) {
		t.Error("stream still delivering after stop")
	}
	if dev.Stream().CloseCalls != 1 {
		t.Errorf("stream closed %d times, want 1", dev.Stream().CloseCalls)
	}
}
