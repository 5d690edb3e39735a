// Package malgo implements [audio.InputDevice] on top of miniaudio via
// github.com/gen2brain/malgo.
//
// The default capture device is opened in its native sample format, rate and
// channel count; no conversion happens inside miniaudio so the recorded file
// matches what the hardware delivers.
package malgo

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/chaqchase/sharad/pkg/audio"
)

// Compile-time assertion that Device implements audio.InputDevice.
var _ audio.InputDevice = (*Device)(nil)

// Device opens the system default capture device. The zero value is ready to
// use.
type Device struct{}

// New returns a Device.
func New() *Device { return &Device{} }

// OpenInput initialises a miniaudio context and capture device. onData is
// called on miniaudio's device thread with the raw captured bytes; the slice
// is reused after the callback returns.
func (d *Device) OpenInput(onData func(pcm []byte)) (audio.InputStream, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	// Zero values request the device's native format.
	cfg.Capture.Format = malgo.FormatUnknown
	cfg.Capture.Channels = 0
	cfg.SampleRate = 0

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			if len(in) > 0 {
				onData(in)
			}
		},
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		if errors.Is(err, malgo.ErrNoDevice) || errors.Is(err, malgo.ErrDoesNotExist) {
			return nil, fmt.Errorf("malgo: init device: %w", audio.ErrNoInputDevice)
		}
		return nil, fmt.Errorf("malgo: init device: %w", err)
	}

	s := &stream{
		ctx: mctx,
		dev: dev,
		format: audio.Format{
			Sample:     sampleFormat(dev.CaptureFormat()),
			SampleRate: int(dev.SampleRate()),
			Channels:   int(dev.CaptureChannels()),
		},
	}
	slog.Debug("malgo: capture device opened", "format", s.format.String())
	return s, nil
}

// sampleFormat maps a miniaudio format onto [audio.SampleFormat].
func sampleFormat(f malgo.FormatType) audio.SampleFormat {
	switch f {
	case malgo.FormatU8:
		return audio.FormatU8
	case malgo.FormatS16:
		return audio.FormatS16
	case malgo.FormatS24:
		return audio.FormatS24
	case malgo.FormatS32:
		return audio.FormatS32
	case malgo.FormatF32:
		return audio.FormatF32
	default:
		return audio.FormatUnknown
	}
}

type stream struct {
	ctx    *malgo.AllocatedContext
	dev    *malgo.Device
	format audio.Format

	closeOnce sync.Once
	closeErr  error
}

func (s *stream) Format() audio.Format { return s.format }

func (s *stream) Start() error {
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("malgo: start device: %w", err)
	}
	return nil
}

// Close stops and uninitialises the device, then frees the context. After
// Close returns the data callback no longer fires.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.dev.Uninit()
		if err := s.ctx.Uninit(); err != nil {
			s.closeErr = fmt.Errorf("malgo: uninit context: %w", err)
		}
		s.ctx.Free()
	})
	return s.closeErr
}
