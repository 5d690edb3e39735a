// Package playback implements [audio.Player] for MP3 files on the default
// output device, using github.com/hajimehoshi/go-mp3 for decoding and
// github.com/ebitengine/oto/v3 for output.
//
// oto allows exactly one context per process, so the device is opened lazily
// on the first Play and shared by every later call. Files whose sample rate
// differs from the device rate are resampled before playback.
package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/chaqchase/sharad/pkg/audio"
)

const (
	defaultSampleRate = 44100
	pollInterval      = 10 * time.Millisecond
)

// Compile-time assertion that Player implements audio.Player.
var _ audio.Player = (*Player)(nil)

// stream is the subset of *oto.Player used by Play.
type stream interface {
	Play()
	Pause()
	IsPlaying() bool
	Err() error
}

// output creates streams on an opened device.
type output interface {
	NewStream(r io.Reader) stream
}

// Option is a functional option for configuring a Player.
type Option func(*Player)

// WithSampleRate sets the device sample rate. Defaults to 44100 Hz.
func WithSampleRate(rate int) Option {
	return func(p *Player) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// Player decodes and plays MP3 files. It is safe for concurrent use.
type Player struct {
	sampleRate int

	once    sync.Once
	out     output
	openErr error
	open    func(sampleRate int) (output, error)
}

// New returns a Player. The output device is not opened until the first call
// to Play.
func New(opts ...Option) *Player {
	p := &Player{
		sampleRate: defaultSampleRate,
		open:       openOto,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Play decodes the MP3 at path and plays it to completion. Cancelling ctx
// pauses the stream and returns ctx.Err().
func (p *Player) Play(ctx context.Context, path string) error {
	pcm, err := decodeFile(path, p.sampleRate)
	if err != nil {
		return err
	}
	return p.playPCM(ctx, path, pcm)
}

// playPCM plays decoded stereo PCM at the device rate.
func (p *Player) playPCM(ctx context.Context, path string, pcm []byte) error {
	p.once.Do(func() {
		p.out, p.openErr = p.open(p.sampleRate)
	})
	if p.openErr != nil {
		return p.openErr
	}

	s := p.out.NewStream(bytes.NewReader(pcm))
	s.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for s.IsPlaying() {
		select {
		case <-ctx.Done():
			s.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("playback: play %q: %w", path, err)
	}
	return nil
}

// decodeFile reads the MP3 at path into signed 16-bit little-endian stereo
// PCM at sampleRate.
func decodeFile(path string, sampleRate int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("playback: open %q: %w", path, err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("playback: decode %q: %w", path, err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("playback: decode %q: %w", path, err)
	}
	return audio.ResampleStereo16(pcm, dec.SampleRate(), sampleRate), nil
}

type otoOutput struct {
	ctx *oto.Context
}

func (o otoOutput) NewStream(r io.Reader) stream { return o.ctx.NewPlayer(r) }

// openOto creates the process-wide oto context and waits until the device is
// ready.
func openOto(sampleRate int) (output, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("playback: open output device: %w", err)
	}
	<-ready
	return otoOutput{ctx: ctx}, nil
}
