// Package script defines the dialogue script model that flows through the
// narration pipeline: an ordered list of dialogue lines plus the roster of
// speakers that voice them.
//
// A Script is created per narration event. Voice assignment fills in
// [Speaker.Voice], synthesis fills in [DialogueLine.Audio], and playback reads
// both. The position of a line in [Script.Dialogue] is its playback order.
package script

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chaqchase/sharad/pkg/provider/tts"
)

// Speaker is a participant in a dialogue.
type Speaker struct {
	// Index identifies the speaker within its script. Unique per script.
	Index int `yaml:"index"`

	// Name is the display name of the speaker.
	Name string `yaml:"name"`

	// Voice is the synthesis voice. Empty until assigned; once set it is never
	// changed for the lifetime of the script.
	Voice tts.Voice `yaml:"voice,omitempty"`
}

// DialogueLine is a single spoken line.
type DialogueLine struct {
	// SpeakerIndex references [Speaker.Index].
	SpeakerIndex int `yaml:"speaker"`

	// Text is the line to synthesize.
	Text string `yaml:"text"`

	// Audio is the path of the rendered audio file. Empty until synthesis of
	// this line succeeded.
	Audio string `yaml:"audio,omitempty"`
}

// HasAudio reports whether the line has a rendered audio file.
func (l DialogueLine) HasAudio() bool { return l.Audio != "" }

// Script is the ordered dialogue plus speaker roster for one narration event.
type Script struct {
	Dialogue []DialogueLine `yaml:"dialogue"`
	Speakers []Speaker      `yaml:"speakers"`
}

// Speaker returns a pointer to the speaker with the given index so callers
// can assign its voice in place.
func (s *Script) Speaker(index int) (*Speaker, bool) {
	for i := range s.Speakers {
		if s.Speakers[i].Index == index {
			return &s.Speakers[i], true
		}
	}
	return nil, false
}

// VoiceFor returns the voice assigned to the speaker of line i.
// ok is false if the speaker does not exist or has no voice yet.
func (s *Script) VoiceFor(i int) (tts.Voice, bool) {
	if i < 0 || i >= len(s.Dialogue) {
		return "", false
	}
	sp, found := s.Speaker(s.Dialogue[i].SpeakerIndex)
	if !found || sp.Voice == "" {
		return "", false
	}
	return sp.Voice, true
}

// Clone returns a deep copy of s. The narration pipeline annotates its own
// copy so the caller's script is never mutated mid-flight.
func (s *Script) Clone() *Script {
	if s == nil {
		return nil
	}
	return &Script{
		Dialogue: append([]DialogueLine(nil), s.Dialogue...),
		Speakers: append([]Speaker(nil), s.Speakers...),
	}
}

// Validate checks the script invariants:
//   - every speaker index is unique;
//   - every dialogue line references an existing speaker;
//   - an already assigned voice is one of [tts.Voices].
func (s *Script) Validate() error {
	var errs []error

	seen := make(map[int]bool, len(s.Speakers))
	for i, sp := range s.Speakers {
		if seen[sp.Index] {
			errs = append(errs, fmt.Errorf("speakers[%d]: duplicate index %d", i, sp.Index))
		}
		seen[sp.Index] = true
		if sp.Voice != "" && !sp.Voice.IsValid() {
			errs = append(errs, fmt.Errorf("speakers[%d]: unknown voice %q", i, sp.Voice))
		}
	}

	for i, line := range s.Dialogue {
		if !seen[line.SpeakerIndex] {
			errs = append(errs, fmt.Errorf("dialogue[%d]: speaker %d does not exist", i, line.SpeakerIndex))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Load reads and validates a script YAML file from disk.
//
// Example:
//
//	speakers:
//	  - index: 0
//	    name: Innkeeper
//	  - index: 1
//	    name: Stranger
//	    voice: onyx
//	dialogue:
//	  - speaker: 0
//	    text: "Welcome, traveller."
//	  - speaker: 1
//	    text: "A room for the night."
func Load(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("script: open %q: %w", path, err)
	}
	defer f.Close()

	s, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("script: parse %q: %w", path, err)
	}
	return s, nil
}

// LoadFromReader parses and validates script YAML from r. Unknown fields are
// rejected.
func LoadFromReader(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("script: empty document")
		}
		return nil, fmt.Errorf("script: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("script: invalid: %w", err)
	}
	return &s, nil
}
