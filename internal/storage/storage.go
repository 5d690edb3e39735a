// Package storage resolves where narration audio and microphone recordings
// are written for a game session.
//
// A session writes into one of two places, chosen once when the session is
// created:
//
//   - [KindGame]: a "logs" directory beside the active save file, so the
//     audio travels with the save.
//   - [KindTemp]: a "temp_logs" directory under the application data
//     directory, used when no save is active.
//
// File names carry a timestamp prefix so directory listings sort
// chronologically:
//
//	<2006-01-02_15-04-05>_<uuid>.mp3            synthesized narration line
//	<2006-01-02_15-04-05.000>_recording.wav     captured microphone input
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	gameDirName = "logs"
	tempDirName = "temp_logs"
	appDirName  = "sharad"

	narrationLayout = "2006-01-02_15-04-05"
	recordingLayout = "2006-01-02_15-04-05.000"

	// RecordingSuffix ends every captured input file name.
	RecordingSuffix = "_recording.wav"
)

// Kind distinguishes persistent from session-scoped destinations.
type Kind int

const (
	// KindGame is the logs directory beside a save file.
	KindGame Kind = iota

	// KindTemp is the temp_logs directory under the data directory.
	KindTemp
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindGame:
		return "game"
	case KindTemp:
		return "temp"
	default:
		return "unknown"
	}
}

// Destination is an immutable, already created output directory.
type Destination struct {
	kind Kind
	dir  string
}

// Resolve picks the destination for a session and creates the directory.
// A non-empty savePath selects [KindGame] (the "logs" directory next to the
// save file); otherwise [KindTemp] under dataDir is used.
func Resolve(savePath, dataDir string) (Destination, error) {
	var d Destination
	if savePath != "" {
		d = Destination{kind: KindGame, dir: filepath.Join(filepath.Dir(savePath), gameDirName)}
	} else {
		if dataDir == "" {
			return Destination{}, errors.New("storage: data directory must not be empty")
		}
		d = Destination{kind: KindTemp, dir: TempDir(dataDir)}
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return Destination{}, fmt.Errorf("storage: create %s dir %q: %w", d.kind, d.dir, err)
	}
	return d, nil
}

// TempDir returns the temp_logs directory under dataDir.
func TempDir(dataDir string) string { return filepath.Join(dataDir, tempDirName) }

// Kind returns the destination kind.
func (d Destination) Kind() Kind { return d.kind }

// Dir returns the absolute or relative directory path as resolved.
func (d Destination) Dir() string { return d.dir }

// IsZero reports whether d was never resolved.
func (d Destination) IsZero() bool { return d.dir == "" }

// NarrationPath returns a fresh, collision-free path for a synthesized line.
func (d Destination) NarrationPath(now time.Time) string {
	return filepath.Join(d.dir, fmt.Sprintf("%s_%s.mp3", now.Format(narrationLayout), uuid.NewString()))
}

// RecordingPath returns the path for a microphone recording started at now.
func (d Destination) RecordingPath(now time.Time) string {
	return filepath.Join(d.dir, now.Format(recordingLayout)+RecordingSuffix)
}

// DefaultDataDir returns the per-user application data directory, e.g.
// ~/.config/sharad on Linux.
func DefaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("storage: locate user config dir: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// SweepRecordings removes leftover recordings in dir whose modification time
// is older than minAge. Files still being written by a running capture are
// younger than any sensible minAge and are left alone. Returns the number of
// files removed; per-file errors are logged and skipped.
func SweepRecordings(dir string, minAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: read dir %q: %w", dir, err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), RecordingSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < minAge {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("storage: failed to remove stale recording", "path", path, "err", err)
			continue
		}
		removed++
	}
	return removed, nil
}
