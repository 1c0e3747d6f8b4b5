package sequencer

import (
	"fmt"

	"gridseq/theory"
)

// TrackID is the stable identity of a track. Same id means same cached
// grid and instruments; a new id is a brand new track.
type TrackID string

// TrackKind names a track variant.
type TrackKind string

const (
	KindSynth       TrackKind = "synth"
	KindAudioSource TrackKind = "audio-source"
)

// TrackSettings is a declared track. The only implementations are
// SynthTrackSettings and AudioSourceTrackSettings.
type TrackSettings interface {
	TrackID() TrackID
	Kind() TrackKind
	DisplayName() string
	// RowNotes returns the note of each grid row, top to bottom.
	RowNotes() []Note
	// GridColumns returns the step count (DefaultColumns when unset).
	GridColumns() int

	sealed()
}

// SynthTrackSettings declares a track with one synth voice per note.
type SynthTrackSettings struct {
	ID         TrackID
	Name       string
	Instrument Settings
	Notes      []Note
	Columns    int
}

func (s SynthTrackSettings) TrackID() TrackID { return s.ID }
func (s SynthTrackSettings) Kind() TrackKind  { return KindSynth }
func (s SynthTrackSettings) sealed()          {}

func (s SynthTrackSettings) DisplayName() string {
	return displayName(s.Name, s.ID)
}

func (s SynthTrackSettings) RowNotes() []Note {
	return append([]Note(nil), s.Notes...)
}

func (s SynthTrackSettings) GridColumns() int {
	return columnsOrDefault(s.Columns)
}

// validate checks that every note parses.
func (s SynthTrackSettings) validate() error {
	for _, n := range s.Notes {
		if _, err := theory.ParseNote(string(n)); err != nil {
			return err
		}
	}
	return nil
}

// AudioSourceTrackSettings declares a track playing samples, one row per
// source key in declaration order.
type AudioSourceTrackSettings struct {
	ID       TrackID
	Name     string
	Sources  []SampleSource
	Settings Settings
	Columns  int
}

func (s AudioSourceTrackSettings) TrackID() TrackID { return s.ID }
func (s AudioSourceTrackSettings) Kind() TrackKind  { return KindAudioSource }
func (s AudioSourceTrackSettings) sealed()          {}

func (s AudioSourceTrackSettings) DisplayName() string {
	return displayName(s.Name, s.ID)
}

func (s AudioSourceTrackSettings) RowNotes() []Note {
	notes := make([]Note, len(s.Sources))
	for i, src := range s.Sources {
		notes[i] = Note(src.Key)
	}
	return notes
}

func (s AudioSourceTrackSettings) GridColumns() int {
	return columnsOrDefault(s.Columns)
}

func (s AudioSourceTrackSettings) validate() error {
	seen := make(map[string]bool, len(s.Sources))
	for _, src := range s.Sources {
		if src.Key == "" {
			return fmt.Errorf("sample source %q has no key", src.URL)
		}
		if seen[src.Key] {
			return fmt.Errorf("duplicate sample key %q", src.Key)
		}
		seen[src.Key] = true
	}
	return nil
}

// SourceMap returns the sources as key -> URL.
func (s AudioSourceTrackSettings) SourceMap() map[string]string {
	m := make(map[string]string, len(s.Sources))
	for _, src := range s.Sources {
		m[src.Key] = src.URL
	}
	return m
}

func displayName(name string, id TrackID) string {
	if name != "" {
		return name
	}
	return string(id)
}

func columnsOrDefault(n int) int {
	if n <= 0 {
		return DefaultColumns
	}
	return n
}

// validateTrack runs the per-variant checks.
func validateTrack(ts TrackSettings) error {
	switch ts := ts.(type) {
	case SynthTrackSettings:
		return ts.validate()
	case AudioSourceTrackSettings:
		return ts.validate()
	default:
		return &UnknownTrackTypeError{Type: fmt.Sprintf("%T", ts)}
	}
}
