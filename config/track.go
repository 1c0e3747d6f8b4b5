package config

import (
	"errors"
	"fmt"

	"github.com/mitchellh/go-homedir"

	"gridseq/sequencer"
	"gridseq/theory"
)

// Track types as written in the config file
const (
	TrackSynth       = string(sequencer.KindSynth)
	TrackAudioSource = string(sequencer.KindAudioSource)
)

// TrackConfig declares one track.
type TrackConfig struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name,omitempty"`
	Type    string         `yaml:"type"`
	Columns int            `yaml:"columns,omitempty"`
	Notes   []string       `yaml:"notes,omitempty"`
	Scale   *ScaleConfig   `yaml:"scale,omitempty"`
	Sources []SourceConfig `yaml:"sources,omitempty"`

	Settings SettingsConfig `yaml:"settings,omitempty"`
}

// ScaleConfig fills a synth track's rows with a named scale.
type ScaleConfig struct {
	Root string `yaml:"root"`
	Name string `yaml:"name"`
}

// SourceConfig maps a sample key to an audio file.
type SourceConfig struct {
	Key string `yaml:"key"`
	URL string `yaml:"url"`
}

// SettingsConfig is the instrument settings block of a track.
type SettingsConfig struct {
	Volume     *float64 `yaml:"volume,omitempty"`
	Mute       bool     `yaml:"mute,omitempty"`
	Oscillator string   `yaml:"oscillator,omitempty"`
	Velocity   uint8    `yaml:"velocity,omitempty"`
}

func (s SettingsConfig) settings() sequencer.Settings {
	var out sequencer.Settings
	if s.Volume != nil {
		out.Volume = sequencer.Ptr(*s.Volume)
	}
	if s.Mute {
		out.Mute = sequencer.Ptr(true)
	}
	if s.Oscillator != "" {
		out.Oscillator = sequencer.Ptr(s.Oscillator)
	}
	if s.Velocity != 0 {
		out.Velocity = sequencer.Ptr(s.Velocity)
	}
	return out
}

// Declare turns the config entry into a track declaration. Synth rows are
// ordered from highest to lowest pitch; sample rows keep the order of
// their sources.
func (t TrackConfig) Declare() (sequencer.TrackSettings, error) {
	if t.ID == "" {
		return nil, errors.New("track without an id")
	}
	switch t.Type {
	case TrackSynth:
		notes, err := t.synthNotes()
		if err != nil {
			return nil, err
		}
		return sequencer.SynthTrackSettings{
			ID:         sequencer.TrackID(t.ID),
			Name:       t.Name,
			Instrument: t.Settings.settings(),
			Notes:      notes,
			Columns:    t.Columns,
		}, nil

	case TrackAudioSource:
		sources := make([]sequencer.SampleSource, 0, len(t.Sources))
		for _, s := range t.Sources {
			url, err := homedir.Expand(s.URL)
			if err != nil {
				return nil, fmt.Errorf("sample %s: %w", s.Key, err)
			}
			sources = append(sources, sequencer.SampleSource{Key: s.Key, URL: url})
		}
		return sequencer.AudioSourceTrackSettings{
			ID:       sequencer.TrackID(t.ID),
			Name:     t.Name,
			Sources:  sources,
			Settings: t.Settings.settings(),
			Columns:  t.Columns,
		}, nil

	default:
		return nil, &sequencer.UnknownTrackTypeError{Type: t.Type}
	}
}

func (t TrackConfig) synthNotes() ([]sequencer.Note, error) {
	names := t.Notes
	if t.Scale != nil {
		if len(names) > 0 {
			return nil, errors.New("both notes and scale given")
		}
		var err error
		if names, err = theory.NamedScale(t.Scale.Root, t.Scale.Name); err != nil {
			return nil, err
		}
	}
	sorted, err := theory.SortNotes(names)
	if err != nil {
		return nil, err
	}
	notes := make([]sequencer.Note, len(sorted))
	for i, n := range sorted {
		notes[i] = sequencer.Note(n)
	}
	return notes, nil
}

// Declare parses every track. Tracks that fail are left out and their
// errors joined, one *sequencer.TrackError each; the rest are returned so
// they can still play. A track without an id is named by its position.
func (c *Config) Declare() ([]sequencer.TrackSettings, error) {
	var (
		out  []sequencer.TrackSettings
		errs []error
	)
	for i, t := range c.Tracks {
		ts, err := t.Declare()
		if err != nil {
			id := sequencer.TrackID(t.ID)
			if id == "" {
				id = sequencer.TrackID(fmt.Sprintf("#%d", i+1))
			}
			errs = append(errs, &sequencer.TrackError{ID: id, Err: err})
			continue
		}
		out = append(out, ts)
	}
	return out, errors.Join(errs...)
}
