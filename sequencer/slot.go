package sequencer

import (
	"fmt"
	"slices"
)

// trackSlot is the cache entry for one live track: its grid and one
// instrument per grid row.
type trackSlot struct {
	id       TrackID
	kind     TrackKind
	declared TrackSettings
	override Settings // patches from UpdateInstrumentSettings

	grid        NoteGrid
	instruments []Instrument
	source      *sampleSource // audio-source tracks only
}

// slotDelta is what a sync changed: instruments that were dropped and must
// be disposed once the schedule no longer references them, and whether the
// grid changed shape.
type slotDelta struct {
	removed []Instrument
	created int
	layout  bool
}

// newSlot builds a fresh grid and instrument set for a track.
func newSlot(b Backends, ts TrackSettings) (*trackSlot, error) {
	if err := validateTrack(ts); err != nil {
		return nil, err
	}

	s := &trackSlot{
		id:       ts.TrackID(),
		kind:     ts.Kind(),
		declared: ts,
		grid:     MakeGrid(ts.RowNotes(), ts.GridColumns()),
	}

	switch ts := ts.(type) {
	case SynthTrackSettings:
		rows, err := newSynthRows(b.Synths, len(ts.Notes), ts.Instrument)
		if err != nil {
			return nil, fmt.Errorf("create synths: %w", err)
		}
		s.instruments = rows
	case AudioSourceTrackSettings:
		src, err := newSampleSource(b.Samples, ts.Sources, ts.Settings)
		if err != nil {
			return nil, fmt.Errorf("load samples: %w", err)
		}
		s.source = src
		s.instruments = newSampleRows(src, len(ts.Sources))
	default:
		return nil, &UnknownTrackTypeError{Type: fmt.Sprintf("%T", ts)}
	}
	return s, nil
}

// slotBase is what a sync reads from a slot, copied under the tracks lock
// so instruments and banks can be built without it.
type slotBase struct {
	rows     []Instrument
	override Settings
}

func (s *trackSlot) base() slotBase {
	return slotBase{rows: slices.Clone(s.instruments), override: s.override.Clone()}
}

// pendingSync is a prepared but not yet committed sync.
type pendingSync struct {
	ts      TrackSettings
	rows    []Instrument
	removed []Instrument
	created int
}

// discard disposes the instruments prepare created.
func (p pendingSync) discard() {
	disposeAll(p.rows[len(p.rows)-p.created:])
}

// prepare builds what a new declaration of the same kind needs: extra
// instruments, settings and a reloaded sample bank. It does not touch the
// slot's cached fields; commit does. On error the instruments it created
// are already disposed again.
func (s *trackSlot) prepare(b Backends, ts TrackSettings, base slotBase) (pendingSync, error) {
	if err := validateTrack(ts); err != nil {
		return pendingSync{}, err
	}

	notes := ts.RowNotes()
	p := pendingSync{ts: ts, rows: base.rows}
	switch {
	case len(notes) > len(p.rows):
		added, err := s.grow(b, ts, len(notes)-len(p.rows), base.override)
		if err != nil {
			return pendingSync{}, err
		}
		p.rows = append(p.rows[:len(p.rows):len(p.rows)], added...)
		p.created = len(added)
	case len(notes) < len(p.rows):
		p.removed = p.rows[len(notes):]
		p.rows = p.rows[:len(notes):len(notes)]
	}

	if err := s.applyDeclared(ts, p.rows, base.override); err != nil {
		p.discard()
		return pendingSync{}, err
	}
	return p, nil
}

// commit installs a prepared sync. It must be called with the tracks lock
// held; the returned delta lists the instruments to dispose once the
// schedule no longer references them.
func (s *trackSlot) commit(p pendingSync) slotDelta {
	notes := p.ts.RowNotes()
	columns := p.ts.GridColumns()
	d := slotDelta{
		removed: p.removed,
		created: p.created,
		layout:  len(notes) != s.grid.Rows() || columns != s.grid.Columns(),
	}
	s.declared = p.ts
	s.instruments = p.rows
	s.grid = s.grid.Resize(notes, columns)
	return d
}

// grow creates n more instruments with the track's current settings.
func (s *trackSlot) grow(b Backends, ts TrackSettings, n int, override Settings) ([]Instrument, error) {
	switch ts := ts.(type) {
	case SynthTrackSettings:
		rows, err := newSynthRows(b.Synths, n, ts.Instrument.Merge(override))
		if err != nil {
			return nil, fmt.Errorf("create synths: %w", err)
		}
		return rows, nil
	case AudioSourceTrackSettings:
		return newSampleRows(s.source, n), nil
	default:
		return nil, &UnknownTrackTypeError{Type: fmt.Sprintf("%T", ts)}
	}
}

// applyDeclared pushes the declared settings plus live overrides to the
// instruments. Instruments ignore settings equal to what they already have.
func (s *trackSlot) applyDeclared(ts TrackSettings, rows []Instrument, override Settings) error {
	switch ts := ts.(type) {
	case SynthTrackSettings:
		eff := ts.Instrument.Merge(override)
		for _, inst := range rows {
			if err := inst.UpdateSettings(eff); err != nil {
				return fmt.Errorf("apply settings: %w", err)
			}
		}
		return nil
	case AudioSourceTrackSettings:
		sources := mergeSources(ts.Sources, override.Sources)
		if err := s.source.reconcile(sources, ts.Settings.Merge(override)); err != nil {
			return fmt.Errorf("reload samples: %w", err)
		}
		return nil
	default:
		return &UnknownTrackTypeError{Type: fmt.Sprintf("%T", ts)}
	}
}

// checkPatch rejects source replacements for keys the track has no row for.
func (s *trackSlot) checkPatch(patch Settings) error {
	if len(patch.Sources) == 0 {
		return nil
	}
	keys := make(map[string]bool)
	if ts, ok := s.declared.(AudioSourceTrackSettings); ok {
		for _, src := range ts.Sources {
			keys[src.Key] = true
		}
	}
	for key := range patch.Sources {
		if !keys[key] {
			return fmt.Errorf("no sample row %q: %w", key, ErrGridShape)
		}
	}
	return nil
}

// effective returns the settings currently in force for the track.
func (s *trackSlot) effective() Settings {
	switch ts := s.declared.(type) {
	case SynthTrackSettings:
		return ts.Instrument.Merge(s.override)
	case AudioSourceTrackSettings:
		eff := ts.Settings.Merge(s.override)
		eff.Sources = AudioSourceTrackSettings{Sources: mergeSources(ts.Sources, s.override.Sources)}.SourceMap()
		return eff
	default:
		return s.override.Clone()
	}
}

// dispose releases every instrument and the shared sample bank.
func (s *trackSlot) dispose() {
	disposeAll(s.instruments)
	if s.source != nil {
		s.source.dispose()
	}
	s.instruments = nil
}

func (s *trackSlot) view() TrackView {
	return TrackView{
		ID:       s.id,
		Name:     s.declared.DisplayName(),
		Kind:     s.kind,
		Settings: s.declared,
		Grid:     s.grid.Clone(),
	}
}
