package sequencer

import (
	"slices"
	"sync"
	"time"

	"gridseq/debug"
)

// sampleSource is the single owner of a sample track's player bank. The
// bank is only ever replaced in swap, so there is one place that disposes
// a generation.
type sampleSource struct {
	engine SampleEngine

	update sync.Mutex // serializes reconcile/patch; held while a bank loads

	mu       sync.RWMutex // guards bank for triggers
	bank     PlayerBank
	sources  []SampleSource
	settings Settings // effective settings without sources
	gen      int
	disposed bool
}

func newSampleSource(engine SampleEngine, sources []SampleSource, s Settings) (*sampleSource, error) {
	sources = slices.Clone(sources)
	bank, err := engine.LoadBank(sources, s.WithoutSources())
	if err != nil {
		return nil, err
	}
	return &sampleSource{
		engine:   engine,
		bank:     bank,
		sources:  sources,
		settings: s.WithoutSources(),
		gen:      1,
	}, nil
}

func (s *sampleSource) trigger(key Note, d time.Duration, at time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disposed {
		debug.Warn("seq", "trigger %s on disposed sample bank", key)
		return
	}
	p := s.bank.Player(string(key))
	if p == nil {
		debug.LogEvery(50, "seq", "no player for sample %q", key)
		return
	}
	p.Start(at).Stop(at.Add(d))
}

// reconcile replaces the whole source list (declared sources with any live
// overrides applied) and settings.
func (s *sampleSource) reconcile(sources []SampleSource, settings Settings) error {
	s.update.Lock()
	defer s.update.Unlock()
	return s.apply(slices.Clone(sources), settings.WithoutSources())
}

// patch merges a settings patch. Sources in the patch replace URLs by key.
func (s *sampleSource) patch(p Settings) error {
	s.update.Lock()
	defer s.update.Unlock()

	s.mu.RLock()
	sources := mergeSources(s.sources, p.Sources)
	settings := s.settings.Merge(p.WithoutSources())
	s.mu.RUnlock()

	return s.apply(sources, settings)
}

// apply must be called with s.update held.
func (s *sampleSource) apply(sources []SampleSource, settings Settings) error {
	s.mu.RLock()
	disposed := s.disposed
	sameSources := slices.Equal(sources, s.sources)
	sameSettings := settings.Equal(s.settings)
	s.mu.RUnlock()

	if disposed || (sameSources && sameSettings) {
		return nil
	}

	if sameSources {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.bank.Set(settings); err != nil {
			return err
		}
		s.settings = settings
		return nil
	}

	// Players cannot be pointed at new files, so build a new generation
	// and swap it in. Loading happens outside s.mu so triggers keep going.
	bank, err := s.engine.LoadBank(sources, settings)
	if err != nil {
		return err
	}
	s.swap(bank, sources, settings)
	return nil
}

func (s *sampleSource) swap(bank PlayerBank, sources []SampleSource, settings Settings) {
	s.mu.Lock()
	old := s.bank
	s.bank = bank
	s.sources = sources
	s.settings = settings
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	// no trigger can hold old past this point
	old.Dispose()
	debug.Log("seq", "sample bank swapped, generation %d, %d sources", gen, len(sources))
}

func (s *sampleSource) dispose() {
	s.update.Lock()
	defer s.update.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.bank.Dispose()
}

func (s *sampleSource) info() InstrumentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings := s.settings.Clone()
	settings.Sources = make(map[string]string, len(s.sources))
	for _, src := range s.sources {
		settings.Sources[src.Key] = src.URL
	}
	return InstrumentInfo{Kind: KindAudioSource, Settings: settings, Disposed: s.disposed}
}

// mergeSources applies key -> URL replacements to an ordered source list.
// Keys the list does not have are ignored: every source is a grid row.
func mergeSources(sources []SampleSource, patch map[string]string) []SampleSource {
	out := slices.Clone(sources)
	for i, src := range out {
		if url, ok := patch[src.Key]; ok {
			out[i].URL = url
		}
	}
	return out
}

// sampleRow is one grid row of a sample track, a view onto the track's
// shared source. The track slot owns the source; disposing a row only
// detaches it.
type sampleRow struct {
	src *sampleSource

	mu       sync.Mutex
	disposed bool
}

func (r *sampleRow) Trigger(note Note, d time.Duration, at time.Time) {
	r.mu.Lock()
	disposed := r.disposed
	r.mu.Unlock()
	if disposed {
		debug.Warn("seq", "trigger %s on disposed sample row", note)
		return
	}
	r.src.trigger(note, d, at)
}

func (r *sampleRow) UpdateSettings(patch Settings) error {
	r.mu.Lock()
	disposed := r.disposed
	r.mu.Unlock()
	if disposed {
		return nil
	}
	return r.src.patch(patch)
}

func (r *sampleRow) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed = true
}

func (r *sampleRow) Identify() InstrumentInfo {
	info := r.src.info()
	r.mu.Lock()
	info.Disposed = info.Disposed || r.disposed
	r.mu.Unlock()
	return info
}

func newSampleRows(src *sampleSource, n int) []Instrument {
	rows := make([]Instrument, n)
	for i := range rows {
		rows[i] = &sampleRow{src: src}
	}
	return rows
}
