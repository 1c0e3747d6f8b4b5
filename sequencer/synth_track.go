package sequencer

import (
	"sync"
	"time"

	"gridseq/debug"
)

// synthInstrument drives one synth voice for one grid row.
type synthInstrument struct {
	synth Synth

	mu       sync.Mutex
	settings Settings // effective settings last applied
	disposed bool
}

func newSynthInstrument(engine SynthEngine, s Settings) (*synthInstrument, error) {
	synth, err := engine.NewSynth(s)
	if err != nil {
		return nil, err
	}
	return &synthInstrument{synth: synth, settings: s.Clone()}, nil
}

func (i *synthInstrument) Trigger(note Note, d time.Duration, at time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.disposed {
		debug.Warn("seq", "trigger %s on disposed synth", note)
		return
	}
	i.synth.TriggerAttackRelease(note, d, at)
}

func (i *synthInstrument) UpdateSettings(patch Settings) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.disposed {
		return nil
	}

	merged := i.settings.Merge(patch.WithoutSources())
	if merged.Equal(i.settings) {
		return nil
	}
	if err := i.synth.Set(patch.WithoutSources()); err != nil {
		return err
	}
	i.settings = merged
	return nil
}

func (i *synthInstrument) Dispose() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.disposed {
		return
	}
	i.disposed = true
	i.synth.Dispose()
}

func (i *synthInstrument) Identify() InstrumentInfo {
	i.mu.Lock()
	defer i.mu.Unlock()
	return InstrumentInfo{Kind: KindSynth, Settings: i.settings.Clone(), Disposed: i.disposed}
}

// newSynthRows creates n synth instruments. On failure the ones already
// created are disposed.
func newSynthRows(engine SynthEngine, n int, s Settings) ([]Instrument, error) {
	rows := make([]Instrument, 0, n)
	for k := 0; k < n; k++ {
		inst, err := newSynthInstrument(engine, s)
		if err != nil {
			disposeAll(rows)
			return nil, err
		}
		rows = append(rows, inst)
	}
	return rows, nil
}

func disposeAll(insts []Instrument) {
	for _, inst := range insts {
		inst.Dispose()
	}
}
