package audio

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/generators"

	"gridseq/debug"
	"gridseq/sequencer"
	"gridseq/theory"
)

// DefaultOscillator is the waveform of a synth with none configured.
const DefaultOscillator = "sine"

// tone builds an endless oscillator at freq.
type tone func(sr beep.SampleRate, freq float64) (beep.Streamer, error)

var oscillators = map[string]tone{
	"sine":     generators.SineTone,
	"square":   generators.SquareTone,
	"triangle": generators.TriangleTone,
	"sawtooth": generators.SawtoothTone,
	"piano":    pianoTone,
}

// Oscillators lists the waveform names a synth accepts.
func Oscillators() []string {
	names := make([]string, 0, len(oscillators))
	for n := range oscillators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// pianoTone is a soft additive tone: the fundamental plus two quieter
// harmonics.
func pianoTone(sr beep.SampleRate, freq float64) (beep.Streamer, error) {
	if freq <= 0 || freq >= float64(sr)/2 {
		return nil, fmt.Errorf("frequency %v out of range for %v Hz", freq, sr)
	}
	step := freq * 2 * math.Pi / float64(sr)
	phase := 0.0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := (math.Sin(phase) + math.Sin(phase*2)*0.5 + math.Sin(phase*3)*0.2) * 0.6
			samples[i] = [2]float64{v, v}
			phase += step
			if phase >= 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}
		return len(samples), true
	}), nil
}

// Synth is a monophonic-per-trigger oscillator voice source. Each trigger
// adds an independent voice to the engine's mix.
type Synth struct {
	e *Engine

	mu     sync.Mutex
	osc    string
	volume float64
	mute   bool

	disposed atomic.Bool
}

// NewSynth creates a synth with the given settings.
func (e *Engine) NewSynth(s sequencer.Settings) (sequencer.Synth, error) {
	syn := &Synth{e: e, osc: DefaultOscillator}
	if err := syn.Set(s); err != nil {
		return nil, err
	}
	return syn, nil
}

// TriggerAttackRelease plays note for d starting at at.
func (s *Synth) TriggerAttackRelease(note sequencer.Note, d time.Duration, at time.Time) {
	if s.disposed.Load() {
		return
	}
	pitch, err := theory.ParseNote(string(note))
	if err != nil {
		debug.LogEvery(50, "audio", "synth: %v", err)
		return
	}

	s.mu.Lock()
	osc, vol, mute := s.osc, s.volume, s.mute
	s.mu.Unlock()
	if mute {
		return
	}

	src, err := oscillators[osc](s.e.sr, theory.Frequency(pitch))
	if err != nil {
		debug.LogEvery(50, "audio", "synth %s: %v", note, err)
		return
	}
	env := newEnvelope(src, s.e.sr.N(d), s.e.sr.N(5*time.Millisecond), &s.disposed)
	s.e.playAt(at, volume(env, vol, false))
}

// Set applies a settings patch. An unknown oscillator is an error and
// leaves the synth unchanged.
func (s *Synth) Set(p sequencer.Settings) error {
	if p.Oscillator != nil {
		if _, ok := oscillators[*p.Oscillator]; !ok {
			return fmt.Errorf("unknown oscillator %q", *p.Oscillator)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Oscillator != nil {
		s.osc = *p.Oscillator
	}
	if p.Volume != nil {
		s.volume = *p.Volume
	}
	if p.Mute != nil {
		s.mute = *p.Mute
	}
	return nil
}

// Dispose silences every voice of this synth, including ones not yet
// started.
func (s *Synth) Dispose() {
	s.disposed.Store(true)
}

// envelope gates src to length samples with a linear attack and release
// so notes start and end without clicks. It ends early once stop is set.
type envelope struct {
	src    beep.Streamer
	pos    int
	length int
	ramp   int
	stop   *atomic.Bool
}

func newEnvelope(src beep.Streamer, length, ramp int, stop *atomic.Bool) *envelope {
	if ramp*2 > length {
		ramp = length / 2
	}
	return &envelope{src: src, length: length, ramp: ramp, stop: stop}
}

func (e *envelope) Stream(samples [][2]float64) (n int, ok bool) {
	if e.pos >= e.length || (e.stop != nil && e.stop.Load()) {
		return 0, false
	}
	want := min(len(samples), e.length-e.pos)
	n, ok = e.src.Stream(samples[:want])
	for i := 0; i < n; i++ {
		g := e.gain(e.pos + i)
		samples[i][0] *= g
		samples[i][1] *= g
	}
	e.pos += n
	return n, n > 0
}

func (e *envelope) gain(p int) float64 {
	if e.ramp == 0 {
		return 1
	}
	if p < e.ramp {
		return float64(p) / float64(e.ramp)
	}
	if tail := e.length - p; tail < e.ramp {
		return float64(tail) / float64(e.ramp)
	}
	return 1
}

func (e *envelope) Err() error {
	return e.src.Err()
}
