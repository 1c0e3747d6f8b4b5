// Package audio renders synth voices and sample players with beep. An Engine
// is one output stream; hand it to speaker.Play.
package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"gridseq/debug"
)

// DefaultSampleRate is used when none is configured.
const DefaultSampleRate = beep.SampleRate(44100)

// Engine mixes every sounding voice into one stream. Voices are scheduled
// by prefixing them with silence up to their start time, so a trigger can
// arrive ahead of time and still start on time.
type Engine struct {
	sr  beep.SampleRate
	now func() time.Time

	mu    sync.Mutex
	mixer beep.Mixer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used to turn trigger times into delays.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine rendering at sr.
func NewEngine(sr beep.SampleRate, opts ...Option) *Engine {
	if sr <= 0 {
		sr = DefaultSampleRate
	}
	e := &Engine{sr: sr, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SampleRate returns the output rate.
func (e *Engine) SampleRate() beep.SampleRate {
	return e.sr
}

// Stream implements beep.Streamer. It never drains.
func (e *Engine) Stream(samples [][2]float64) (n int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range samples {
		samples[i] = [2]float64{}
	}
	e.mixer.Stream(samples)
	return len(samples), true
}

// Err implements beep.Streamer.
func (e *Engine) Err() error {
	return nil
}

// Voices returns the number of voices still sounding or waiting to start.
func (e *Engine) Voices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mixer.Len()
}

// Clear drops every voice.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mixer.Clear()
}

// playAt adds s to the mix so that it starts at the given time.
func (e *Engine) playAt(at time.Time, s beep.Streamer) {
	delay := at.Sub(e.now())
	if delay < 0 {
		debug.LogEvery(100, "audio", "late trigger by %v", -delay)
		delay = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.mixer.Add(beep.Seq(beep.Silence(e.sr.N(delay)), s))
}

// volume wraps s with a gain in dB. beep's Volume works in powers of Base,
// so dB are converted to doublings of amplitude.
func volume(s beep.Streamer, db float64, mute bool) beep.Streamer {
	return &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   db / 6.0206,
		Silent:   mute,
	}
}
