package midi

import (
	"fmt"
	"math"
	"sync"
	"time"

	"gridseq/debug"
	"gridseq/sequencer"
	"gridseq/theory"
)

// Synths builds voices that play on external gear through one port and
// channel.
type Synths struct {
	send    Send
	channel uint8

	now   func() time.Time
	after func(d time.Duration, f func()) *time.Timer
}

// SynthOption configures Synths.
type SynthOption func(*Synths)

// WithSynthClock replaces the wall clock and timer used to delay messages
// until their trigger time.
func WithSynthClock(now func() time.Time, after func(time.Duration, func()) *time.Timer) SynthOption {
	return func(s *Synths) {
		s.now = now
		s.after = after
	}
}

// NewSynths creates a voice factory sending on channel (1-16).
func NewSynths(send Send, channel int, opts ...SynthOption) (*Synths, error) {
	if channel < 1 || channel > 16 {
		return nil, fmt.Errorf("midi channel %d out of range 1-16", channel)
	}
	s := &Synths{
		send:    send,
		channel: uint8(channel - 1),
		now:     time.Now,
		after:   time.AfterFunc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewSynth creates a voice with the given settings.
func (s *Synths) NewSynth(st sequencer.Settings) (sequencer.Synth, error) {
	v := &Voice{
		synths:   s,
		velocity: defaultVelocity,
		pending:  make(map[*time.Timer]struct{}),
		sounding: make(map[uint8]int),
	}
	if err := v.Set(st); err != nil {
		return nil, err
	}
	return v, nil
}

// Voice sends note on at the trigger time and note off when the note ends.
// Several voices may share a channel; each only turns off its own notes.
type Voice struct {
	synths *Synths

	mu       sync.Mutex
	velocity uint8
	mute     bool
	disposed bool
	pending  map[*time.Timer]struct{}
	sounding map[uint8]int // note -> overlapping note ons
}

// TriggerAttackRelease plays note for d starting at at.
func (v *Voice) TriggerAttackRelease(note sequencer.Note, d time.Duration, at time.Time) {
	pitch, err := theory.ParseNote(string(note))
	if err != nil || pitch < 0 || pitch > 127 {
		debug.LogEvery(50, "midi", "voice: cannot send %q", note)
		return
	}
	n := uint8(pitch)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed || v.mute {
		return
	}
	vel := v.velocity
	delay := at.Sub(v.synths.now())
	v.schedule(max(delay, 0), func() {
		v.sounding[n]++
		v.emit(Event{Type: NoteOn, Note: n, Velocity: vel})
	})
	v.schedule(max(delay+d, 0), func() {
		if v.sounding[n] == 0 {
			return
		}
		if v.sounding[n]--; v.sounding[n] == 0 {
			delete(v.sounding, n)
		}
		v.emit(Event{Type: NoteOff, Note: n})
	})
}

// schedule runs f under v.mu after d. Callers hold v.mu.
func (v *Voice) schedule(d time.Duration, f func()) {
	var t *time.Timer
	t = v.synths.after(d, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.pending[t]; !ok {
			return
		}
		delete(v.pending, t)
		f()
	})
	v.pending[t] = struct{}{}
}

// emit sends one event on the voice's channel. Callers hold v.mu.
func (v *Voice) emit(e Event) {
	e.Channel = v.synths.channel
	if err := v.synths.send(e.Message()); err != nil {
		debug.LogEvery(50, "midi", "send: %v", err)
	}
}

// Set applies velocity, mute and volume. Volume is sent as controller 7
// scaled from dB; the oscillator has no meaning on external gear and is
// ignored.
func (v *Voice) Set(p sequencer.Settings) error {
	if p.Velocity != nil && (*p.Velocity == 0 || *p.Velocity > 127) {
		return fmt.Errorf("velocity %d out of range 1-127", *p.Velocity)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return nil
	}
	if p.Velocity != nil {
		v.velocity = *p.Velocity
	}
	if p.Volume != nil {
		v.emit(Event{Type: CC, Note: ccVolume, Velocity: volumeCC(*p.Volume)})
	}
	if p.Mute != nil && *p.Mute != v.mute {
		v.mute = *p.Mute
		if v.mute {
			v.silence()
		}
	}
	return nil
}

// volumeCC maps a gain in dB to a controller value, 0dB being full scale.
func volumeCC(db float64) uint8 {
	amp := math.Pow(10, db/20)
	return uint8(math.Round(min(max(amp, 0), 1) * 127))
}

// silence cancels every pending message and turns off every sounding
// note. Callers hold v.mu.
func (v *Voice) silence() {
	for t := range v.pending {
		t.Stop()
		delete(v.pending, t)
	}
	for n := range v.sounding {
		v.emit(Event{Type: NoteOff, Note: n})
		delete(v.sounding, n)
	}
}

// Dispose silences the voice. Later triggers are ignored.
func (v *Voice) Dispose() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return
	}
	v.silence()
	v.disposed = true
}

// Panic sends all-notes-off on the channel, for gear left hanging by a
// crashed run.
func (s *Synths) Panic() error {
	return s.send(Event{Type: CC, Channel: s.channel, Note: ccAllNotesOff}.Message())
}
