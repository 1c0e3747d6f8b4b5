package sequencer

import (
	"maps"
	"time"
)

// Instrument is the live sound source behind one grid row. The track layer
// owns its lifecycle; the scheduler only triggers it.
type Instrument interface {
	// Trigger plays note for d starting at the (future) time at.
	Trigger(note Note, d time.Duration, at time.Time)
	// UpdateSettings applies a partial settings patch. Applying settings
	// equal to the current ones does nothing audible.
	UpdateSettings(patch Settings) error
	// Dispose releases the underlying resources. Only the first call does
	// anything.
	Dispose()
	// Identify returns a read-only view of the live settings.
	Identify() InstrumentInfo
}

// InstrumentInfo describes an instrument's current state for settings UIs.
type InstrumentInfo struct {
	Kind     TrackKind
	Settings Settings
	Disposed bool
}

// Settings is a partial configuration. Nil fields mean "leave unchanged"
// when used as a patch.
type Settings struct {
	Volume     *float64          `json:"volume,omitempty" yaml:"volume,omitempty"` // dB
	Mute       *bool             `json:"mute,omitempty" yaml:"mute,omitempty"`
	Oscillator *string           `json:"oscillator,omitempty" yaml:"oscillator,omitempty"`
	Velocity   *uint8            `json:"velocity,omitempty" yaml:"velocity,omitempty"`
	Sources    map[string]string `json:"sources,omitempty" yaml:"sources,omitempty"` // sample key -> URL
}

// Ptr returns a pointer to v, for building Settings literals.
func Ptr[T any](v T) *T {
	return &v
}

// Merge returns s with every field set in patch applied on top. Sources are
// merged key by key.
func (s Settings) Merge(patch Settings) Settings {
	out := s.Clone()
	if patch.Volume != nil {
		out.Volume = Ptr(*patch.Volume)
	}
	if patch.Mute != nil {
		out.Mute = Ptr(*patch.Mute)
	}
	if patch.Oscillator != nil {
		out.Oscillator = Ptr(*patch.Oscillator)
	}
	if patch.Velocity != nil {
		out.Velocity = Ptr(*patch.Velocity)
	}
	if len(patch.Sources) > 0 {
		if out.Sources == nil {
			out.Sources = make(map[string]string, len(patch.Sources))
		}
		maps.Copy(out.Sources, patch.Sources)
	}
	return out
}

// Clone returns a copy that shares nothing with s.
func (s Settings) Clone() Settings {
	out := Settings{Sources: maps.Clone(s.Sources)}
	if s.Volume != nil {
		out.Volume = Ptr(*s.Volume)
	}
	if s.Mute != nil {
		out.Mute = Ptr(*s.Mute)
	}
	if s.Oscillator != nil {
		out.Oscillator = Ptr(*s.Oscillator)
	}
	if s.Velocity != nil {
		out.Velocity = Ptr(*s.Velocity)
	}
	return out
}

// WithoutSources returns s with the sample mapping removed.
func (s Settings) WithoutSources() Settings {
	out := s.Clone()
	out.Sources = nil
	return out
}

// Equal compares by value.
func (s Settings) Equal(o Settings) bool {
	return eqPtr(s.Volume, o.Volume) &&
		eqPtr(s.Mute, o.Mute) &&
		eqPtr(s.Oscillator, o.Oscillator) &&
		eqPtr(s.Velocity, o.Velocity) &&
		maps.Equal(s.Sources, o.Sources)
}

// IsZero reports whether the patch sets nothing.
func (s Settings) IsZero() bool {
	return s.Equal(Settings{})
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// VolumeDB returns the volume, 0 dB when unset.
func (s Settings) VolumeDB() float64 {
	if s.Volume == nil {
		return 0
	}
	return *s.Volume
}

// Muted returns the mute flag, false when unset.
func (s Settings) Muted() bool {
	return s.Mute != nil && *s.Mute
}

// Primitives the instruments are built on. package audio implements them
// with beep, package midi with an external synth.

// Synth plays one voice.
type Synth interface {
	TriggerAttackRelease(note Note, d time.Duration, at time.Time)
	Set(patch Settings) error
	Dispose()
}

// Player plays one sample.
type Player interface {
	Start(at time.Time) Player
	Stop(at time.Time) Player
}

// PlayerBank holds one player per sample key.
type PlayerBank interface {
	// Player returns nil for a key the bank does not hold.
	Player(key string) Player
	Set(patch Settings) error
	Dispose()
}

// SampleSource is one entry of a sample track: a key (the row's note) and
// where to load the audio from.
type SampleSource struct {
	Key string `json:"key" yaml:"key"`
	URL string `json:"url" yaml:"url"`
}

// SynthEngine creates synth voices.
type SynthEngine interface {
	NewSynth(s Settings) (Synth, error)
}

// SampleEngine loads player banks. Loading may read and decode files, so
// it is never called while a bank is being triggered.
type SampleEngine interface {
	LoadBank(sources []SampleSource, s Settings) (PlayerBank, error)
}

// Backends bundles the engines tracks are built with.
type Backends struct {
	Synths  SynthEngine
	Samples SampleEngine
}
