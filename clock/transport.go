// Package clock is the musical transport: a tick clock with lookahead that
// invokes registered callbacks with the precise future time of each tick.
package clock

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"gridseq/debug"
)

// Timing resolution
const (
	PPQ             = 192 // ticks per quarter note
	BeatsPerMeasure = 4
	TicksPerMeasure = PPQ * BeatsPerMeasure
)

// Tempo limits
const (
	MinBPM     = 20
	MaxBPM     = 300
	DefaultBPM = 120
)

// Tick is a position on the transport timeline.
type Tick int64

// Subdivision is a note value as notes per measure: 1 is a whole measure
// ("1n"), 8 an eighth note ("8n"), 16 a sixteenth.
type Subdivision int

// Measure is one full measure.
const Measure Subdivision = 1

func (s Subdivision) String() string {
	return fmt.Sprintf("%dn", int(s))
}

// Handle identifies a registration so it can be cleared.
type Handle uint64

// Callback receives the time the tick is due, which is normally slightly in
// the future (by up to the lookahead).
type Callback func(at time.Time)

type registration struct {
	cb    Callback
	every Subdivision
	start Tick
	n     int64 // index of the next firing

	loop    bool
	armed   bool
	gen     uint64 // bumped when a loop is re-armed
	hasStop bool
	stop    Tick // no firing at or after this tick
}

func (r *registration) next() Tick {
	return r.start + Tick(r.n*TicksPerMeasure/int64(r.every))
}

type due struct {
	id   Handle
	reg  *registration
	gen  uint64
	tick Tick
	at   time.Time
}

// Transport owns tempo, play state and all registrations. Run drives it
// from a goroutine; Pump can be called directly to drive it by hand.
type Transport struct {
	mu    sync.Mutex // registrations and timing
	runMu sync.Mutex // held while callbacks run

	regs   map[Handle]*registration
	nextID Handle

	bpm        float64
	playing    bool
	anchorTime time.Time
	anchorTick Tick

	lookahead time.Duration
	interval  time.Duration
	now       func() time.Time
}

// Option configures a Transport.
type Option func(*Transport)

// WithLookahead sets how far ahead of their deadline callbacks run.
func WithLookahead(d time.Duration) Option {
	return func(t *Transport) { t.lookahead = d }
}

// WithPollInterval sets how often Run services the timeline.
func WithPollInterval(d time.Duration) Option {
	return func(t *Transport) { t.interval = d }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Transport) { t.now = now }
}

// New creates a stopped transport at DefaultBPM.
func New(opts ...Option) *Transport {
	t := &Transport{
		regs:      make(map[Handle]*registration),
		bpm:       DefaultBPM,
		lookahead: 100 * time.Millisecond,
		interval:  25 * time.Millisecond,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run services the timeline until ctx is done (blocking - run in goroutine).
func (t *Transport) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Pump()
		}
	}
}

// SetBPM sets the tempo, clamped to MinBPM..MaxBPM. While playing the
// timeline is re-anchored at the current tick so positions stay continuous.
func (t *Transport) SetBPM(bpm float64) {
	bpm = math.Max(MinBPM, math.Min(MaxBPM, bpm))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		cur := t.timeToTick(t.now())
		t.anchorTime = t.tickToTime(cur)
		t.anchorTick = cur
	}
	t.bpm = bpm
}

// BPM returns the current tempo.
func (t *Transport) BPM() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bpm
}

// Duration returns the length of one note of the given subdivision at the
// current tempo.
func (t *Transport) Duration(s Subdivision) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	ticks := float64(TicksPerMeasure) / float64(s)
	return time.Duration(math.Round(ticks * t.secondsPerTick() * float64(time.Second)))
}

func (t *Transport) secondsPerTick() float64 {
	return 60 / (t.bpm * PPQ)
}

func (t *Transport) tickToTime(tk Tick) time.Time {
	ns := float64(tk-t.anchorTick) * t.secondsPerTick() * float64(time.Second)
	return t.anchorTime.Add(time.Duration(math.Round(ns)))
}

func (t *Transport) timeToTick(at time.Time) Tick {
	ticks := at.Sub(t.anchorTime).Seconds() / t.secondsPerTick()
	return t.anchorTick + Tick(math.Round(ticks))
}

// TickToTime converts a tick to the time it is due.
func (t *Transport) TickToTime(tk Tick) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tickToTime(tk)
}

// TimeToTick converts a time to the nearest tick.
func (t *Transport) TimeToTick(at time.Time) Tick {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeToTick(at)
}

// Start begins playback from tick 0. The first tick is due one lookahead
// from now so it is not already late when it is serviced.
func (t *Transport) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		return
	}

	t.playing = true
	t.anchorTime = t.now().Add(t.lookahead)
	t.anchorTick = 0
	for _, r := range t.regs {
		if r.loop {
			r.armed = false
			continue
		}
		t.align(r)
	}
	debug.Log("clock", "start bpm=%.1f regs=%d", t.bpm, len(t.regs))
}

// Stop halts playback. When Stop returns no callback is running and none
// will run until the next Start. Loops are disarmed.
func (t *Transport) Stop() {
	t.mu.Lock()
	if !t.playing {
		t.mu.Unlock()
		return
	}
	t.playing = false
	for _, r := range t.regs {
		if r.loop {
			r.armed = false
		}
	}
	t.mu.Unlock()

	// wait out an in-flight batch
	t.runMu.Lock()
	t.runMu.Unlock()
	debug.Log("clock", "stop")
}

// Playing reports whether the transport is running.
func (t *Transport) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// CurrentTick returns the tick at the current time (0 when stopped).
func (t *Transport) CurrentTick() Tick {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentTick()
}

func (t *Transport) currentTick() Tick {
	if !t.playing {
		return 0
	}
	return max(0, t.timeToTick(t.now()))
}

// ScheduleRepeat registers cb to run every subdivision starting at tick
// start. Registered while playing, the first firing is the next one at or
// after the current tick.
func (t *Transport) ScheduleRepeat(cb Callback, every Subdivision, start Tick) Handle {
	if every <= 0 {
		panic(fmt.Sprintf("clock: invalid subdivision %d", every))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	r := &registration{cb: cb, every: every, start: start, armed: true}
	if t.playing {
		t.align(r)
	}
	t.nextID++
	t.regs[t.nextID] = r
	return t.nextID
}

// align moves a repeat to its first firing at or after the current tick.
func (t *Transport) align(r *registration) {
	r.n = 0
	cur := t.currentTick()
	if cur <= r.start {
		return
	}
	elapsed := int64(cur-r.start) * int64(r.every)
	r.n = (elapsed + TicksPerMeasure - 1) / TicksPerMeasure
}

// Clear removes a registration. When Clear returns its callback is not
// running and will never run again. Clear must not be called from inside a
// transport callback.
func (t *Transport) Clear(h Handle) {
	t.mu.Lock()
	_, ok := t.regs[h]
	delete(t.regs, h)
	t.mu.Unlock()

	if ok {
		t.runMu.Lock()
		t.runMu.Unlock()
	}
}

// Registrations returns the number of live registrations.
func (t *Transport) Registrations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.regs)
}

// Pump runs every callback due before now plus the lookahead, in tick
// order, and returns how many ran. Callbacks may start or stop loops; those
// changes are picked up within the same call.
func (t *Transport) Pump() int {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	fired := 0
	for {
		batch := t.collect()
		if len(batch) == 0 {
			return fired
		}
		for _, d := range batch {
			if !t.stillDue(d) {
				continue
			}
			d.reg.cb(d.at)
			fired++
		}
	}
}

// collect returns the registrations due at the earliest pending tick, so
// callbacks always run in timeline order even across several measures.
func (t *Transport) collect() []due {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return nil
	}

	horizon := t.timeToTick(t.now().Add(t.lookahead))
	earliest := horizon + 1
	for _, r := range t.regs {
		if !r.armed {
			continue
		}
		tk := r.next()
		if r.hasStop && tk >= r.stop {
			r.armed = false
			continue
		}
		if tk < earliest {
			earliest = tk
		}
	}
	if earliest > horizon {
		return nil
	}

	var batch []due
	for id, r := range t.regs {
		if !r.armed || r.next() != earliest {
			continue
		}
		batch = append(batch, due{id: id, reg: r, gen: r.gen, tick: earliest, at: t.tickToTime(earliest)})
		r.n++
	}

	sort.Slice(batch, func(i, j int) bool { return batch[i].id < batch[j].id })
	return batch
}

func (t *Transport) stillDue(d due) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.regs[d.id]
	if !ok || r != d.reg || r.gen != d.gen || !t.playing || !r.armed {
		return false
	}
	return !r.hasStop || d.tick < r.stop
}

// Position returns the musical position of the current tick.
func (t *Transport) Position() Position {
	return PositionOf(t.CurrentTick())
}
