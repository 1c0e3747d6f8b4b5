package sequencer

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"gridseq/clock"
)

// events is a shared, ordered log used to check call ordering across fakes.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, fmt.Sprintf(format, args...))
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

func (e *events) index(s string) int {
	for i, v := range e.all() {
		if v == s {
			return i
		}
	}
	return -1
}

// fakeInstrument records triggers.
type fakeInstrument struct {
	name     string
	log      *events
	mu       sync.Mutex
	triggers []fakeTrigger
	disposed int
	settings Settings
}

type fakeTrigger struct {
	note Note
	d    time.Duration
	at   time.Time
}

func (f *fakeInstrument) Trigger(note Note, d time.Duration, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, fakeTrigger{note, d, at})
	if f.log != nil {
		f.log.add("trigger %s %s", f.name, note)
	}
}

func (f *fakeInstrument) UpdateSettings(p Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = f.settings.Merge(p)
	return nil
}

func (f *fakeInstrument) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposed++
	if f.log != nil {
		f.log.add("dispose %s", f.name)
	}
}

func (f *fakeInstrument) Identify() InstrumentInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return InstrumentInfo{Kind: KindSynth, Settings: f.settings.Clone(), Disposed: f.disposed > 0}
}

func (f *fakeInstrument) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.triggers)
}

// fakeEngine implements both engines and keeps everything it made.
type fakeEngine struct {
	log *events

	mu             sync.Mutex
	synths         []*fakeSynth
	banks          []*fakeBank
	failOn         string // LoadBank fails when a source has this URL
	synthOK        bool
	onSynthDispose func()

	// when set, LoadBank signals loading and waits on loadGate before
	// touching the engine
	loading  chan struct{}
	loadGate chan struct{}
}

func newFakeEngine(log *events) *fakeEngine {
	return &fakeEngine{log: log, synthOK: true}
}

func (e *fakeEngine) backends() Backends {
	return Backends{Synths: e, Samples: e}
}

func (e *fakeEngine) NewSynth(s Settings) (Synth, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.synthOK {
		return nil, fmt.Errorf("no voices left")
	}
	fs := &fakeSynth{eng: e, id: len(e.synths), settings: s.Clone()}
	e.synths = append(e.synths, fs)
	return fs, nil
}

func (e *fakeEngine) LoadBank(sources []SampleSource, s Settings) (PlayerBank, error) {
	if e.loadGate != nil {
		e.loading <- struct{}{}
		<-e.loadGate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := make(map[string]string, len(sources))
	for _, src := range sources {
		if src.URL == e.failOn && e.failOn != "" {
			return nil, fmt.Errorf("cannot load %s", src.URL)
		}
		m[src.Key] = src.URL
	}
	b := &fakeBank{eng: e, id: len(e.banks), sources: m, settings: s.Clone()}
	e.banks = append(e.banks, b)
	return b, nil
}

func (e *fakeEngine) synthCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.synths)
}

func (e *fakeEngine) synth(i int) *fakeSynth {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.synths[i]
}

func (e *fakeEngine) bank(i int) *fakeBank {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.banks[i]
}

func (e *fakeEngine) bankCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.banks)
}

type fakeSynth struct {
	eng *fakeEngine
	id  int

	mu       sync.Mutex
	settings Settings
	sets     []Settings
	played   []Note
	disposed int
	lateHits int // triggers after dispose
}

func (s *fakeSynth) TriggerAttackRelease(note Note, d time.Duration, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed > 0 {
		s.lateHits++
	}
	s.played = append(s.played, note)
	if s.eng.log != nil {
		s.eng.log.add("play synth%d %s", s.id, note)
	}
}

func (s *fakeSynth) Set(p Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, p.Clone())
	s.settings = s.settings.Merge(p)
	return nil
}

func (s *fakeSynth) Dispose() {
	if s.eng.onSynthDispose != nil {
		s.eng.onSynthDispose()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed++
	if s.eng.log != nil {
		s.eng.log.add("dispose synth%d", s.id)
	}
}

func (s *fakeSynth) playedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.played)
}

func (s *fakeSynth) disposeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

type fakeBank struct {
	eng *fakeEngine
	id  int

	mu       sync.Mutex
	sources  map[string]string
	settings Settings
	started  []string // URLs
	stopped  int
	disposed int
}

func (b *fakeBank) Player(key string) Player {
	b.mu.Lock()
	defer b.mu.Unlock()
	url, ok := b.sources[key]
	if !ok {
		return nil
	}
	return &fakePlayer{bank: b, url: url}
}

func (b *fakeBank) Set(p Settings) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings = b.settings.Merge(p)
	return nil
}

func (b *fakeBank) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposed++
	if b.eng.log != nil {
		b.eng.log.add("dispose bank%d", b.id)
	}
}

func (b *fakeBank) sourceMap() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.sources)
}

func (b *fakeBank) startedURLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.started...)
}

func (b *fakeBank) disposeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}

type fakePlayer struct {
	bank *fakeBank
	url  string
}

func (p *fakePlayer) Start(time.Time) Player {
	p.bank.mu.Lock()
	defer p.bank.mu.Unlock()
	p.bank.started = append(p.bank.started, p.url)
	return p
}

func (p *fakePlayer) Stop(time.Time) Player {
	p.bank.mu.Lock()
	defer p.bank.mu.Unlock()
	p.bank.stopped++
	return p
}

// fakeClock hands callbacks to the test instead of running them.
type fakeClock struct {
	log *events

	bpm     float64
	next    clock.Handle
	repeats map[clock.Handle]clock.Callback
	loops   []*fakeLoop
}

func newFakeClock(log *events) *fakeClock {
	return &fakeClock{log: log, bpm: clock.DefaultBPM, repeats: make(map[clock.Handle]clock.Callback)}
}

func (c *fakeClock) SetBPM(bpm float64) { c.bpm = bpm }

func (c *fakeClock) ScheduleRepeat(cb clock.Callback, every clock.Subdivision, start clock.Tick) clock.Handle {
	c.next++
	c.repeats[c.next] = cb
	return c.next
}

func (c *fakeClock) Clear(h clock.Handle) {
	delete(c.repeats, h)
	if c.log != nil {
		c.log.add("clear %d", h)
	}
}

func (c *fakeClock) NewLoop(cb clock.Callback, every clock.Subdivision) Looper {
	l := &fakeLoop{c: c, idx: len(c.loops), cb: cb, every: every}
	c.loops = append(c.loops, l)
	return l
}

func (c *fakeClock) Duration(s clock.Subdivision) time.Duration {
	measure := time.Duration(float64(clock.BeatsPerMeasure) * 60 / c.bpm * float64(time.Second))
	return measure / time.Duration(s)
}

// fire runs the repeat registered under h.
func (c *fakeClock) fire(h clock.Handle, at time.Time) {
	c.repeats[h](at)
}

func (c *fakeClock) registrations() int {
	live := len(c.repeats)
	for _, l := range c.loops {
		if !l.disposed {
			live++
		}
	}
	return live
}

type fakeLoop struct {
	c     *fakeClock
	idx   int
	cb    clock.Callback
	every clock.Subdivision

	starts   []time.Time
	stops    []time.Time
	disposed bool
}

func (l *fakeLoop) Start(at time.Time) {
	l.starts = append(l.starts, at)
	if l.c.log != nil {
		l.c.log.add("start loop %d", l.idx)
	}
}

func (l *fakeLoop) Stop(at time.Time) { l.stops = append(l.stops, at) }

func (l *fakeLoop) Dispose() {
	l.disposed = true
	if l.c.log != nil {
		l.c.log.add("dispose loop %d", l.idx)
	}
}

// testNow is a hand-driven wall clock for a real transport.
type testNow struct {
	mu   sync.Mutex
	base time.Time
	now  time.Time
}

func newTestNow() *testNow {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &testNow{base: base, now: base}
}

func (n *testNow) Now() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.now
}

func (n *testNow) Set(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.now = n.base.Add(d)
}

func newTestTransport(n *testNow) *clock.Transport {
	return clock.New(clock.WithClock(n.Now), clock.WithLookahead(100*time.Millisecond))
}
