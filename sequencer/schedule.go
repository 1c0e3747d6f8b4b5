package sequencer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gridseq/clock"
	"gridseq/debug"
)

// Looper is a repeating unit that fires between Start and Stop.
type Looper interface {
	Start(at time.Time)
	Stop(at time.Time)
	Dispose()
}

// Clock is what the scheduler needs from a transport.
type Clock interface {
	SetBPM(bpm float64)
	ScheduleRepeat(cb clock.Callback, every clock.Subdivision, start clock.Tick) clock.Handle
	Clear(h clock.Handle)
	NewLoop(cb clock.Callback, every clock.Subdivision) Looper
	Duration(s clock.Subdivision) time.Duration
}

// GridPosition is the playhead: the grid whose turn it is and the column
// it will play next.
type GridPosition struct {
	Loop int
	Beat int
}

// GridScheduleSettings are the inputs to ScheduleGrid. Instruments[i][r]
// plays row r of Grids[i].
type GridScheduleSettings struct {
	Grids            []NoteGrid
	Instruments      [][]Instrument
	BPM              float64 // 0 means clock.DefaultBPM
	OnPositionChange func(GridPosition)
}

// GridLoop is one grid's repeating step.
type GridLoop struct {
	Loop    Looper
	Columns int
	Step    time.Duration // note length of one column

	grid   atomic.Pointer[NoteGrid]
	cursor atomic.Int64
}

// Grid returns the snapshot the loop currently reads.
func (l *GridLoop) Grid() NoteGrid {
	return *l.grid.Load()
}

// Cursor returns the column the loop plays next.
func (l *GridLoop) Cursor() int {
	return int(l.cursor.Load())
}

// Schedule is an armed set of grid loops and the master registration that
// hands out turns. Cancel must be called before the instruments go away.
type Schedule struct {
	BPM         float64
	Instruments [][]Instrument
	MasterID    clock.Handle
	Loops       []*GridLoop

	clk     Clock
	measure time.Duration
	turn    int // only touched from the master callback
	report  func(GridPosition)

	cancelOnce sync.Once
}

// ScheduleGrid validates the grids against their instruments and arms one
// loop per grid plus a master that gives each grid one measure in turn.
// Nothing is registered with the clock when it returns an error.
func ScheduleGrid(clk Clock, s GridScheduleSettings) (*Schedule, error) {
	if err := validateSchedule(s); err != nil {
		return nil, err
	}

	bpm := s.BPM
	if bpm == 0 {
		bpm = clock.DefaultBPM
	}
	clk.SetBPM(bpm)

	report := s.OnPositionChange
	if report == nil {
		report = func(GridPosition) {}
	}

	sched := &Schedule{
		BPM:         bpm,
		Instruments: s.Instruments,
		Loops:       make([]*GridLoop, len(s.Grids)),
		clk:         clk,
		measure:     clk.Duration(clock.Measure),
		report:      report,
	}

	for i, g := range s.Grids {
		i := i
		columns := g.Columns()
		l := &GridLoop{
			Columns: columns,
			Step:    clk.Duration(clock.Subdivision(columns)),
		}
		snapshot := g.Clone()
		l.grid.Store(&snapshot)
		l.Loop = clk.NewLoop(func(at time.Time) { sched.step(i, at) }, clock.Subdivision(columns))
		sched.Loops[i] = l
	}
	sched.MasterID = clk.ScheduleRepeat(sched.tick, clock.Measure, 0)

	debug.Log("seq", "scheduled %d grids at %.0f bpm", len(s.Grids), bpm)
	return sched, nil
}

func validateSchedule(s GridScheduleSettings) error {
	if len(s.Grids) == 0 {
		return ErrEmptySchedule
	}
	if len(s.Instruments) != len(s.Grids) {
		return fmt.Errorf("got %d grids and %d instrument sets", len(s.Grids), len(s.Instruments))
	}
	for i, g := range s.Grids {
		if g.Rows() == 0 || g.Columns() == 0 {
			return fmt.Errorf("grid %d: %w", i, ErrEmptyGrid)
		}
		if err := g.Validate(); err != nil {
			return fmt.Errorf("grid %d: %w", i, err)
		}
		if g.Rows() != len(s.Instruments[i]) {
			return &MisalignedInstrumentError{Grid: i, Rows: g.Rows(), Instruments: len(s.Instruments[i])}
		}
	}
	return nil
}

// step plays the cursor column of grid i and advances the cursor.
func (s *Schedule) step(i int, at time.Time) {
	l := s.Loops[i]
	g := l.Grid()
	col := l.Cursor()
	insts := s.Instruments[i]

	for r, row := range g {
		if b := row[col]; b.Active {
			insts[r].Trigger(b.Note, l.Step, at)
		}
	}

	next := (col + 1) % l.Columns
	l.cursor.Store(int64(next))
	s.report(GridPosition{Loop: i, Beat: next})
}

// tick runs once per measure: the grid whose turn it is plays for exactly
// one measure from the top.
func (s *Schedule) tick(at time.Time) {
	l := s.Loops[s.turn]
	l.cursor.Store(0)
	l.Loop.Start(at)
	l.Loop.Stop(at.Add(s.measure))

	s.turn = (s.turn + 1) % len(s.Loops)
	s.report(GridPosition{Loop: s.turn, Beat: 0})
}

// UpdateGrid replaces grid i with a same-shaped grid. The next step reads
// the new grid; a step already running keeps the old one.
func (s *Schedule) UpdateGrid(i int, g NoteGrid) error {
	if i < 0 || i >= len(s.Loops) {
		return fmt.Errorf("loop %d of %d: %w", i, len(s.Loops), ErrGridShape)
	}
	if err := g.Validate(); err != nil {
		return err
	}
	l := s.Loops[i]
	if !g.SameShape(l.Grid()) {
		return fmt.Errorf("loop %d: %dx%d grid, want %dx%d: %w",
			i, g.Rows(), g.Columns(), l.Grid().Rows(), l.Columns, ErrGridShape)
	}
	snapshot := g.Clone()
	l.grid.Store(&snapshot)
	return nil
}

// Cancel clears the master registration, then every loop. When it returns
// no schedule callback is running or will run again.
func (s *Schedule) Cancel() {
	s.cancelOnce.Do(func() {
		s.clk.Clear(s.MasterID)
		for _, l := range s.Loops {
			l.Loop.Dispose()
		}
		debug.Log("seq", "schedule cancelled")
	})
}

// transportClock adapts *clock.Transport to Clock.
type transportClock struct {
	*clock.Transport
}

func (t transportClock) NewLoop(cb clock.Callback, every clock.Subdivision) Looper {
	return t.Transport.NewLoop(cb, every)
}

// Transport is a Clock the session can also start, stop and read.
type Transport interface {
	Clock
	Start()
	Stop()
	Playing() bool
	BPM() float64
	Position() clock.Position
}

// FromTransport wraps a clock.Transport for the scheduler and session.
func FromTransport(t *clock.Transport) Transport {
	return transportClock{t}
}
