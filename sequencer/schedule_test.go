package sequencer

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func instruments(log *events, names ...string) []Instrument {
	out := make([]Instrument, len(names))
	for i, n := range names {
		out[i] = &fakeInstrument{name: n, log: log}
	}
	return out
}

func gridOf(rows ...string) NoteGrid {
	g := make(NoteGrid, len(rows))
	for r, row := range rows {
		for _, c := range row {
			g[r] = append(g[r], NoteBlock{Note: Note(fmt.Sprintf("n%d", r)), Active: c == 'x'})
		}
	}
	return g
}

func TestScheduleStepsActiveCells(t *testing.T) {
	log := &events{}
	clk := newFakeClock(log)
	insts := instruments(log, "A", "B")

	var positions []GridPosition
	s, err := ScheduleGrid(clk, GridScheduleSettings{
		Grids:            []NoteGrid{gridOf(".x", "x.")},
		Instruments:      [][]Instrument{insts},
		OnPositionChange: func(p GridPosition) { positions = append(positions, p) },
	})
	if err != nil {
		t.Fatal(err)
	}

	loop := clk.loops[0]
	loop.cb(t0)
	if got := log.all(); len(got) != 1 || got[0] != "trigger B n1" {
		t.Fatalf("step 0 triggered %v, want B only", got)
	}
	loop.cb(t0.Add(time.Second))
	if got := log.all(); len(got) != 2 || got[1] != "trigger A n0" {
		t.Fatalf("step 1 triggered %v, want A only", got)
	}
	if s.Loops[0].Cursor() != 0 {
		t.Errorf("cursor = %d after full cycle, want 0", s.Loops[0].Cursor())
	}
	want := []GridPosition{{0, 1}, {0, 0}}
	if len(positions) != 2 || positions[0] != want[0] || positions[1] != want[1] {
		t.Errorf("positions = %v, want %v", positions, want)
	}

	// two columns at 120bpm: half notes
	a := insts[0].(*fakeInstrument)
	if a.triggers[0].d != time.Second {
		t.Errorf("note length = %v, want 1s", a.triggers[0].d)
	}
	if !a.triggers[0].at.Equal(t0.Add(time.Second)) {
		t.Errorf("trigger time = %v, want the callback's time", a.triggers[0].at)
	}
}

func TestScheduleCursorCycles(t *testing.T) {
	for rows := 1; rows <= 3; rows++ {
		for cols := 1; cols <= 17; cols++ {
			clk := newFakeClock(nil)
			names := make([]string, rows)
			s, err := ScheduleGrid(clk, GridScheduleSettings{
				Grids:       []NoteGrid{MakeGrid(make([]Note, rows), cols)},
				Instruments: [][]Instrument{instruments(nil, names...)},
			})
			if err != nil {
				t.Fatalf("%dx%d: %v", rows, cols, err)
			}
			for k := 0; k < cols; k++ {
				if s.Loops[0].Cursor() >= cols {
					t.Fatalf("%dx%d: cursor %d out of range", rows, cols, s.Loops[0].Cursor())
				}
				clk.loops[0].cb(t0)
			}
			if got := s.Loops[0].Cursor(); got != 0 {
				t.Errorf("%dx%d: cursor = %d after %d steps, want 0", rows, cols, got, cols)
			}
		}
	}
}

func TestScheduleMisaligned(t *testing.T) {
	clk := newFakeClock(nil)
	_, err := ScheduleGrid(clk, GridScheduleSettings{
		Grids:       []NoteGrid{gridOf("..", ".."), gridOf("..", "..")},
		Instruments: [][]Instrument{instruments(nil, "a", "b"), instruments(nil, "a", "b", "c")},
	})

	var mis *MisalignedInstrumentError
	if !errors.As(err, &mis) {
		t.Fatalf("err = %v, want MisalignedInstrumentError", err)
	}
	if mis.Grid != 1 || mis.Rows != 2 || mis.Instruments != 3 {
		t.Errorf("error = %+v", mis)
	}
	if clk.registrations() != 0 || len(clk.loops) != 0 {
		t.Errorf("failed schedule left %d registrations", clk.registrations())
	}
}

func TestScheduleRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		in   GridScheduleSettings
		is   error
	}{
		{"no grids", GridScheduleSettings{}, ErrEmptySchedule},
		{"empty grid", GridScheduleSettings{
			Grids:       []NoteGrid{{}},
			Instruments: [][]Instrument{{}},
		}, ErrEmptyGrid},
		{"zero columns", GridScheduleSettings{
			Grids:       []NoteGrid{{{}}},
			Instruments: [][]Instrument{instruments(nil, "a")},
		}, ErrEmptyGrid},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			clk := newFakeClock(nil)
			if _, err := ScheduleGrid(clk, c.in); !errors.Is(err, c.is) {
				t.Errorf("err = %v, want %v", err, c.is)
			}
			if clk.registrations() != 0 {
				t.Error("registered with the clock")
			}
		})
	}

	clk := newFakeClock(nil)
	var nre *NonRectangularGridError
	_, err := ScheduleGrid(clk, GridScheduleSettings{
		Grids:       []NoteGrid{gridOf("...", "..")},
		Instruments: [][]Instrument{instruments(nil, "a", "b")},
	})
	if !errors.As(err, &nre) {
		t.Errorf("err = %v, want NonRectangularGridError", err)
	}

	_, err = ScheduleGrid(clk, GridScheduleSettings{
		Grids:       []NoteGrid{gridOf("..")},
		Instruments: nil,
	})
	if err == nil {
		t.Error("grid and instrument set count mismatch accepted")
	}
}

func TestMasterRoundRobin(t *testing.T) {
	log := &events{}
	clk := newFakeClock(log)

	var reported []int
	s, err := ScheduleGrid(clk, GridScheduleSettings{
		Grids:       []NoteGrid{gridOf("...."), gridOf("........"), gridOf("................")},
		Instruments: [][]Instrument{instruments(nil, "a"), instruments(nil, "b"), instruments(nil, "c")},
		OnPositionChange: func(p GridPosition) {
			if p.Beat != 0 {
				t.Errorf("master reported beat %d", p.Beat)
			}
			reported = append(reported, p.Loop)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	measure := 2 * time.Second
	for i := 0; i < 4; i++ {
		clk.fire(s.MasterID, t0.Add(time.Duration(i)*measure))
	}

	starts := log.all()
	want := []string{"start loop 0", "start loop 1", "start loop 2", "start loop 0"}
	if fmt.Sprint(starts) != fmt.Sprint(want) {
		t.Errorf("starts = %v, want %v", starts, want)
	}
	if fmt.Sprint(reported) != fmt.Sprint([]int{1, 2, 0, 1}) {
		t.Errorf("reported loops = %v", reported)
	}

	// each turn is exactly one measure
	l := clk.loops[1]
	if len(l.starts) != 1 || len(l.stops) != 1 || l.stops[0].Sub(l.starts[0]) != measure {
		t.Errorf("loop 1 window = %v..%v, want one measure", l.starts, l.stops)
	}
}

func TestMasterResetsCursor(t *testing.T) {
	clk := newFakeClock(nil)
	s, err := ScheduleGrid(clk, GridScheduleSettings{
		Grids:       []NoteGrid{gridOf("....")},
		Instruments: [][]Instrument{instruments(nil, "a")},
	})
	if err != nil {
		t.Fatal(err)
	}
	clk.loops[0].cb(t0)
	clk.loops[0].cb(t0)
	clk.fire(s.MasterID, t0)
	if s.Loops[0].Cursor() != 0 {
		t.Errorf("cursor = %d after master tick, want 0", s.Loops[0].Cursor())
	}
}

func TestScheduleTempo(t *testing.T) {
	clk := newFakeClock(nil)
	s, err := ScheduleGrid(clk, GridScheduleSettings{
		Grids:       []NoteGrid{gridOf("x.......")},
		Instruments: [][]Instrument{instruments(nil, "a")},
		BPM:         60,
	})
	if err != nil {
		t.Fatal(err)
	}
	if clk.bpm != 60 || s.BPM != 60 {
		t.Errorf("bpm = %v/%v, want 60", clk.bpm, s.BPM)
	}
	if s.Loops[0].Step != 500*time.Millisecond {
		t.Errorf("eighth at 60bpm = %v, want 500ms", s.Loops[0].Step)
	}

	clk2 := newFakeClock(nil)
	clk2.bpm = 90
	s2, _ := ScheduleGrid(clk2, GridScheduleSettings{
		Grids:       []NoteGrid{gridOf("x")},
		Instruments: [][]Instrument{instruments(nil, "a")},
	})
	if s2.BPM != 120 || clk2.bpm != 120 {
		t.Errorf("default bpm = %v, want 120", s2.BPM)
	}
}

func TestScheduleUpdateGrid(t *testing.T) {
	log := &events{}
	clk := newFakeClock(log)
	s, err := ScheduleGrid(clk, GridScheduleSettings{
		Grids:       []NoteGrid{gridOf("..")},
		Instruments: [][]Instrument{instruments(log, "a")},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateGrid(0, gridOf("x.")); err != nil {
		t.Fatal(err)
	}
	clk.loops[0].cb(t0)
	if got := log.all(); len(got) != 1 {
		t.Errorf("after swap triggered %v", got)
	}

	if err := s.UpdateGrid(0, gridOf("...")); !errors.Is(err, ErrGridShape) {
		t.Errorf("wrong shape err = %v", err)
	}
	if err := s.UpdateGrid(3, gridOf("..")); !errors.Is(err, ErrGridShape) {
		t.Errorf("bad index err = %v", err)
	}
}

func TestCancelClearsMasterFirst(t *testing.T) {
	log := &events{}
	clk := newFakeClock(log)
	s, err := ScheduleGrid(clk, GridScheduleSettings{
		Grids:       []NoteGrid{gridOf("x"), gridOf("x")},
		Instruments: [][]Instrument{instruments(log, "a"), instruments(log, "b")},
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Cancel()
	s.Cancel()

	got := log.all()
	want := []string{fmt.Sprintf("clear %d", s.MasterID), "dispose loop 0", "dispose loop 1"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("cancel order = %v, want %v", got, want)
	}
	if clk.registrations() != 0 {
		t.Errorf("%d registrations left", clk.registrations())
	}
}
