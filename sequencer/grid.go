package sequencer

import "fmt"

// DefaultColumns is the grid width when none is given: one measure of
// eighth notes.
const DefaultColumns = 8

// Note identifies what a row plays: a note name for synth tracks, a sample
// key for audio-source tracks.
type Note string

// NoteBlock is one grid cell.
type NoteBlock struct {
	Note   Note `json:"note"`
	Active bool `json:"active"`
}

// NoteGrid is rows (one per note) by columns (time steps). Grids are values:
// edits return a new grid and never modify one that has been handed out.
type NoteGrid [][]NoteBlock

// MakeGrid builds one row per note, each with columns inactive cells.
func MakeGrid(notes []Note, columns int) NoteGrid {
	if columns <= 0 {
		columns = DefaultColumns
	}
	grid := make(NoteGrid, len(notes))
	for r, note := range notes {
		row := make([]NoteBlock, columns)
		for c := range row {
			row[c] = NoteBlock{Note: note}
		}
		grid[r] = row
	}
	return grid
}

// Rows returns the number of rows.
func (g NoteGrid) Rows() int {
	return len(g)
}

// Columns returns the width of the first row (0 for an empty grid).
func (g NoteGrid) Columns() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Validate checks that every row has the same length.
func (g NoteGrid) Validate() error {
	want := g.Columns()
	for r, row := range g {
		if len(row) != want {
			return &NonRectangularGridError{Row: r, Columns: len(row), Want: want}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (g NoteGrid) Clone() NoteGrid {
	if g == nil {
		return nil
	}
	out := make(NoteGrid, len(g))
	for r, row := range g {
		out[r] = append([]NoteBlock(nil), row...)
	}
	return out
}

// Notes returns the note of each row.
func (g NoteGrid) Notes() []Note {
	notes := make([]Note, len(g))
	for r, row := range g {
		if len(row) > 0 {
			notes[r] = row[0].Note
		}
	}
	return notes
}

// ActiveCount counts active cells.
func (g NoteGrid) ActiveCount() int {
	n := 0
	for _, row := range g {
		for _, b := range row {
			if b.Active {
				n++
			}
		}
	}
	return n
}

func (g NoteGrid) inBounds(row, col int) error {
	if row < 0 || row >= len(g) || col < 0 || col >= len(g[row]) {
		return fmt.Errorf("cell (%d,%d) outside %dx%d grid: %w", row, col, g.Rows(), g.Columns(), ErrGridShape)
	}
	return nil
}

// Set returns a copy of the grid with one cell's active flag set. Only the
// touched row is copied; the other rows are shared with g.
func (g NoteGrid) Set(row, col int, active bool) (NoteGrid, error) {
	if err := g.inBounds(row, col); err != nil {
		return nil, err
	}
	out := append(NoteGrid(nil), g...)
	out[row] = append([]NoteBlock(nil), g[row]...)
	out[row][col].Active = active
	return out, nil
}

// Toggle returns a copy of the grid with one cell flipped.
func (g NoteGrid) Toggle(row, col int) (NoteGrid, error) {
	if err := g.inBounds(row, col); err != nil {
		return nil, err
	}
	return g.Set(row, col, !g[row][col].Active)
}

// Resize fits the grid to a new note list and width. Cells at indices that
// exist in both keep their active flag; rows and columns are added or
// dropped at the tail. Kept rows take the note at their new index.
func (g NoteGrid) Resize(notes []Note, columns int) NoteGrid {
	if columns <= 0 {
		columns = DefaultColumns
	}
	out := MakeGrid(notes, columns)
	for r := 0; r < len(out) && r < len(g); r++ {
		for c := 0; c < columns && c < len(g[r]); c++ {
			out[r][c].Active = g[r][c].Active
		}
	}
	return out
}

// SameShape reports whether two grids have equal row and column counts.
func (g NoteGrid) SameShape(o NoteGrid) bool {
	return g.Rows() == o.Rows() && g.Columns() == o.Columns()
}
