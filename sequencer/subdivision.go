package sequencer

import (
	"math"

	"gridseq/clock"
)

// SupportedSubdivisions are the beat indicator sizes the UI draws.
var SupportedSubdivisions = []int{4, 8, 16, 32}

// SubdivisionCell is one cell of a beat indicator: subdivision Index of
// beat Beat, where the measure is split into Size notes.
type SubdivisionCell struct {
	Beat  int
	Index int
	Size  int
}

// SubdivisionIndex returns which Size-note of the beat pos falls in. The
// result is relative to a sixteenth grid: a quarter note is always index 0,
// eighths are 0 or 1, thirty-seconds 0 through 7.
func SubdivisionIndex(pos clock.Position, cell SubdivisionCell) int {
	return int(math.Floor(pos.Sixteenth * float64(cell.Size) / 16))
}

// IsPlayingSubdivision reports whether pos is inside cell.
func IsPlayingSubdivision(pos clock.Position, cell SubdivisionCell) bool {
	return pos.Beat == cell.Beat && SubdivisionIndex(pos, cell) == cell.Index
}
