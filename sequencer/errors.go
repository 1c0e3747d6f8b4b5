package sequencer

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySchedule = errors.New("schedule needs at least one grid")
	ErrEmptyGrid     = errors.New("grid has no rows or no columns")
	ErrUnknownTrack  = errors.New("unknown track")
	ErrGridShape     = errors.New("grid does not match track")
)

// MisalignedInstrumentError is returned when a grid's row count differs from
// the number of instruments bound to it.
type MisalignedInstrumentError struct {
	Grid        int // index of the offending grid
	Rows        int
	Instruments int
}

func (e *MisalignedInstrumentError) Error() string {
	return fmt.Sprintf("grid %d: number of rows must match number of instruments, but got %d rows and %d instruments",
		e.Grid, e.Rows, e.Instruments)
}

// NonRectangularGridError is returned for a grid whose rows differ in length.
type NonRectangularGridError struct {
	Row     int
	Columns int
	Want    int
}

func (e *NonRectangularGridError) Error() string {
	return fmt.Sprintf("grid is not rectangular: row %d has %d columns, want %d", e.Row, e.Columns, e.Want)
}

// UnknownTrackTypeError is returned for a track declaration of a type the
// sequencer cannot build.
type UnknownTrackTypeError struct {
	Type string
}

func (e *UnknownTrackTypeError) Error() string {
	return fmt.Sprintf("unknown track type: %s", e.Type)
}

// DuplicateTrackError is returned when two declarations share an id.
type DuplicateTrackError struct {
	ID TrackID
}

func (e *DuplicateTrackError) Error() string {
	return fmt.Sprintf("duplicate track id %q", e.ID)
}

// TrackError ties a failure to the track it came from.
type TrackError struct {
	ID  TrackID
	Err error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("track %q: %v", e.ID, e.Err)
}

func (e *TrackError) Unwrap() error {
	return e.Err
}
