package clock

import "fmt"

// Position is a transport position in bars, beats and sixteenths. Sixteenth
// is fractional: 2.5 is half way through the third sixteenth of the beat.
type Position struct {
	Bar       int
	Beat      int
	Sixteenth float64
}

// PositionOf converts a tick to a Position.
func PositionOf(tk Tick) Position {
	if tk < 0 {
		tk = 0
	}
	inMeasure := tk % TicksPerMeasure
	return Position{
		Bar:       int(tk / TicksPerMeasure),
		Beat:      int(inMeasure / PPQ),
		Sixteenth: float64(inMeasure%PPQ) / (PPQ / 4),
	}
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d:%.2f", p.Bar, p.Beat, p.Sixteenth)
}
