// Package theory holds note-name and scale helpers shared by the sequencer
// and its audio backends.
package theory

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// NoteError reports a note name that could not be parsed.
type NoteError struct {
	Name string
}

func (e *NoteError) Error() string {
	return fmt.Sprintf("invalid note name %q", e.Name)
}

var letterValues = map[byte]int{
	'C': 0,
	'D': 2,
	'E': 4,
	'F': 5,
	'G': 7,
	'A': 9,
	'B': 11,
}

// sharp spelling used when naming a pitch
var pitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// ParseNote returns the MIDI pitch of a note in scientific notation (C4 = 60).
// Accepted accidentals are #, b, bb and x; octaves may be negative.
func ParseNote(name string) (int, error) {
	if len(name) < 2 {
		return 0, &NoteError{Name: name}
	}
	base, ok := letterValues[name[0]]
	if !ok {
		return 0, &NoteError{Name: name}
	}

	rest := name[1:]
	accidental := 0
	switch {
	case len(rest) >= 2 && rest[:2] == "bb":
		accidental, rest = -2, rest[2:]
	case rest[0] == 'b':
		accidental, rest = -1, rest[1:]
	case rest[0] == '#':
		accidental, rest = 1, rest[1:]
	case rest[0] == 'x':
		accidental, rest = 2, rest[1:]
	}

	octave, err := strconv.Atoi(rest)
	if err != nil || rest == "" || rest[0] == '+' {
		return 0, &NoteError{Name: name}
	}

	return (octave+1)*12 + base + accidental, nil
}

// MustParseNote is ParseNote for literals known to be valid.
func MustParseNote(name string) int {
	p, err := ParseNote(name)
	if err != nil {
		panic(err)
	}
	return p
}

// NoteName spells a MIDI pitch with sharps, e.g. 61 -> "C#4".
func NoteName(pitch int) string {
	octave := floorDiv(pitch, 12) - 1
	return pitchNames[pitch-floorDiv(pitch, 12)*12] + strconv.Itoa(octave)
}

// Frequency returns the equal-tempered frequency of a MIDI pitch (A4 = 440Hz).
func Frequency(pitch int) float64 {
	return 440 * math.Pow(2, float64(pitch-69)/12)
}

// NoteScore ranks a note for sorting: higher pitches score higher, and
// spellings of the same pitch (C#4, Db4) score the same.
func NoteScore(name string) (int, error) {
	return ParseNote(name)
}

// SortNotes orders notes from highest to lowest pitch, the way a grid is
// drawn top to bottom. Equal pitches keep their input order.
func SortNotes(notes []string) ([]string, error) {
	scores := make(map[string]int, len(notes))
	for _, n := range notes {
		score, err := NoteScore(n)
		if err != nil {
			return nil, err
		}
		scores[n] = score
	}

	sorted := append([]string(nil), notes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return scores[sorted[i]] > scores[sorted[j]]
	})
	return sorted, nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
