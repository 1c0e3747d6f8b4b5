package theory

import (
	"fmt"
	"sort"
)

// Scales in integer notation, relative to the root.
var Scales = map[string][]int{
	"Chromatic":       {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	"Dorian":          {0, 2, 3, 5, 7, 9, 10, 12},
	"Blues":           {0, 3, 5, 6, 7, 10, 12},
	"DoubleHarmonic":  {0, 1, 4, 5, 7, 8, 11, 12},
	"Algerian":        {0, 2, 3, 6, 7, 9, 11, 12, 14, 15, 17},
	"HarmonicMinor":   {0, 2, 3, 5, 7, 8, 11, 12},
	"HarmonicMajor":   {0, 2, 4, 5, 7, 8, 11, 12},
	"Major":           {0, 2, 4, 5, 7, 9, 11, 12},
	"MinorPentatonic": {0, 3, 5, 7, 10},
}

// ScaleNames returns the keys of Scales in alphabetical order.
func ScaleNames() []string {
	names := make([]string, 0, len(Scales))
	for name := range Scales {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildScale spells the notes of a scale starting at root.
func BuildScale(root string, intervals []int) ([]string, error) {
	base, err := ParseNote(root)
	if err != nil {
		return nil, err
	}
	notes := make([]string, 0, len(intervals))
	for _, step := range intervals {
		notes = append(notes, NoteName(base+step))
	}
	return notes, nil
}

// NamedScale is BuildScale for an entry of Scales.
func NamedScale(root, name string) ([]string, error) {
	intervals, ok := Scales[name]
	if !ok {
		return nil, fmt.Errorf("unknown scale %q", name)
	}
	return BuildScale(root, intervals)
}
