package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gridseq/clock"
	"gridseq/sequencer"
	"gridseq/theme"
)

// BeatsPerMeasure is the number of groups in the beat indicator.
const BeatsPerMeasure = 4

// RenderBeat draws one measure split into size notes, grouped by beat, with
// the cell under pos lit. size is one of sequencer.SupportedSubdivisions.
func RenderBeat(pos clock.Position, size int, playing bool, th *theme.Theme) string {
	on := lipgloss.NewStyle().Foreground(th.Success())
	off := lipgloss.NewStyle().Foreground(th.Muted())

	perBeat := max(size/BeatsPerMeasure, 1)
	groups := make([]string, 0, BeatsPerMeasure)
	for beat := 0; beat < BeatsPerMeasure; beat++ {
		var g strings.Builder
		for i := 0; i < perBeat; i++ {
			cell := sequencer.SubdivisionCell{Beat: beat, Index: i, Size: size}
			if playing && sequencer.IsPlayingSubdivision(pos, cell) {
				g.WriteString(on.Render(string(th.Symbols.BeatOn)))
			} else {
				g.WriteString(off.Render(string(th.Symbols.BeatOff)))
			}
		}
		groups = append(groups, g.String())
	}
	return strings.Join(groups, " ")
}
