package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gridseq/sequencer"
	"gridseq/theme"
)

// RenderPad renders a single colored pad
func RenderPad(color theme.RGB) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(color.Hex()))
	return style.Render("■")
}

// RenderPadRow renders a row of colored pads with spacing
func RenderPadRow(colors []theme.RGB) string {
	var out strings.Builder
	for i, c := range colors {
		if i > 0 {
			out.WriteString(" ")
		}
		out.WriteString(RenderPad(c))
	}
	return out.String()
}

// GridView is what RenderGrid needs to draw one track.
type GridView struct {
	Grid  sequencer.NoteGrid
	Color lipgloss.Color // active cells

	// Cursor is the edited cell, or -1,-1 for none.
	CursorRow, CursorCol int
	// PlayCol is the column about to play, or -1.
	PlayCol int
}

// labelWidth fits note names like "C#-1" and short sample keys.
const labelWidth = 6

// RenderGrid draws a grid one row per note, first row on top.
func RenderGrid(v GridView, th *theme.Theme) string {
	label := lipgloss.NewStyle().Foreground(th.Muted()).Width(labelWidth)
	empty := lipgloss.NewStyle().Foreground(th.Muted())
	active := lipgloss.NewStyle().Foreground(v.Color)
	head := lipgloss.NewStyle().Foreground(th.Success())
	cursor := lipgloss.NewStyle().Foreground(th.Cursor()).Bold(true)

	sym := th.Symbols
	lines := make([]string, 0, v.Grid.Rows())
	for r, row := range v.Grid {
		var line strings.Builder
		name := string(row[0].Note)
		if len(name) > labelWidth-1 {
			name = name[:labelWidth-1]
		}
		line.WriteString(label.Render(name))

		for c, b := range row {
			if c > 0 {
				line.WriteString(" ")
			}
			onCursor := r == v.CursorRow && c == v.CursorCol
			onHead := c == v.PlayCol

			var glyph rune
			style := empty
			switch {
			case onCursor && onHead:
				glyph, style = sym.CursorPlayhead, cursor
			case onCursor && b.Active:
				glyph, style = sym.CursorActive, cursor
			case onCursor:
				glyph, style = sym.CursorEmpty, cursor
			case onHead && b.Active:
				glyph, style = sym.StepActive, head
			case onHead:
				glyph, style = sym.StepPlayhead, head
			case b.Active:
				glyph, style = sym.StepActive, active
			default:
				glyph = sym.StepEmpty
			}
			line.WriteString(style.Render(string(glyph)))
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
