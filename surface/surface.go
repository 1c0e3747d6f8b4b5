// Package surface mirrors the sequencer onto a Launchpad-style grid
// controller: pads toggle cells of the selected track, LEDs show the cells
// and the playhead.
package surface

import (
	"context"
	"errors"
	"sync"
	"time"

	"gridseq/debug"
	"gridseq/midi"
	"gridseq/sequencer"
	"gridseq/theme"
)

// RefreshRate is how often LEDs are brought up to date.
const RefreshRate = time.Second / 30

// Side column buttons, by pad row.
const (
	sideUp    = 7
	sideDown  = 6
	sideLeft  = 5
	sideRight = 4
	sidePlay  = 0
)

type pad struct{ row, col int }

// Surface binds one controller to the tracks and session.
type Surface struct {
	ctrl   midi.Controller
	tracks *sequencer.Tracks
	sess   *sequencer.Session
	theme  *theme.Theme

	mu       sync.Mutex
	selected int
	rowOff   int
	colOff   int
	lit      map[pad]midi.LEDUpdate
}

// New creates a surface. Nothing is sent until Run or Refresh.
func New(ctrl midi.Controller, tracks *sequencer.Tracks, sess *sequencer.Session, th *theme.Theme) *Surface {
	if th == nil {
		th = theme.New(nil)
	}
	return &Surface{
		ctrl:   ctrl,
		tracks: tracks,
		sess:   sess,
		theme:  th,
		lit:    make(map[pad]midi.LEDUpdate),
	}
}

// Run handles pad presses and refreshes LEDs until ctx is done or the
// controller goes away.
func (s *Surface) Run(ctx context.Context) error {
	ticker := time.NewTicker(RefreshRate)
	defer ticker.Stop()

	pads := s.ctrl.PadEvents()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-pads:
			if !ok {
				return nil
			}
			if err := s.HandlePad(ev); err != nil {
				debug.LogEvery(20, "surface", "pad %d,%d: %v", ev.Row, ev.Col, err)
			}
		case <-ticker.C:
			if err := s.Refresh(); err != nil {
				debug.LogEvery(100, "surface", "refresh: %v", err)
			}
		}
	}
}

// Selected returns the id of the track the pads edit.
func (s *Surface) Selected() (sequencer.TrackID, bool) {
	views := s.tracks.Views()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.view(views)
	return v.ID, ok
}

// view returns the selected track, clamping the selection to what exists.
// Callers hold s.mu.
func (s *Surface) view(views []sequencer.TrackView) (sequencer.TrackView, bool) {
	if len(views) == 0 {
		return sequencer.TrackView{}, false
	}
	if s.selected >= len(views) {
		s.selected = len(views) - 1
	}
	return views[s.selected], true
}

// HandlePad applies one press.
func (s *Surface) HandlePad(ev midi.PadEvent) error {
	views := s.tracks.Views()

	s.mu.Lock()
	switch {
	case ev.Row == midi.TopRow:
		if ev.Col < len(views) && ev.Col != s.selected {
			s.selected = ev.Col
			s.rowOff, s.colOff = 0, 0
		}
		s.mu.Unlock()
		return nil

	case ev.Col == midi.SideCol:
		v, ok := s.view(views)
		if ev.Row != sidePlay {
			if ok {
				s.scroll(ev.Row, v.Grid)
			}
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		return s.sess.Toggle()
	}

	v, ok := s.view(views)
	row, col := s.rowOff+(midi.GridSize-1-ev.Row), s.colOff+ev.Col
	s.mu.Unlock()
	if !ok {
		return errors.New("no track to edit")
	}
	if row >= v.Grid.Rows() || col >= v.Grid.Columns() {
		return nil
	}
	return s.tracks.ToggleCell(v.ID, row, col)
}

// scroll moves the window one row, or one page of columns. Callers hold
// s.mu.
func (s *Surface) scroll(button int, g sequencer.NoteGrid) {
	maxRow := max(g.Rows()-midi.GridSize, 0)
	maxCol := max(g.Columns()-midi.GridSize, 0)
	switch button {
	case sideUp:
		s.rowOff = max(s.rowOff-1, 0)
	case sideDown:
		s.rowOff = min(s.rowOff+1, maxRow)
	case sideLeft:
		s.colOff = max(s.colOff-midi.GridSize, 0)
	case sideRight:
		s.colOff = min(s.colOff+midi.GridSize, maxCol)
	}
}

// Frame computes what every pad should show right now.
func (s *Surface) Frame() map[pad]midi.LEDUpdate {
	views := s.tracks.Views()
	playing := s.sess.Playing()
	var (
		playID  sequencer.TrackID
		playCol = -1
	)
	if pos, ok := s.sess.Position(); ok && playing {
		if id, ok := s.sess.TrackAt(pos.Loop); ok {
			playID, playCol = id, pos.Beat
		}
	}

	s.mu.Lock()
	v, ok := s.view(views)
	sel, rowOff, colOff := s.selected, s.rowOff, s.colOff
	s.mu.Unlock()

	frame := make(map[pad]midi.LEDUpdate)
	set := func(row, col int, c theme.RGB, ch uint8) {
		if c == (theme.RGB{}) {
			return
		}
		frame[pad{row, col}] = midi.LEDUpdate{Row: row, Col: col, Color: c, Channel: ch}
	}

	for i, tv := range views {
		if i >= midi.GridSize {
			break
		}
		c := theme.TrackColor(i, len(views))
		ch := midi.ChannelStatic
		if i != sel {
			c = theme.Dim(c, 0.7)
		}
		if tv.ID == playID {
			ch = midi.ChannelPulse
		}
		set(midi.TopRow, i, c, ch)
	}

	if !ok {
		return frame
	}
	nav := theme.Dim(s.theme.RGB(theme.RoleFG), 0.5)
	if rowOff > 0 {
		set(sideUp, midi.SideCol, nav, midi.ChannelStatic)
	}
	if rowOff+midi.GridSize < v.Grid.Rows() {
		set(sideDown, midi.SideCol, nav, midi.ChannelStatic)
	}
	if colOff > 0 {
		set(sideLeft, midi.SideCol, nav, midi.ChannelStatic)
	}
	if colOff+midi.GridSize < v.Grid.Columns() {
		set(sideRight, midi.SideCol, nav, midi.ChannelStatic)
	}
	if playing {
		set(sidePlay, midi.SideCol, s.theme.RGB(theme.RoleSuccess), midi.ChannelStatic)
	} else {
		set(sidePlay, midi.SideCol, theme.Dim(s.theme.RGB(theme.RoleSuccess), 0.8), midi.ChannelStatic)
	}

	cell := theme.TrackColor(sel, len(views))
	head := theme.Dim(s.theme.RGB(theme.RoleSuccess), 0.6)
	for r := 0; r < midi.GridSize; r++ {
		row := rowOff + (midi.GridSize - 1 - r)
		if row >= v.Grid.Rows() {
			continue
		}
		for c := 0; c < midi.GridSize; c++ {
			col := colOff + c
			if col >= v.Grid.Columns() {
				continue
			}
			onHead := v.ID == playID && col == playCol
			switch {
			case v.Grid[row][col].Active && onHead:
				set(r, c, s.theme.RGB(theme.RoleSuccess), midi.ChannelStatic)
			case v.Grid[row][col].Active:
				set(r, c, cell, midi.ChannelStatic)
			case onHead:
				set(r, c, head, midi.ChannelStatic)
			}
		}
	}
	return frame
}

// Refresh sends only the pads that changed since the last refresh.
func (s *Surface) Refresh() error {
	frame := s.Frame()

	s.mu.Lock()
	var updates []midi.LEDUpdate
	for p, u := range frame {
		if s.lit[p] != u {
			updates = append(updates, u)
		}
	}
	for p := range s.lit {
		if _, ok := frame[p]; !ok {
			updates = append(updates, midi.LEDUpdate{Row: p.row, Col: p.col})
		}
	}
	s.lit = frame
	s.mu.Unlock()

	if err := s.ctrl.SetLEDBatch(updates); err != nil {
		// resend everything next time
		s.mu.Lock()
		s.lit = make(map[pad]midi.LEDUpdate)
		s.mu.Unlock()
		return err
	}
	return nil
}
