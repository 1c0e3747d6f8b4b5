// Package tui is the terminal front end: it draws the tracks and the
// playhead and turns keys into sequencer edits.
package tui

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gridseq/debug"
	"gridseq/midi"
	"gridseq/sequencer"
	"gridseq/theme"
	"gridseq/widgets"
)

// FrameRate paces redraws of the beat indicator while playing.
const FrameRate = time.Second / 30

type Model struct {
	Tracks    *sequencer.Tracks
	Session   *sequencer.Session
	DeviceMgr *midi.DeviceManager // may be nil
	Theme     *theme.Theme

	// OnController is called for every controller that connects.
	OnController func(midi.Controller)

	keys     keyMap
	help     help.Model
	updates  chan struct{}
	selected int
	row, col int
	beatSize int
	status   string
	quitting bool

	controller string // id of the connected controller

	// tracks the config could not declare; Reconcile never saw them
	declareErrs map[sequencer.TrackID]error
}

type UpdateMsg struct{}

type frameMsg struct{}

type DeviceEventMsg midi.DeviceEvent

// NewModel wires the model to the session's position reports.
func NewModel(tracks *sequencer.Tracks, sess *sequencer.Session, deviceMgr *midi.DeviceManager, th *theme.Theme) Model {
	if th == nil {
		th = theme.New(nil)
	}
	m := Model{
		Tracks:    tracks,
		Session:   sess,
		DeviceMgr: deviceMgr,
		Theme:     th,
		keys:      defaultKeys(),
		help:      help.New(),
		updates:   make(chan struct{}, 1),
		beatSize:  16,
	}
	// runs on the clock goroutine; never block it
	sess.OnPosition(func(sequencer.GridPosition) {
		select {
		case m.updates <- struct{}{}:
		default:
		}
	})
	return m
}

// WithBeatSize sets the beat indicator resolution.
func (m Model) WithBeatSize(n int) Model {
	m.beatSize = n
	return m
}

// WithDeclareErrors shows track declaration errors next to the tracks that
// failed to build. err is what config.Config.Declare returned.
func (m Model) WithDeclareErrors(err error) Model {
	m.declareErrs = trackErrors(err)
	return m
}

// trackErrors splits a joined error into per-track errors.
func trackErrors(err error) map[sequencer.TrackID]error {
	if err == nil {
		return nil
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	out := make(map[sequencer.TrackID]error, len(errs))
	for _, err := range errs {
		var te *sequencer.TrackError
		if errors.As(err, &te) {
			out[te.ID] = te.Err
		} else {
			out["config"] = err
		}
	}
	return out
}

func ListenForUpdates(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return UpdateMsg{}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func frame() tea.Cmd {
	return tea.Tick(FrameRate, func(time.Time) tea.Msg { return frameMsg{} })
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.updates), frame()}
	if m.DeviceMgr != nil {
		cmds = append(cmds, ListenForDevices(m.DeviceMgr))
	}
	return tea.Batch(cmds...)
}

// current returns the selected track, clamping the selection and cursor
// to what exists.
func (m *Model) current() (sequencer.TrackView, bool) {
	views := m.Tracks.Views()
	if len(views) == 0 {
		return sequencer.TrackView{}, false
	}
	m.selected = min(max(m.selected, 0), len(views)-1)
	v := views[m.selected]
	m.row = min(max(m.row, 0), max(v.Grid.Rows()-1, 0))
	m.col = min(max(m.col, 0), max(v.Grid.Columns()-1, 0))
	return v, true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case UpdateMsg:
		return m, ListenForUpdates(m.updates)

	case frameMsg:
		return m, frame()

	case DeviceEventMsg:
		event := midi.DeviceEvent(msg)
		switch event.Type {
		case midi.DeviceConnected:
			m.controller = event.ID
			if m.OnController != nil {
				m.OnController(event.Controller)
			}
		case midi.DeviceDisconnected:
			if m.controller == event.ID {
				m.controller = ""
			}
		}
		return m, ListenForDevices(m.DeviceMgr)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	m.status = ""

	switch {
	case key.Matches(msg, k.Quit):
		m.quitting = true
		m.Session.Stop()
		return m, tea.Quit

	case key.Matches(msg, k.Play):
		if err := m.Session.Toggle(); err != nil {
			m.status = err.Error()
		}
		return m, nil

	case key.Matches(msg, k.TempoUp):
		m.Session.SetBPM(m.Session.BPM() + 5)
		return m, nil

	case key.Matches(msg, k.TempoDown):
		m.Session.SetBPM(m.Session.BPM() - 5)
		return m, nil

	case key.Matches(msg, k.Beat):
		m.beatSize = nextBeatSize(m.beatSize)
		return m, nil

	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, k.NextTrack):
		m.selected++
		if n := len(m.Tracks.IDs()); m.selected >= n {
			m.selected = 0
		}
		return m, nil

	case key.Matches(msg, k.PrevTrack):
		m.selected--
		if m.selected < 0 {
			m.selected = len(m.Tracks.IDs()) - 1
		}
		return m, nil
	}

	v, ok := m.current()
	if !ok {
		return m, nil
	}

	var err error
	switch {
	case key.Matches(msg, k.Up):
		m.row = max(m.row-1, 0)
	case key.Matches(msg, k.Down):
		m.row = min(m.row+1, v.Grid.Rows()-1)
	case key.Matches(msg, k.Left):
		m.col = max(m.col-1, 0)
	case key.Matches(msg, k.Right):
		m.col = min(m.col+1, v.Grid.Columns()-1)
	case key.Matches(msg, k.Toggle):
		err = m.Tracks.ToggleCell(v.ID, m.row, m.col)
	case key.Matches(msg, k.Clear):
		err = m.Tracks.UpdateGrid(v.ID, sequencer.MakeGrid(v.Grid.Notes(), v.Grid.Columns()))
	case key.Matches(msg, k.Mute):
		err = m.adjust(v.ID, func(s sequencer.Settings) sequencer.Settings {
			return sequencer.Settings{Mute: sequencer.Ptr(!s.Muted())}
		})
	case key.Matches(msg, k.VolumeUp), key.Matches(msg, k.VolumeDown):
		step := 3.0
		if key.Matches(msg, k.VolumeDown) {
			step = -step
		}
		err = m.adjust(v.ID, func(s sequencer.Settings) sequencer.Settings {
			return sequencer.Settings{Volume: sequencer.Ptr(min(s.VolumeDB()+step, 6))}
		})
	}
	if err != nil {
		debug.Error("tui", err, "edit %s", v.ID)
		m.status = err.Error()
	}
	return m, nil
}

// adjust patches a track's instrument settings based on its effective ones.
func (m Model) adjust(id sequencer.TrackID, patch func(sequencer.Settings) sequencer.Settings) error {
	snap, err := m.Tracks.GetTrack(id)
	if err != nil {
		return err
	}
	return m.Tracks.UpdateInstrumentSettings(id, patch(snap.Effective))
}

func nextBeatSize(n int) int {
	sizes := sequencer.SupportedSubdivisions
	for i, s := range sizes {
		if s == n {
			return sizes[(i+1)%len(sizes)]
		}
	}
	return sizes[0]
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	playing := m.Session.Playing()
	playState := "STOP"
	if playing {
		playState = "PLAY"
	}
	views := m.Tracks.Views()
	deviceStatus := ""
	if m.controller != "" {
		// the controller's track buttons
		pads := make([]theme.RGB, min(len(views), midi.GridSize))
		for i := range pads {
			pads[i] = theme.TrackColor(i, len(views))
		}
		deviceStatus = "  LP " + widgets.RenderPadRow(pads)
	}
	tpos := m.Session.TransportPosition()
	header := headerStyle.Render(fmt.Sprintf("gridseq  %s  %3.0fbpm  %d:%d%s",
		playState, m.Session.BPM(), tpos.Bar+1, tpos.Beat+1, deviceStatus))
	beat := widgets.RenderBeat(tpos, m.beatSize, playing, m.Theme)

	var playID sequencer.TrackID
	playCol := -1
	if pos, ok := m.Session.Position(); ok && playing {
		if id, ok := m.Session.TrackAt(pos.Loop); ok {
			playID, playCol = id, pos.Beat
		}
	}

	cur, ok := m.current()

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n")
	out.WriteString(beat)
	out.WriteString("\n\n")
	out.WriteString(m.trackList(views, cur.ID, playID))
	out.WriteString("\n\n")

	if ok {
		gv := widgets.GridView{
			Grid:      cur.Grid,
			Color:     m.Theme.Track(m.selected, len(views)),
			CursorRow: m.row,
			CursorCol: m.col,
			PlayCol:   -1,
		}
		if cur.ID == playID {
			gv.PlayCol = playCol
		}
		out.WriteString(widgets.RenderGrid(gv, m.Theme))
	} else {
		out.WriteString(dimStyle.Render("no tracks"))
	}
	out.WriteString("\n")

	failures := m.Tracks.Failures()
	if failures == nil {
		failures = make(map[sequencer.TrackID]error)
	}
	for id, err := range m.declareErrs {
		if _, ok := failures[id]; !ok {
			failures[id] = err
		}
	}
	if len(failures) > 0 {
		ids := make([]string, 0, len(failures))
		for id := range failures {
			ids = append(ids, string(id))
		}
		sort.Strings(ids)
		out.WriteString("\n")
		for _, id := range ids {
			out.WriteString(warnStyle.Render(fmt.Sprintf("%s: %v", id, failures[sequencer.TrackID(id)])))
			out.WriteString("\n")
		}
	}
	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(warnStyle.Render(m.status))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(m.help.View(m.keys))
	return out.String()
}

// trackList is one line naming every track, the selected one bracketed and
// the playing one marked.
func (m Model) trackList(views []sequencer.TrackView, selected, playing sequencer.TrackID) string {
	parts := make([]string, 0, len(views))
	for i, v := range views {
		style := lipgloss.NewStyle().Foreground(m.Theme.Track(i, len(views)))
		name := v.Name
		if snap, err := m.Tracks.GetTrack(v.ID); err == nil && snap.Effective.Muted() {
			name += " (m)"
		}
		if v.ID == playing {
			name = string(m.Theme.Symbols.StepPlayhead) + name
		}
		if v.ID == selected {
			name = "[" + name + "]"
			style = style.Bold(true)
		}
		parts = append(parts, style.Render(name))
	}
	return strings.Join(parts, "  ")
}
