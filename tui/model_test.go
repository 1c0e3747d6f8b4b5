package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gridseq/clock"
	"gridseq/config"
	"gridseq/midi"
	"gridseq/sequencer"
)

type nopSynth struct{}

func (nopSynth) TriggerAttackRelease(sequencer.Note, time.Duration, time.Time) {}
func (nopSynth) Set(sequencer.Settings) error                                  { return nil }
func (nopSynth) Dispose()                                                      {}

type nopEngine struct{}

func (nopEngine) NewSynth(sequencer.Settings) (sequencer.Synth, error) { return nopSynth{}, nil }

func newModel(t *testing.T) (Model, *sequencer.Tracks, *sequencer.Session) {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tp := clock.New(clock.WithClock(func() time.Time { return now }))
	tracks := sequencer.NewTracks(sequencer.Backends{Synths: nopEngine{}})
	err := tracks.Reconcile([]sequencer.TrackSettings{
		sequencer.SynthTrackSettings{ID: "lead", Notes: []sequencer.Note{"E4", "D4", "C4"}, Columns: 4},
		sequencer.SynthTrackSettings{ID: "bass", Name: "Bass", Notes: []sequencer.Note{"C2", "G1"}, Columns: 8},
	})
	if err != nil {
		t.Fatal(err)
	}
	sess := sequencer.NewSession(tracks, sequencer.FromTransport(tp))
	t.Cleanup(sess.Close)
	return NewModel(tracks, sess, nil, nil), tracks, sess
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, msgs ...tea.Msg) Model {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestToggleAtCursor(t *testing.T) {
	m, tracks, _ := newModel(t)

	m = press(m, runes("j"), runes("l"), runes("l"), tea.KeyMsg{Type: tea.KeySpace})
	snap, err := tracks.GetTrack("lead")
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Grid[1][2].Active || snap.Grid.ActiveCount() != 1 {
		t.Errorf("grid = %+v", snap.Grid)
	}

	// cursor stops at the edges
	m = press(m, runes("j"), runes("j"), runes("j"), runes("l"), runes("l"), runes("l"), tea.KeyMsg{Type: tea.KeyEnter})
	snap, _ = tracks.GetTrack("lead")
	if !snap.Grid[2][3].Active {
		t.Error("bottom right cell not toggled")
	}

	press(m, runes("c"))
	snap, _ = tracks.GetTrack("lead")
	if n := snap.Grid.ActiveCount(); n != 0 {
		t.Errorf("%d cells active after clear", n)
	}
}

func TestTrackSelection(t *testing.T) {
	m, tracks, _ := newModel(t)

	m = press(m, tea.KeyMsg{Type: tea.KeyTab}, runes(" "))
	snap, _ := tracks.GetTrack("bass")
	if !snap.Grid[0][0].Active {
		t.Error("tab did not select bass")
	}
	if !strings.Contains(m.View(), "[Bass]") {
		t.Error("bass not marked selected")
	}

	// wraps both ways
	m = press(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.selected != 0 {
		t.Errorf("selected = %d after wrap", m.selected)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.selected != 1 {
		t.Errorf("selected = %d after shift+tab", m.selected)
	}
}

func TestInstrumentKeys(t *testing.T) {
	m, tracks, _ := newModel(t)

	m = press(m, runes("m"))
	snap, _ := tracks.GetTrack("lead")
	if !snap.Effective.Muted() {
		t.Error("m did not mute")
	}
	if !strings.Contains(m.View(), "lead (m)") {
		t.Error("mute not shown")
	}
	press(m, runes("m"))
	snap, _ = tracks.GetTrack("lead")
	if snap.Effective.Muted() {
		t.Error("second m did not unmute")
	}

	press(m, runes("]"))
	snap, _ = tracks.GetTrack("lead")
	if v := snap.Effective.VolumeDB(); v != 3 {
		t.Errorf("volume = %v, want 3", v)
	}
	press(m, runes("]"), runes("]"), runes("]"))
	snap, _ = tracks.GetTrack("lead")
	if v := snap.Effective.VolumeDB(); v != 6 {
		t.Errorf("volume = %v, want capped at 6", v)
	}
	press(m, runes("["))
	snap, _ = tracks.GetTrack("lead")
	if v := snap.Effective.VolumeDB(); v != 3 {
		t.Errorf("volume = %v after [", v)
	}
}

func TestTransportKeys(t *testing.T) {
	m, _, sess := newModel(t)

	if !strings.Contains(m.View(), "STOP") {
		t.Error("not shown stopped")
	}
	m = press(m, runes("p"))
	if !sess.Playing() {
		t.Fatal("p did not start playback")
	}
	if !strings.Contains(m.View(), "PLAY") {
		t.Error("not shown playing")
	}

	bpm := sess.BPM()
	m = press(m, runes("+"))
	if got := sess.BPM(); got != bpm+5 {
		t.Errorf("bpm = %v, want %v", got, bpm+5)
	}
	m = press(m, runes("-"))
	if got := sess.BPM(); got != bpm {
		t.Errorf("bpm = %v, want %v", got, bpm)
	}

	next, cmd := m.Update(runes("q"))
	if sess.Playing() {
		t.Error("q left playback running")
	}
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
	if next.View() != "" {
		t.Error("view drawn after quit")
	}
}

func TestBeatSizeCycles(t *testing.T) {
	m, _, _ := newModel(t)
	seen := []int{m.beatSize}
	for range sequencer.SupportedSubdivisions {
		m = press(m, runes("b"))
		seen = append(seen, m.beatSize)
	}
	if seen[0] != 16 || seen[1] != 32 || seen[2] != 4 || seen[len(seen)-1] != 16 {
		t.Errorf("beat sizes = %v", seen)
	}
}

func TestPositionUpdates(t *testing.T) {
	m, _, _ := newModel(t)

	// the same non-blocking send the session callback does
	cb := func() {
		select {
		case m.updates <- struct{}{}:
		default:
		}
	}
	cb()
	cb() // dropped, not blocking

	msg := ListenForUpdates(m.updates)()
	if _, ok := msg.(UpdateMsg); !ok {
		t.Fatalf("msg = %T", msg)
	}
	_, cmd := m.Update(msg)
	if cmd == nil {
		t.Error("not listening again after an update")
	}
}

func TestDeviceEvents(t *testing.T) {
	m, _, _ := newModel(t)
	var got []midi.Controller
	m.OnController = func(c midi.Controller) { got = append(got, c) }

	m = press(m, DeviceEventMsg{Type: midi.DeviceConnected, ID: "Launchpad X"})
	if len(got) != 1 {
		t.Errorf("OnController called %d times", len(got))
	}
	if !strings.Contains(m.View(), "LP") {
		t.Error("controller not shown")
	}
	m = press(m, DeviceEventMsg{Type: midi.DeviceDisconnected, ID: "Launchpad X"})
	if m.controller != "" {
		t.Error("controller still shown after disconnect")
	}
}

func TestDeclareErrorsShown(t *testing.T) {
	m, _, _ := newModel(t)
	cfg := &config.Config{Tracks: []config.TrackConfig{
		{ID: "lead", Type: config.TrackSynth, Notes: []string{"C4"}},
		{ID: "drums", Type: "drum"},
	}}
	_, err := cfg.Declare()
	if err == nil {
		t.Fatal("expected a declaration error")
	}

	m = m.WithDeclareErrors(err)
	view := m.View()
	if !strings.Contains(view, "drums: unknown track type: drum") {
		t.Errorf("declaration error not shown:\n%s", view)
	}
	if strings.Contains(view, "config:") {
		t.Error("track error listed without its id")
	}

	if m = m.WithDeclareErrors(nil); strings.Contains(m.View(), "drums:") {
		t.Error("cleared error still shown")
	}
}
