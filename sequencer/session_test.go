package sequencer

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func activateAll(t *testing.T, tr *Tracks, id TrackID, every int) {
	t.Helper()
	snap, err := tr.GetTrack(id)
	if err != nil {
		t.Fatal(err)
	}
	g := snap.Grid
	for r := range g {
		for c := range g[r] {
			g[r][c].Active = c%every == 0
		}
	}
	if err := tr.UpdateGrid(id, g); err != nil {
		t.Fatal(err)
	}
}

type sessionRig struct {
	now   *testNow
	eng   *fakeEngine
	clk   Transport
	pump  func() int
	regs  func() int
	track *Tracks
	sess  *Session
}

func newRig(t *testing.T, declared ...TrackSettings) *sessionRig {
	t.Helper()
	now := newTestNow()
	tp := newTestTransport(now)
	eng := newFakeEngine(nil)
	tr := NewTracks(eng.backends())
	if err := tr.Reconcile(declared); err != nil {
		t.Fatal(err)
	}
	r := &sessionRig{
		now:   now,
		eng:   eng,
		clk:   FromTransport(tp),
		pump:  tp.Pump,
		regs:  tp.Registrations,
		track: tr,
	}
	r.sess = NewSession(tr, r.clk)
	return r
}

func TestSessionTakesTurns(t *testing.T) {
	r := newRig(t,
		synthTrack("lead", "C4"),
		drumTrack("drums", SampleSource{"kick", "k.wav"}),
	)
	activateAll(t, r.track, "lead", 1)
	activateAll(t, r.track, "drums", 2)

	var last GridPosition
	r.sess.OnPosition(func(p GridPosition) { last = p })
	if err := r.sess.Play(); err != nil {
		t.Fatal(err)
	}

	// first measure belongs to lead: four quarter steps
	r.now.Set(1900 * time.Millisecond)
	r.pump()
	if n := r.eng.synth(0).playedCount(); n != 4 {
		t.Errorf("lead played %d, want 4", n)
	}
	if n := len(r.eng.bank(0).startedURLs()); n != 0 {
		t.Errorf("drums played %d during lead's measure", n)
	}

	// second measure belongs to drums: eight steps, every other active
	r.now.Set(3900 * time.Millisecond)
	r.pump()
	if n := len(r.eng.bank(0).startedURLs()); n != 4 {
		t.Errorf("drums played %d, want 4", n)
	}
	if n := r.eng.synth(0).playedCount(); n != 4 {
		t.Errorf("lead kept playing: %d", n)
	}

	pos, ok := r.sess.Position()
	if !ok || pos != last || pos.Loop != 1 || pos.Beat != 0 {
		t.Errorf("position = %+v (%v), last reported %+v", pos, ok, last)
	}
	if id, ok := r.sess.TrackAt(pos.Loop); !ok || id != "drums" {
		t.Errorf("TrackAt(%d) = %q", pos.Loop, id)
	}

	r.sess.Stop()
	if r.regs() != 0 {
		t.Errorf("%d registrations after stop", r.regs())
	}
	r.now.Set(10 * time.Second)
	if n := r.pump(); n != 0 {
		t.Errorf("%d callbacks after stop", n)
	}
	if _, ok := r.sess.Position(); ok {
		t.Error("position kept after stop")
	}
}

func TestSessionLiveGridEdit(t *testing.T) {
	r := newRig(t, synthTrack("lead", "C4"))
	if err := r.sess.Play(); err != nil {
		t.Fatal(err)
	}
	r.now.Set(1900 * time.Millisecond)
	r.pump()
	if n := r.eng.synth(0).playedCount(); n != 0 {
		t.Fatalf("empty grid played %d", n)
	}

	regs := r.regs()
	if err := r.track.ToggleCell("lead", 0, 0); err != nil {
		t.Fatal(err)
	}
	if r.regs() != regs {
		t.Error("same-shape edit re-armed the schedule")
	}

	r.now.Set(3900 * time.Millisecond)
	r.pump()
	if n := r.eng.synth(0).playedCount(); n != 1 {
		t.Errorf("played %d after toggle, want 1", n)
	}
}

func TestSessionConcurrentEdits(t *testing.T) {
	r := newRig(t, synthTrack("lead", "C4", "E4"))
	if err := r.sess.Play(); err != nil {
		t.Fatal(err)
	}
	liveGrid := func() NoteGrid {
		r.sess.mu.Lock()
		defer r.sess.mu.Unlock()
		return r.sess.sched.Loops[0].Grid()
	}

	// each cell flipped an odd number of times ends up on
	var wg sync.WaitGroup
	for row := 0; row < 2; row++ {
		row := row
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 201; k++ {
				if err := r.track.ToggleCell("lead", row, row); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	snap, _ := r.track.GetTrack("lead")
	if snap.Grid.ActiveCount() != 2 || !snap.Grid[0][0].Active || !snap.Grid[1][1].Active {
		t.Errorf("lost toggles: %+v", snap.Grid)
	}
	if got := liveGrid(); fmt.Sprint(got) != fmt.Sprint(snap.Grid) {
		t.Errorf("scheduled grid %+v, cached %+v", got, snap.Grid)
	}

	// whole-grid writes racing toggles still leave both copies equal
	full := snap.Grid.Clone()
	for row := range full {
		for c := range full[row] {
			full[row][c].Active = true
		}
	}
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				if i == 0 {
					r.track.UpdateGrid("lead", full)
				} else {
					r.track.ToggleCell("lead", 0, 3)
				}
			}
		}()
	}
	wg.Wait()

	snap, _ = r.track.GetTrack("lead")
	if got := liveGrid(); fmt.Sprint(got) != fmt.Sprint(snap.Grid) {
		t.Errorf("scheduled grid %+v, cached %+v", got, snap.Grid)
	}
}

func TestSessionReconcileWhilePlaying(t *testing.T) {
	r := newRig(t, synthTrack("a", "C4"), synthTrack("b", "C4"))
	activateAll(t, r.track, "a", 1)
	activateAll(t, r.track, "b", 1)
	if err := r.sess.Play(); err != nil {
		t.Fatal(err)
	}
	r.now.Set(1900 * time.Millisecond)
	r.pump()

	if err := r.track.Reconcile([]TrackSettings{synthTrack("b", "C4")}); err != nil {
		t.Fatal(err)
	}
	// b is unchanged and keeps its cells
	r.now.Set(3900 * time.Millisecond)
	r.pump()

	a, b := r.eng.synth(0), r.eng.synth(1)
	if a.disposeCount() != 1 {
		t.Errorf("removed track disposed %d times", a.disposeCount())
	}
	if a.lateHits != 0 {
		t.Errorf("%d triggers reached a disposed synth", a.lateHits)
	}
	if a.playedCount() != 4 {
		t.Errorf("a played %d, want 4", a.playedCount())
	}
	if b.playedCount() != 4 {
		t.Errorf("b played %d after re-arm, want 4", b.playedCount())
	}
	if id, ok := r.sess.TrackAt(0); !ok || id != "b" {
		t.Errorf("lane 0 = %q after re-arm", id)
	}
}

func TestSessionCloseClearsBeforeDispose(t *testing.T) {
	r := newRig(t, synthTrack("a", "C4", "E4"))
	activateAll(t, r.track, "a", 1)

	live := -1
	r.eng.onSynthDispose = func() {
		if live < 0 {
			live = r.regs()
		}
	}
	if err := r.sess.Play(); err != nil {
		t.Fatal(err)
	}
	r.now.Set(time.Second)
	r.pump()

	r.sess.Close()
	if live != 0 {
		t.Errorf("%d registrations live when the first instrument was disposed", live)
	}
	for i := 0; i < 2; i++ {
		if r.eng.synth(i).disposeCount() != 1 {
			t.Errorf("synth %d disposed %d times", i, r.eng.synth(i).disposeCount())
		}
	}
	r.now.Set(10 * time.Second)
	if n := r.pump(); n != 0 {
		t.Errorf("%d callbacks after close", n)
	}
	if err := r.sess.Play(); err == nil {
		t.Error("play after close succeeded")
	}
}

func TestSessionEmptyAndTempo(t *testing.T) {
	r := newRig(t)
	r.sess.SetBPM(90)
	if r.sess.BPM() != 90 {
		t.Errorf("bpm = %v", r.sess.BPM())
	}
	if err := r.sess.Play(); err != nil {
		t.Fatal(err)
	}
	if !r.sess.Playing() || r.regs() != 0 {
		t.Errorf("playing=%v regs=%d", r.sess.Playing(), r.regs())
	}

	// a track declared while playing joins at the next measure
	if err := r.track.Reconcile([]TrackSettings{synthTrack("late", "C4")}); err != nil {
		t.Fatal(err)
	}
	if r.regs() != 2 {
		t.Errorf("regs = %d after late track, want master and one loop", r.regs())
	}
	if r.sess.BPM() != 90 {
		t.Errorf("re-arm changed tempo to %v", r.sess.BPM())
	}
	r.sess.Close()
}
