package sequencer

import (
	"errors"
	"sync"
	"sync/atomic"

	"gridseq/clock"
	"gridseq/debug"
)

// Session is the playback context: it owns the transport, arms a schedule
// over the live tracks and keeps it in step with edits.
type Session struct {
	tracks *Tracks
	clk    Transport

	mu      sync.Mutex
	sched   *Schedule
	laneIDs []TrackID
	laneOf  map[TrackID]int
	playing bool
	closed  bool

	// read from clock callbacks, so never behind mu
	pos        atomic.Pointer[GridPosition]
	onPosition atomic.Pointer[func(GridPosition)]
}

// NewSession binds a session to tracks and installs the track hooks.
func NewSession(tracks *Tracks, clk Transport) *Session {
	s := &Session{tracks: tracks, clk: clk}
	tracks.SetHooks(Hooks{
		BeforeDispose: s.disarm,
		LayoutChanged: s.rearm,
		GridUpdated:   s.gridUpdated,
	})
	return s
}

// OnPosition sets the callback run on every step with the new playhead.
// It runs on the clock goroutine and must not block.
func (s *Session) OnPosition(fn func(GridPosition)) {
	if fn == nil {
		s.onPosition.Store(nil)
		return
	}
	s.onPosition.Store(&fn)
}

func (s *Session) report(p GridPosition) {
	s.pos.Store(&p)
	if fn := s.onPosition.Load(); fn != nil {
		(*fn)(p)
	}
}

// Position returns the last reported playhead; ok is false before the
// first step.
func (s *Session) Position() (GridPosition, bool) {
	p := s.pos.Load()
	if p == nil {
		return GridPosition{}, false
	}
	return *p, true
}

// TransportPosition returns the transport's bar/beat/sixteenth.
func (s *Session) TransportPosition() clock.Position {
	return s.clk.Position()
}

// TrackAt maps a loop index from a GridPosition to its track.
func (s *Session) TrackAt(loop int) (TrackID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loop < 0 || loop >= len(s.laneIDs) {
		return "", false
	}
	return s.laneIDs[loop], true
}

// Playing reports whether the session is playing.
func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// BPM returns the transport tempo.
func (s *Session) BPM() float64 {
	return s.clk.BPM()
}

// Play arms a schedule over the current tracks and starts the transport.
// With no playable tracks the transport still runs; tracks added later are
// picked up by the next re-arm.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session closed")
	}
	if s.playing {
		return nil
	}
	if err := s.armLocked(); err != nil {
		return err
	}
	s.clk.Start()
	s.playing = true
	debug.Log("seq", "play: %d lanes at %.0f bpm", len(s.laneIDs), s.clk.BPM())
	return nil
}

// Stop halts the transport and clears the schedule.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	s.clk.Stop()
	s.disarmLocked()
	s.playing = false
	s.pos.Store(nil)
	debug.Log("seq", "stop")
}

// Toggle plays when stopped and stops when playing.
func (s *Session) Toggle() error {
	if s.Playing() {
		s.Stop()
		return nil
	}
	return s.Play()
}

// SetBPM changes the tempo. Step lengths are fixed when a schedule is
// built, so a playing schedule is re-armed.
func (s *Session) SetBPM(bpm float64) {
	s.clk.SetBPM(bpm)
	s.rearm()
}

// Close clears every clock registration, then disposes every track.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.playing {
		s.clk.Stop()
		s.playing = false
	}
	s.disarmLocked()
	s.mu.Unlock()

	s.tracks.Close()
}

func (s *Session) armLocked() error {
	lanes := s.tracks.lanes()
	s.laneIDs = make([]TrackID, len(lanes))
	s.laneOf = make(map[TrackID]int, len(lanes))
	if len(lanes) == 0 {
		return nil
	}

	settings := GridScheduleSettings{
		Grids:            make([]NoteGrid, len(lanes)),
		Instruments:      make([][]Instrument, len(lanes)),
		BPM:              s.clk.BPM(),
		OnPositionChange: s.report,
	}
	for i, l := range lanes {
		settings.Grids[i] = l.grid
		settings.Instruments[i] = l.instruments
		s.laneIDs[i] = l.id
		s.laneOf[l.id] = i
	}

	sched, err := ScheduleGrid(s.clk, settings)
	if err != nil {
		s.laneIDs = nil
		s.laneOf = nil
		return err
	}
	s.sched = sched
	return nil
}

func (s *Session) disarmLocked() {
	if s.sched != nil {
		s.sched.Cancel()
		s.sched = nil
	}
}

func (s *Session) disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

// rearm rebuilds the schedule from the current tracks while playing.
func (s *Session) rearm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	s.disarmLocked()
	if err := s.armLocked(); err != nil {
		debug.Error("seq", err, "re-arm failed")
	}
}

func (s *Session) gridUpdated(id TrackID, g NoteGrid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return
	}
	i, ok := s.laneOf[id]
	if !ok {
		return
	}
	if err := s.sched.UpdateGrid(i, g); err != nil {
		debug.Error("seq", err, "live grid swap for %s", id)
	}
}
