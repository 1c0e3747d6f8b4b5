package sequencer

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"gridseq/debug"
)

// TrackView is the derived state of one live track: what was declared plus
// the live grid.
type TrackView struct {
	ID       TrackID
	Name     string
	Kind     TrackKind
	Settings TrackSettings
	Grid     NoteGrid
}

// TrackSnapshot is a read-only copy of a track for settings UIs.
type TrackSnapshot struct {
	TrackView
	Effective   Settings
	Instruments []InstrumentInfo
}

// Hooks let the session keep the schedule in step with the caches. They are
// called without the Tracks lock held, in the order BeforeDispose, then
// disposal, then LayoutChanged.
type Hooks struct {
	// BeforeDispose must stop every callback that could reach an
	// instrument about to be disposed.
	BeforeDispose func()
	// LayoutChanged reports that tracks or grid shapes changed.
	LayoutChanged func()
	// GridUpdated reports a same-shaped grid edit.
	GridUpdated func(id TrackID, g NoteGrid)
}

// lane is one schedulable track: its grid and instruments.
type lane struct {
	id          TrackID
	grid        NoteGrid
	instruments []Instrument
}

// Tracks is the single owner of every live track's grid and instruments.
type Tracks struct {
	backends Backends

	mu        sync.RWMutex
	slots     map[TrackID]*trackSlot
	order     []TrackID
	signature string
	failures  map[TrackID]error
	closed    bool

	// held from a grid write through its hook delivery
	editMu sync.Mutex
	// serializes Reconcile, which builds instruments outside mu
	reconcileMu sync.Mutex

	hooksMu sync.RWMutex
	hooks   Hooks
}

// NewTracks creates an empty track state building instruments with b.
func NewTracks(b Backends) *Tracks {
	return &Tracks{
		backends: b,
		slots:    make(map[TrackID]*trackSlot),
		failures: make(map[TrackID]error),
	}
}

// SetHooks installs the session callbacks.
func (t *Tracks) SetHooks(h Hooks) {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()
	t.hooks = h
}

func (t *Tracks) getHooks() Hooks {
	t.hooksMu.RLock()
	defer t.hooksMu.RUnlock()
	return t.hooks
}

// signatureOf is the content signature of a declaration list: equal
// content gives an equal signature whatever the slice identity.
func signatureOf(declared []TrackSettings) (string, error) {
	type entry struct {
		Kind     TrackKind
		Settings TrackSettings
	}
	entries := make([]entry, len(declared))
	for i, ts := range declared {
		if ts == nil {
			return "", &UnknownTrackTypeError{Type: "<nil>"}
		}
		entries[i] = entry{Kind: ts.Kind(), Settings: ts}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("track signature: %w", err)
	}
	return string(b), nil
}

// trackPlan is one declared track on its way through Reconcile.
type trackPlan struct {
	ts  TrackSettings
	dup bool

	slot    *trackSlot // existing slot of the same kind
	base    slotBase
	pending pendingSync
	fresh   *trackSlot
	err     error
}

// Reconcile brings the caches in line with the declared tracks. Tracks that
// fail are left out and reported; their siblings are unaffected. The
// returned error joins one *TrackError per failed track.
//
// Instruments and sample banks are built without the cache lock, so grid
// edits and views keep working while samples decode. Reconciles are
// serialized among themselves.
func (t *Tracks) Reconcile(declared []TrackSettings) error {
	sig, err := signatureOf(declared)
	if err != nil {
		return err
	}

	t.reconcileMu.Lock()
	defer t.reconcileMu.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("tracks closed")
	}
	// failed tracks are retried even when nothing changed
	if sig == t.signature && len(t.failures) == 0 {
		t.mu.Unlock()
		return nil
	}
	plans := make([]trackPlan, len(declared))
	seen := make(map[TrackID]bool, len(declared))
	for i, ts := range declared {
		id := ts.TrackID()
		plans[i].ts = ts
		if seen[id] {
			plans[i].dup = true
			plans[i].err = &DuplicateTrackError{ID: id}
			continue
		}
		seen[id] = true
		if slot, ok := t.slots[id]; ok && slot.kind == ts.Kind() {
			plans[i].slot = slot
			plans[i].base = slot.base()
		}
	}
	t.mu.Unlock()

	for i := range plans {
		p := &plans[i]
		switch {
		case p.err != nil:
		case p.slot == nil:
			p.fresh, p.err = newSlot(t.backends, p.ts)
		default:
			p.pending, p.err = p.slot.prepare(t.backends, p.ts, p.base)
		}
	}

	var (
		errs     []error
		removed  []Instrument
		dropped  []*trackSlot
		reapply  []*trackPlan
		layout   bool
		order    []TrackID
		failures = make(map[TrackID]error)
	)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		for _, p := range plans {
			switch {
			case p.fresh != nil:
				p.fresh.dispose()
			case p.slot != nil && p.err == nil:
				p.pending.discard()
			}
		}
		return errors.New("tracks closed")
	}

	for i := range plans {
		p := &plans[i]
		id := p.ts.TrackID()
		if p.err != nil {
			failures[id] = p.err
			errs = append(errs, &TrackError{ID: id, Err: p.err})
			if old, ok := t.slots[id]; ok && !p.dup {
				dropped = append(dropped, old)
				delete(t.slots, id)
				layout = true
			}
			continue
		}

		if p.fresh != nil {
			if old, ok := t.slots[id]; ok {
				// a different kind of track under the same id is a new track
				dropped = append(dropped, old)
			}
			t.slots[id] = p.fresh
			layout = true
			order = append(order, id)
			continue
		}

		d := p.slot.commit(p.pending)
		removed = append(removed, d.removed...)
		layout = layout || d.layout
		order = append(order, id)
		if !p.slot.override.Equal(p.base.override) {
			// an override arrived while the instruments were built
			p.base = p.slot.base()
			reapply = append(reapply, p)
		}
	}

	for id, slot := range t.slots {
		if !seen[id] {
			dropped = append(dropped, slot)
			delete(t.slots, id)
		}
	}
	if len(dropped) > 0 || !slices.Equal(order, t.order) {
		layout = true
	}

	t.order = order
	t.signature = sig
	t.failures = failures
	t.mu.Unlock()

	for _, p := range reapply {
		if err := p.slot.applyDeclared(p.ts, p.base.rows, p.base.override); err != nil {
			debug.Error("seq", err, "re-apply settings for %s", p.ts.TrackID())
		}
	}
	if len(errs) > 0 {
		debug.Warn("seq", "reconcile: %d of %d tracks failed", len(errs), len(declared))
	}
	t.release(removed, dropped, layout)
	return errors.Join(errs...)
}

// release runs the hooks and disposes what a mutation dropped, in the order
// that keeps triggers off disposed instruments.
func (t *Tracks) release(removed []Instrument, dropped []*trackSlot, layout bool) {
	h := t.getHooks()
	if len(removed) > 0 || len(dropped) > 0 {
		if h.BeforeDispose != nil {
			h.BeforeDispose()
		}
		disposeAll(removed)
		for _, s := range dropped {
			s.dispose()
		}
		debug.Log("seq", "disposed %d instruments, %d tracks", len(removed), len(dropped))
		layout = true
	}
	if layout && h.LayoutChanged != nil {
		h.LayoutChanged()
	}
}

// UpdateGrid replaces a track's grid. The row count must match the track;
// a different column count re-arms playback with the new step size.
func (t *Tracks) UpdateGrid(id TrackID, g NoteGrid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	return t.editGrid(id, "update grid", func(NoteGrid) (NoteGrid, error) { return g, nil })
}

// ToggleCell flips one cell of a track's grid.
func (t *Tracks) ToggleCell(id TrackID, row, col int) error {
	return t.editGrid(id, "toggle", func(cur NoteGrid) (NoteGrid, error) { return cur.Toggle(row, col) })
}

// editGrid computes the new grid from the cached one under the write lock
// and hands it to the session before the next edit starts, so concurrent
// editors never lose a change and the schedule sees edits in cache order.
func (t *Tracks) editGrid(id TrackID, op string, edit func(NoteGrid) (NoteGrid, error)) error {
	t.editMu.Lock()
	defer t.editMu.Unlock()

	t.mu.Lock()
	slot, ok := t.slots[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%s %q: %w", op, id, ErrUnknownTrack)
	}
	g, err := edit(slot.grid)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if g.Rows() != slot.grid.Rows() {
		t.mu.Unlock()
		return fmt.Errorf("%s %q: %d rows, track has %d: %w", op, id, g.Rows(), slot.grid.Rows(), ErrGridShape)
	}
	if g.Rows() > 0 && g.Columns() == 0 {
		t.mu.Unlock()
		return fmt.Errorf("%s %q: %w", op, id, ErrEmptyGrid)
	}
	layout := g.Columns() != slot.grid.Columns()
	slot.grid = g.Clone()
	snapshot := slot.grid.Clone()
	t.mu.Unlock()

	h := t.getHooks()
	switch {
	case layout && h.LayoutChanged != nil:
		h.LayoutChanged()
	case !layout && h.GridUpdated != nil:
		h.GridUpdated(id, snapshot)
	}
	return nil
}

// UpdateInstrumentSettings records patch as a live override for the track
// and applies it to every instrument of the track.
func (t *Tracks) UpdateInstrumentSettings(id TrackID, patch Settings) error {
	t.mu.Lock()
	slot, ok := t.slots[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("update settings %q: %w", id, ErrUnknownTrack)
	}
	if err := slot.checkPatch(patch); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("update settings %q: %w", id, err)
	}
	slot.override = slot.override.Merge(patch)
	insts := append([]Instrument(nil), slot.instruments...)
	t.mu.Unlock()

	var errs []error
	for _, inst := range insts {
		if err := inst.UpdateSettings(patch); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return &TrackError{ID: id, Err: err}
	}
	return nil
}

// GetTrack returns a snapshot of one track.
func (t *Tracks) GetTrack(id TrackID) (TrackSnapshot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	slot, ok := t.slots[id]
	if !ok {
		return TrackSnapshot{}, fmt.Errorf("get track %q: %w", id, ErrUnknownTrack)
	}
	snap := TrackSnapshot{
		TrackView:   slot.view(),
		Effective:   slot.effective(),
		Instruments: make([]InstrumentInfo, len(slot.instruments)),
	}
	for i, inst := range slot.instruments {
		snap.Instruments[i] = inst.Identify()
	}
	return snap, nil
}

// Views returns every live track in declaration order.
func (t *Tracks) Views() []TrackView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	views := make([]TrackView, 0, len(t.order))
	for _, id := range t.order {
		views = append(views, t.slots[id].view())
	}
	return views
}

// IDs returns the live track ids in declaration order.
func (t *Tracks) IDs() []TrackID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]TrackID(nil), t.order...)
}

// Failures returns the error of every track the last Reconcile left out.
func (t *Tracks) Failures() map[TrackID]error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.failures)
}

// lanes returns the schedulable tracks: those with at least one row.
func (t *Tracks) lanes() []lane {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []lane
	for _, id := range t.order {
		s := t.slots[id]
		if s.grid.Rows() == 0 || s.grid.Columns() == 0 {
			continue
		}
		out = append(out, lane{
			id:          id,
			grid:        s.grid.Clone(),
			instruments: append([]Instrument(nil), s.instruments...),
		})
	}
	return out
}

// Close disposes every track. The BeforeDispose hook runs first.
func (t *Tracks) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	dropped := make([]*trackSlot, 0, len(t.slots))
	for _, id := range t.order {
		dropped = append(dropped, t.slots[id])
	}
	clear(t.slots)
	t.order = nil
	t.signature = ""
	t.mu.Unlock()

	h := t.getHooks()
	if h.BeforeDispose != nil {
		h.BeforeDispose()
	}
	for _, s := range dropped {
		s.dispose()
	}
	debug.Log("seq", "closed %d tracks", len(dropped))
}
