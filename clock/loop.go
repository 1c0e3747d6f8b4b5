package clock

import "time"

// Loop is a repeating unit that only fires between Start and Stop. It keeps
// its registration across transport stops; Start arms it again.
type Loop struct {
	t  *Transport
	id Handle
}

// NewLoop registers a disarmed loop that fires every subdivision once started.
func (t *Transport) NewLoop(cb Callback, every Subdivision) *Loop {
	h := t.ScheduleRepeat(cb, every, 0)

	t.mu.Lock()
	r := t.regs[h]
	r.loop = true
	r.armed = false
	t.mu.Unlock()

	return &Loop{t: t, id: h}
}

// Start arms the loop with its first firing at the tick nearest to at.
// Restarting a running loop moves it to the new start.
func (l *Loop) Start(at time.Time) {
	t := l.t
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.regs[l.id]
	if !ok {
		return
	}
	r.start = t.timeToTick(at)
	r.n = 0
	r.hasStop = false
	r.armed = true
	r.gen++
}

// Stop prevents firings at or after the tick nearest to at.
func (l *Loop) Stop(at time.Time) {
	t := l.t
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.regs[l.id]
	if !ok {
		return
	}
	r.stop = t.timeToTick(at)
	r.hasStop = true
}

// Dispose clears the loop's registration.
func (l *Loop) Dispose() {
	l.t.Clear(l.id)
}

// Handle returns the loop's registration handle.
func (l *Loop) Handle() Handle {
	return l.id
}
