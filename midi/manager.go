package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"gridseq/debug"
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// portPair is an input port and its matching output, found by name.
type portPair struct {
	id  string
	in  drivers.In
	out drivers.Out
}

// DeviceManager handles hot-plug detection of grid controllers
type DeviceManager struct {
	controllers map[string]Controller
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration
	match       func(name string) bool

	list func() ([]portPair, bool)
	open func(p portPair) (Controller, error)
}

// NewDeviceManager creates a manager that opens every port pair whose name
// contains one of the given substrings (case-insensitive). With no names
// it looks for Launchpads.
func NewDeviceManager(names ...string) *DeviceManager {
	if len(names) == 0 {
		names = []string{"launchpad"}
	}
	match := func(name string) bool {
		name = strings.ToLower(name)
		if !strings.Contains(name, "midi") {
			return false
		}
		for _, n := range names {
			if strings.Contains(name, strings.ToLower(n)) {
				return true
			}
		}
		return false
	}
	return &DeviceManager{
		controllers: make(map[string]Controller),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
		match:       match,
		list:        listPorts,
		open: func(p portPair) (Controller, error) {
			return OpenLaunchpad(p.id, p.in, p.out)
		},
	}
}

// Events returns a channel of device connect/disconnect events. Events are
// dropped when nobody keeps up with them.
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		out[k] = v
	}
	return out
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	dm.scan()
	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

// listPorts pairs inputs with same-named outputs. CoreMIDI can hang while
// listing; a listing slower than three seconds is abandoned.
func listPorts() ([]portPair, bool) {
	type portsResult struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	var res portsResult
	select {
	case res = <-ch:
	case <-time.After(3 * time.Second):
		// User needs to run: sudo killall coreaudiod midiserver
		debug.Warn("midi", "port listing timed out")
		return nil, false
	}

	pairs := make([]portPair, 0, len(res.ins))
	for _, in := range res.ins {
		p := portPair{id: in.String(), in: in}
		for _, out := range res.outs {
			if strings.EqualFold(out.String(), in.String()) {
				p.out = out
				break
			}
		}
		pairs = append(pairs, p)
	}
	return pairs, true
}

func (dm *DeviceManager) scan() {
	pairs, ok := dm.list()
	if !ok {
		return
	}

	var events []DeviceEvent
	seen := make(map[string]bool)
	for _, p := range pairs {
		if !dm.match(p.id) {
			continue
		}
		seen[p.id] = true

		dm.mu.RLock()
		_, exists := dm.controllers[p.id]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		c, err := dm.open(p)
		if err != nil {
			debug.Error("midi", err, "open controller %s", p.id)
			continue
		}
		dm.mu.Lock()
		dm.controllers[p.id] = c
		dm.mu.Unlock()
		events = append(events, DeviceEvent{Type: DeviceConnected, Controller: c, ID: p.id})
	}

	dm.mu.Lock()
	for id, c := range dm.controllers {
		if seen[id] {
			continue
		}
		c.Close()
		delete(dm.controllers, id)
		events = append(events, DeviceEvent{Type: DeviceDisconnected, ID: id})
	}
	dm.mu.Unlock()

	for _, ev := range events {
		select {
		case dm.events <- ev:
		default:
			debug.Warn("midi", "device event for %s dropped", ev.ID)
		}
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}
