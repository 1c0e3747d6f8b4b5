package midi

import (
	"fmt"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Outputs opens output ports by name on first use and keeps them open.
type Outputs struct {
	mu      sync.RWMutex
	senders map[string]Send

	// ports lists the available outputs; swapped in tests
	ports func() []drivers.Out
}

// NewOutputs creates an empty port cache over the registered driver.
func NewOutputs() *Outputs {
	return &Outputs{
		senders: make(map[string]Send),
		ports:   func() []drivers.Out { return gomidi.GetOutPorts() },
	}
}

// Sender returns a sender for the named port, opening it if needed. The
// name matches a port exactly, or failing that as a case-insensitive
// substring, so "iac" finds "IAC Driver Bus 1".
func (o *Outputs) Sender(name string) (Send, error) {
	o.mu.RLock()
	if s, ok := o.senders[name]; ok {
		o.mu.RUnlock()
		return s, nil
	}
	o.mu.RUnlock()

	o.mu.Lock()
	defer o.mu.Unlock()

	// Double-check after acquiring write lock
	if s, ok := o.senders[name]; ok {
		return s, nil
	}

	port := findPort(o.ports(), name)
	if port == nil {
		return nil, fmt.Errorf("no MIDI output matching %q", name)
	}
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", port, err)
	}
	o.senders[name] = send
	return send, nil
}

func findPort(ports []drivers.Out, name string) drivers.Out {
	for _, p := range ports {
		if p.String() == name {
			return p
		}
	}
	want := strings.ToLower(name)
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.String()), want) {
			return p
		}
	}
	return nil
}

// PortNames lists the outputs the driver currently sees.
func PortNames() []string {
	var names []string
	for _, p := range gomidi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}
