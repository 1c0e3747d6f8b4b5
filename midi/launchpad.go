package midi

import (
	"fmt"
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"gridseq/debug"
)

// Launchpad drives a Novation Launchpad X in programmer mode.
type Launchpad struct {
	id       string
	send     Send
	stopFunc func()
	sent     atomic.Uint64

	padChan chan PadEvent
}

// Programmer-mode setup: switch layout, max brightness, external LED
// feedback.
var launchpadSetup = [][]byte{
	{0x00, 0x20, 0x29, 0x02, 0x0C, 0x00, 0x7F},
	{0x00, 0x20, 0x29, 0x02, 0x0C, 0x08, 0x7F},
	{0x00, 0x20, 0x29, 0x02, 0x0C, 0x0A, 0x01, 0x01},
}

// OpenLaunchpad opens the ports of a Launchpad and puts it in programmer
// mode. Either port may be nil.
func OpenLaunchpad(id string, inPort drivers.In, outPort drivers.Out) (*Launchpad, error) {
	var send Send
	if outPort != nil {
		s, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		send = s
	}
	lp := newLaunchpad(id, send)

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			lp.handle(msg)
		})
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		lp.stopFunc = stop
	}
	return lp, nil
}

func newLaunchpad(id string, send Send) *Launchpad {
	lp := &Launchpad{
		id:      id,
		send:    send,
		padChan: make(chan PadEvent, 32),
	}
	if send != nil {
		for _, sx := range launchpadSetup {
			send(gomidi.SysEx(sx))
		}
	}
	return lp
}

// handle turns an incoming message into a pad press. Releases and
// unmapped notes are dropped, as are presses when the channel is full.
func (lp *Launchpad) handle(msg gomidi.Message) {
	var channel, note, velocity uint8
	var cc, value uint8

	row, col := -1, -1
	switch {
	case msg.GetNoteOn(&channel, &note, &velocity) && velocity > 0:
		row, col = noteToRowCol(note)
	case msg.GetControlChange(&channel, &cc, &value) && value > 0:
		row, col = ccToRowCol(cc)
		velocity = value
	}
	if row < 0 {
		return
	}
	select {
	case lp.padChan <- PadEvent{Row: row, Col: col, Velocity: velocity}:
	default:
	}
}

func (lp *Launchpad) ID() string {
	return lp.id
}

func (lp *Launchpad) PadEvents() <-chan PadEvent {
	return lp.padChan
}

// SetLEDBatch sends one NoteOn per update (SysEx batching had color issues).
func (lp *Launchpad) SetLEDBatch(updates []LEDUpdate) error {
	if lp.send == nil || len(updates) == 0 {
		return nil
	}

	for _, u := range updates {
		note := rowColToNote(u.Row, u.Col)
		color := mapRGBToLaunchpad(u.Color)
		if err := lp.send(gomidi.NoteOn(u.Channel, note, color)); err != nil {
			return fmt.Errorf("set led %d,%d: %w", u.Row, u.Col, err)
		}
	}

	count := lp.sent.Add(uint64(len(updates)))
	if count%100 < uint64(len(updates)) {
		debug.Log("lp-send", "batch count=%d (this batch=%d)", count, len(updates))
	}
	return nil
}

// Launchpad X palette - approximate RGB values for key colors
// Format: {velocity, R, G, B}
var launchpadPalette = [][4]uint8{
	{0, 0, 0, 0},         // off
	{5, 255, 0, 0},       // red
	{6, 255, 80, 80},     // bright red
	{7, 180, 60, 60},     // dim red
	{9, 255, 100, 0},     // orange
	{11, 180, 80, 40},    // dim orange
	{13, 255, 200, 0},    // yellow
	{17, 0, 180, 0},      // green
	{19, 0, 100, 0},      // dim green
	{21, 0, 255, 0},      // bright green
	{37, 0, 200, 200},    // cyan
	{43, 40, 60, 120},    // dim blue
	{45, 0, 100, 255},    // blue
	{47, 80, 150, 255},   // bright blue
	{49, 150, 0, 200},    // purple
	{53, 255, 80, 180},   // pink
	{78, 100, 100, 255},  // light blue
	{84, 255, 150, 50},   // bright orange
	{87, 150, 255, 100},  // lime
	{97, 180, 180, 60},   // dim yellow
	{119, 255, 255, 255}, // white
}

// mapRGBToLaunchpad finds the nearest palette velocity for an RGB value
func mapRGBToLaunchpad(rgb [3]uint8) uint8 {
	bestMatch := uint8(0)
	bestDist := 1 << 30

	r, g, b := int(rgb[0]), int(rgb[1]), int(rgb[2])
	for _, p := range launchpadPalette {
		pr, pg, pb := int(p[1]), int(p[2]), int(p[3])
		dist := (r-pr)*(r-pr) + (g-pg)*(g-pg) + (b-pb)*(b-pb)
		if dist < bestDist {
			bestDist = dist
			bestMatch = p[0]
		}
	}
	return bestMatch
}

// Close darkens every pad and stops listening.
func (lp *Launchpad) Close() error {
	if lp.send != nil {
		var updates []LEDUpdate
		for row := 0; row <= TopRow; row++ {
			for col := 0; col <= SideCol; col++ {
				if row == TopRow && col == SideCol {
					continue // no LED at 8,8
				}
				updates = append(updates, LEDUpdate{Row: row, Col: col})
			}
		}
		lp.SetLEDBatch(updates)
	}
	if lp.stopFunc != nil {
		lp.stopFunc()
	}
	close(lp.padChan)
	return nil
}

// Launchpad X note mapping
// 8x8 Grid:  Row 0 (bottom) = notes 11-18, Row 7 = notes 81-88
// Side col:  Col 8 (right side scene buttons) = notes 19, 29, 39, 49, 59, 69, 79, 89
// Top row:   Row 8 (top control row) = CC 91-98 (handled via CC messages)

func rowColToNote(row, col int) uint8 {
	// Top row uses CC, but for LED control we use notes 91-98
	if row == TopRow {
		return uint8(91 + col)
	}
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	if note >= 91 && note <= 98 {
		return TopRow, int(note - 91)
	}
	row = int(note/10) - 1
	col = int(note%10) - 1
	if row < 0 || row >= GridSize || col < 0 || col > SideCol {
		return -1, -1
	}
	return row, col
}

// ccToRowCol converts CC messages to row/col (for top row buttons)
func ccToRowCol(cc uint8) (row, col int) {
	if cc >= 91 && cc <= 98 {
		return TopRow, int(cc - 91)
	}
	return -1, -1
}
