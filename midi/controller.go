package midi

// PadEvent is sent when a pad/button is pressed on a grid controller
type PadEvent struct {
	Row, Col int
	Velocity uint8
}

// LEDUpdate sets one pad's light.
type LEDUpdate struct {
	Row, Col int
	Color    [3]uint8
	Channel  uint8 // ChannelStatic, ChannelFlash or ChannelPulse
}

// Controller is a grid control surface.
type Controller interface {
	ID() string

	// PadEvents is closed when the controller is.
	PadEvents() <-chan PadEvent

	// SetLEDBatch lights several pads at once.
	SetLEDBatch(updates []LEDUpdate) error

	Close() error
}

// Channel modes for LEDUpdate
const (
	ChannelStatic uint8 = 0 // solid color
	ChannelFlash  uint8 = 1 // flashing A/B alternating
	ChannelPulse  uint8 = 2 // pulsing (fades)
)

// Grid geometry shared by Launchpad-style surfaces: an 8x8 pad grid, a top
// row of buttons (row 8) and a right column of scene buttons (col 8).
const (
	GridSize = 8
	TopRow   = 8
	SideCol  = 8
)
