package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDI message types
const (
	NoteOn  uint8 = 0x90
	NoteOff uint8 = 0x80
	CC      uint8 = 0xB0
)

// Controller numbers sent by a voice
const (
	ccVolume        uint8 = 7
	ccAllNotesOff   uint8 = 123
	defaultVelocity uint8 = 100
)

// Event is one message a voice sends to its port.
type Event struct {
	Type     uint8 // NoteOn, NoteOff, CC
	Channel  uint8 // 0-15
	Note     uint8 // note number, or controller number for CC
	Velocity uint8 // velocity, or controller value for CC
}

// Message encodes the event for the wire.
func (e Event) Message() gomidi.Message {
	switch e.Type {
	case NoteOn:
		return gomidi.NoteOn(e.Channel, e.Note, e.Velocity)
	case NoteOff:
		return gomidi.NoteOff(e.Channel, e.Note)
	default:
		return gomidi.ControlChange(e.Channel, e.Note, e.Velocity)
	}
}

// Send writes one message to an output port.
type Send func(msg gomidi.Message) error
