package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDI message types
const (
	NoteOn  uint8 = 0x90
	NoteOff uint8 = 0x80
	CC      uint8 = 0xB0
)

// Event is one channel message produced for a cue
type Event struct {
	Type    uint8 // NoteOn, NoteOff, CC
	Channel uint8 // 0-15 on the wire
	Data1   uint8 // note or controller
	Data2   uint8 // velocity or value
}

// Message encodes e for gomidi
func (e Event) Message() gomidi.Message {
	switch e.Type {
	case NoteOn:
		return gomidi.NoteOn(e.Channel, e.Data1, e.Data2)
	case NoteOff:
		return gomidi.NoteOff(e.Channel, e.Data1)
	default:
		return gomidi.ControlChange(e.Channel, e.Data1, e.Data2)
	}
}

func (e Event) String() string {
	switch e.Type {
	case NoteOn:
		return fmt.Sprintf("ch%d note-on %d vel %d", e.Channel+1, e.Data1, e.Data2)
	case NoteOff:
		return fmt.Sprintf("ch%d note-off %d", e.Channel+1, e.Data1)
	default:
		return fmt.Sprintf("ch%d cc%d=%d", e.Channel+1, e.Data1, e.Data2)
	}
}

func clamp7(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}
