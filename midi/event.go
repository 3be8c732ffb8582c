package midi

import (
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDI message types (status byte high nibble)
const (
	NoteOff   uint8 = 0x80
	NoteOn    uint8 = 0x90
	CC        uint8 = 0xB0
	PitchBend uint8 = 0xE0
)

// Event is a raw channel-voice message as it arrived from an input port
type Event struct {
	Type    uint8  // status high nibble: NoteOn, NoteOff, CC, PitchBend, ...
	Channel uint8  // 0-15
	Data1   uint8  // note / controller / bend LSB
	Data2   uint8  // velocity / value / bend MSB
	Source  string // input port name ("" = unknown)
	Time    time.Time
}

// FromMessage converts a gomidi message into an Event.
// Returns false for system messages, which carry no channel.
func FromMessage(msg gomidi.Message, source string, at time.Time) (Event, bool) {
	b := []byte(msg)
	if len(b) == 0 || b[0] < 0x80 || b[0] >= 0xF0 {
		return Event{}, false
	}
	ev := Event{
		Type:    b[0] & 0xF0,
		Channel: b[0] & 0x0F,
		Source:  source,
		Time:    at,
	}
	if len(b) > 1 {
		ev.Data1 = b[1]
	}
	if len(b) > 2 {
		ev.Data2 = b[2]
	}
	return ev, true
}

// Bend returns the 14-bit pitch bend value (msb*128 + lsb)
func (e Event) Bend() uint16 {
	return uint16(e.Data2)<<7 | uint16(e.Data1)
}
