package midi

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// message types
	StatusNoteOff               uint8 = 0b1000 << 4
	StatusNoteOn                uint8 = 0b1001 << 4
	StatusPolyphonicKeyPressure uint8 = 0b1010 << 4 // After-touch
	StatusControlChange         uint8 = 0b1011 << 4
	StatusProgramChange         uint8 = 0b1100 << 4
	StatusChannelPressure       uint8 = 0b1101 << 4 // After-touch
	StatusPitchWheelChange      uint8 = 0b1110 << 4
	StatusSystem                uint8 = 0b1111 << 4
)

// Event is a raw message as delivered by an input source.
type Event []byte

func (e Event) String() string {
	if len(e) == 0 {
		return "empty midi event"
	}
	msg := ""
	for i, v := range e {
		if i > 0 {
			msg += " "
		}
		msg += fmt.Sprintf("0x%02x", v)
	}
	return msg
}

type Kind uint8

const (
	KindUnknown Kind = iota
	KindNoteOn
	KindNoteOff
	KindControlChange
	KindPitchBend
	KindProgramChange
)

func (k Kind) String() string {
	switch k {
	case KindNoteOn:
		return "note-on"
	case KindNoteOff:
		return "note-off"
	case KindControlChange:
		return "control-change"
	case KindPitchBend:
		return "pitch-bend"
	case KindProgramChange:
		return "program-change"
	default:
		return "unknown"
	}
}

// IsNote reports whether kind carries a note name identifier.
func (k Kind) IsNote() bool {
	return k == KindNoteOn || k == KindNoteOff
}

// Envelope is the normalized form of one input occurrence.
type Envelope struct {
	Kind Kind
	// Identifier holds a note name for note kinds and a controller number for control change,
	// it is empty otherwise.
	Identifier string
	Channel    uint8
	Controller uint8
	// Value is normalized to 0.0 - 1.0 range.
	Value float64
	// Sustain is true for note-on (attack) and false for note-off (release).
	Sustain bool
	// Timestamp is relative to the start of the recording that captured the envelope.
	Timestamp time.Duration
	Raw       Event
}

func (e Envelope) String() string {
	switch e.Kind {
	case KindNoteOn, KindNoteOff:
		return fmt.Sprintf("%-8s: %-4s (channel: %2d, value: %.3f)", e.Kind, e.Identifier, e.Channel+1, e.Value)
	case KindControlChange:
		return fmt.Sprintf("%s: %3s, value: %.3f (channel: %2d)", e.Kind, e.Identifier, e.Value, e.Channel+1)
	case KindPitchBend:
		return fmt.Sprintf("%s: %4.0f%% (channel: %2d)", e.Kind, (e.Value*2-1)*100, e.Channel+1)
	case KindProgramChange:
		return fmt.Sprintf("%s: %.3f (channel: %2d)", e.Kind, e.Value, e.Channel+1)
	default:
		return fmt.Sprintf("unexpected envelope: %s", e.Raw)
	}
}

func controllerIdentifier(cc uint8) string {
	return strconv.Itoa(int(cc))
}
