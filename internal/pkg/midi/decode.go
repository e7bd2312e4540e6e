package midi

import (
	"errors"
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

var (
	ErrMalformed   = errors.New("malformed midi event")
	ErrUnsupported = errors.New("unsupported midi event")
)

// Decoder turns raw events into envelopes.
type Decoder struct {
	// MiddleC is the octave number used for note 60 when naming notes.
	MiddleC int
}

func NewDecoder(middleC int) Decoder {
	return Decoder{MiddleC: middleC}
}

func expectedLength(status uint8) int {
	switch status {
	case StatusProgramChange, StatusChannelPressure:
		return 2
	default:
		return 3
	}
}

func (d Decoder) validate(raw Event) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformed)
	}
	if raw[0]&0b10000000 == 0 {
		return fmt.Errorf("%w: missing status byte: %s", ErrMalformed, raw)
	}
	status := raw[0] & 0b11110000
	if status == StatusSystem {
		return fmt.Errorf("%w: system message: %s", ErrUnsupported, raw)
	}
	if len(raw) < expectedLength(status) {
		return fmt.Errorf("%w: truncated message: %s", ErrMalformed, raw)
	}
	for _, b := range raw[1:expectedLength(status)] {
		if b&0b10000000 != 0 {
			return fmt.Errorf("%w: invalid data byte: %s", ErrMalformed, raw)
		}
	}
	return nil
}

// Decode normalizes raw event. Malformed events return an error wrapping ErrMalformed,
// well-formed events of kinds that are not routed return an error wrapping ErrUnsupported.
func (d Decoder) Decode(raw Event) (Envelope, error) {
	if err := d.validate(raw); err != nil {
		return Envelope{}, err
	}

	msg := gomidi.Message(raw[:expectedLength(raw[0]&0b11110000)])
	env := Envelope{Raw: raw}

	var channel, key, velocity, controller, value, program uint8
	var relative int16
	var absolute uint16

	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		env.Kind = KindNoteOn
		env.Identifier = NoteName(key, d.MiddleC)
		env.Value = float64(velocity) / 127
		env.Sustain = true
	case msg.GetNoteEnd(&channel, &key): // note-on with zero velocity is a release as well
		env.Kind = KindNoteOff
		env.Identifier = NoteName(key, d.MiddleC)
		if raw[0]&0b11110000 == StatusNoteOff {
			env.Value = float64(raw[2]) / 127
		}
	case msg.GetControlChange(&channel, &controller, &value):
		env.Kind = KindControlChange
		env.Controller = controller
		env.Identifier = controllerIdentifier(controller)
		env.Value = float64(value) / 127
	case msg.GetPitchBend(&channel, &relative, &absolute):
		env.Kind = KindPitchBend
		env.Value = pitchBendValue(relative)
	case msg.GetProgramChange(&channel, &program):
		env.Kind = KindProgramChange
		env.Value = float64(program) / 127
	default:
		return Envelope{}, fmt.Errorf("%w: %s", ErrUnsupported, raw)
	}

	env.Channel = channel
	return env, nil
}

// pitchBendValue maps signed bend into [0, 1] with the centre at exactly 0.5.
func pitchBendValue(relative int16) float64 {
	if relative >= 0 {
		return min(0.5+float64(relative)/8191/2, 1)
	}
	return max(0.5+float64(relative)/8192/2, 0)
}
