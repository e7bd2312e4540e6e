package midi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
)

func TestDecode(t *testing.T) {
	d := NewDecoder(DefaultMiddleC)

	for _, tc := range []struct {
		name       string
		raw        Event
		kind       Kind
		identifier string
		channel    uint8
		value      float64
		sustain    bool
	}{
		{
			name: "note on", raw: Event(gomidi.NoteOn(0, 60, 127)),
			kind: KindNoteOn, identifier: "C4", value: 1, sustain: true,
		},
		{
			name: "note on other channel", raw: Event(gomidi.NoteOn(9, 61, 0x40)),
			kind: KindNoteOn, identifier: "C#4", channel: 9, value: 64.0 / 127, sustain: true,
		},
		{
			name: "note off", raw: Event(gomidi.NoteOff(0, 72)),
			kind: KindNoteOff, identifier: "C5", value: 0, sustain: false,
		},
		{
			name: "note on zero velocity", raw: Event{StatusNoteOn, 48, 0},
			kind: KindNoteOff, identifier: "C3", value: 0, sustain: false,
		},
		{
			name: "control change", raw: Event(gomidi.ControlChange(2, 74, 127)),
			kind: KindControlChange, identifier: "74", channel: 2, value: 1,
		},
		{
			name: "pitch bend max", raw: Event(gomidi.Pitchbend(0, 8191)),
			kind: KindPitchBend, value: 1,
		},
		{
			name: "pitch bend min", raw: Event(gomidi.Pitchbend(0, -8192)),
			kind: KindPitchBend, value: 0,
		},
		{
			name: "program change", raw: Event(gomidi.ProgramChange(0, 127)),
			kind: KindProgramChange, value: 1,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env, err := d.Decode(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, env.Kind)
			assert.Equal(t, tc.identifier, env.Identifier)
			assert.Equal(t, tc.channel, env.Channel)
			assert.InDelta(t, tc.value, env.Value, 0.0001)
			assert.Equal(t, tc.sustain, env.Sustain)
			assert.Equal(t, tc.raw, env.Raw)
		})
	}
}

func TestDecodePitchBendCentre(t *testing.T) {
	d := NewDecoder(DefaultMiddleC)

	env, err := d.Decode(Event(gomidi.Pitchbend(0, 0)))
	require.NoError(t, err)
	assert.Equal(t, 0.5, env.Value)

	for _, tc := range []struct {
		relative int16
		value    float64
	}{
		{relative: -8192, value: 0},
		{relative: -4096, value: 0.25},
		{relative: 8191, value: 1},
	} {
		env, err := d.Decode(Event(gomidi.Pitchbend(0, tc.relative)))
		require.NoError(t, err)
		assert.Equal(t, tc.value, env.Value)
	}
}

func TestDecodeControllerNumber(t *testing.T) {
	env, err := NewDecoder(DefaultMiddleC).Decode(Event(gomidi.ControlChange(0, 18, 0)))
	require.NoError(t, err)
	assert.Equal(t, uint8(18), env.Controller)
	assert.Equal(t, 0.0, env.Value)
}

func TestDecodeRejects(t *testing.T) {
	d := NewDecoder(DefaultMiddleC)

	for _, tc := range []struct {
		name     string
		raw      Event
		expected error
	}{
		{name: "empty", raw: Event{}, expected: ErrMalformed},
		{name: "nil", raw: nil, expected: ErrMalformed},
		{name: "data byte first", raw: Event{0x40, 0x40, 0x40}, expected: ErrMalformed},
		{name: "truncated note", raw: Event{StatusNoteOn, 60}, expected: ErrMalformed},
		{name: "truncated program change", raw: Event{StatusProgramChange}, expected: ErrMalformed},
		{name: "status in data", raw: Event{StatusControlChange, 0x90, 0x10}, expected: ErrMalformed},
		{name: "clock", raw: Event{0xF8}, expected: ErrUnsupported},
		{name: "channel pressure", raw: Event{StatusChannelPressure, 0x10}, expected: ErrUnsupported},
		{name: "poly pressure", raw: Event{StatusPolyphonicKeyPressure, 60, 0x10}, expected: ErrUnsupported},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Decode(tc.raw)
			assert.True(t, errors.Is(err, tc.expected), "unexpected error: %v", err)
		})
	}
}

func TestEnvelopeString(t *testing.T) {
	env := Envelope{Kind: KindControlChange, Identifier: "71", Value: 0.5}
	assert.Contains(t, env.String(), "control-change")
	assert.Contains(t, env.String(), "71")
	assert.Equal(t, "empty midi event", Event{}.String())
	assert.Equal(t, "0x90 0x3c 0x7f", Event{0x90, 0x3c, 0x7f}.String())
}
