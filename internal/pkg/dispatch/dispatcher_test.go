package dispatch

import (
	"testing"
	"time"

	"github.com/gethiox/magneto/internal/pkg/midi"
	"github.com/gethiox/magneto/internal/pkg/recorder"
	"github.com/gethiox/magneto/internal/pkg/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
)

type noteCall struct {
	identifier string
	value      float64
	sustain    bool
}

type captureLog struct {
	envelopes []midi.Envelope
}

func (c *captureLog) Capture(env midi.Envelope) {
	c.envelopes = append(c.envelopes, env)
}

func newTestDispatcher(registry *Registry, capturer Capturer) *Dispatcher {
	return New(registry, midi.NewDecoder(midi.DefaultMiddleC), capturer, sched.NewVirtual(time.Time{}))
}

func TestCaseInsensitiveRouting(t *testing.T) {
	var calls []noteCall
	registry := NewRegistry()
	registry.OnNote("c3", NoteFunc(func(identifier string, value float64, sustain bool) {
		calls = append(calls, noteCall{identifier, value, sustain})
	}))

	d := newTestDispatcher(registry, nil)
	d.Dispatch(midi.Event(gomidi.NoteOn(0, midi.StringToNoteUnsafe("C3", midi.DefaultMiddleC), 127)))
	d.Dispatch(midi.Event(gomidi.NoteOff(0, midi.StringToNoteUnsafe("C3", midi.DefaultMiddleC))))
	d.Dispatch(midi.Event(gomidi.NoteOn(0, midi.StringToNoteUnsafe("C#3", midi.DefaultMiddleC), 127)))

	assert.Equal(t, []noteCall{
		{identifier: "C3", value: 1, sustain: true},
		{identifier: "C3", value: 0, sustain: false},
	}, calls)

	// replayed envelopes carry the identifier in whatever case they were built with
	d.Replay(midi.Envelope{Kind: midi.KindNoteOn, Identifier: "c3", Value: 0.5, Sustain: true})
	require.Len(t, calls, 3)
	assert.Equal(t, 0.5, calls[2].value)
}

func TestValueRouting(t *testing.T) {
	values := map[string][]float64{}
	collect := func(name string) ValueHandler {
		return ValueFunc(func(v float64) { values[name] = append(values[name], v) })
	}

	registry := NewRegistry()
	registry.OnController(74, collect("cc74"))
	registry.OnController(18, collect("cc18"))
	registry.OnPitchBend(collect("bend"))
	registry.OnProgramChange(collect("program"))

	d := newTestDispatcher(registry, nil)
	d.Dispatch(midi.Event(gomidi.ControlChange(0, 74, 127)))
	d.Dispatch(midi.Event(gomidi.ControlChange(3, 18, 0)))
	d.Dispatch(midi.Event(gomidi.ControlChange(0, 19, 64)))
	d.Dispatch(midi.Event(gomidi.Pitchbend(0, -8192)))
	d.Dispatch(midi.Event(gomidi.ProgramChange(0, 127)))

	assert.Equal(t, map[string][]float64{
		"cc74":    {1},
		"cc18":    {0},
		"bend":    {0},
		"program": {1},
	}, values)
}

func TestRecordToggleNotCaptured(t *testing.T) {
	capturer := &captureLog{}
	toggles := 0
	registry := NewRegistry()
	registry.SetRecordToggle("c5")
	registry.OnNote("C5", NoteFunc(func(string, float64, bool) { toggles++ }))

	d := newTestDispatcher(registry, capturer)
	c5 := midi.StringToNoteUnsafe("C5", midi.DefaultMiddleC)
	d.Dispatch(midi.Event(gomidi.NoteOn(0, c5, 100)))
	d.Dispatch(midi.Event(gomidi.NoteOff(0, c5)))
	d.Dispatch(midi.Event(gomidi.NoteOn(0, 60, 100)))
	d.Dispatch(midi.Event(gomidi.ControlChange(0, 74, 10)))

	assert.Equal(t, 2, toggles)
	require.Len(t, capturer.envelopes, 2)
	assert.Equal(t, "C4", capturer.envelopes[0].Identifier)
	assert.Equal(t, "74", capturer.envelopes[1].Identifier)
}

func TestUnassignedEventsCaptured(t *testing.T) {
	capturer := &captureLog{}
	d := newTestDispatcher(NewRegistry(), capturer)
	d.Dispatch(midi.Event(gomidi.NoteOn(0, 60, 100)))
	assert.Len(t, capturer.envelopes, 1)
}

func TestMalformedDropped(t *testing.T) {
	capturer := &captureLog{}
	called := false
	registry := NewRegistry()
	registry.OnNote("C4", NoteFunc(func(string, float64, bool) { called = true }))
	registry.SetDebug(true)

	d := newTestDispatcher(registry, capturer)
	assert.NotPanics(t, func() {
		d.Dispatch(nil)
		d.Dispatch(midi.Event{midi.StatusNoteOn})
		d.Dispatch(midi.Event{midi.StatusNoteOn, 60})
		d.Dispatch(midi.Event{0x3c, 0x7f})
		d.Dispatch(midi.Event{0xF8})
	})
	assert.False(t, called)
	assert.Empty(t, capturer.envelopes)
}

func TestHandlerPanicIsolated(t *testing.T) {
	var order []string
	registry := NewRegistry()
	registry.OnNote("C4", NoteFunc(func(string, float64, bool) {
		order = append(order, "first")
		panic("broken handler")
	}))
	registry.OnNote("C4", NoteFunc(func(string, float64, bool) {
		order = append(order, "second")
	}))
	registry.OnController(1, ValueFunc(func(float64) { panic("broken controller") }))

	d := newTestDispatcher(registry, nil)
	assert.NotPanics(t, func() {
		d.Dispatch(midi.Event(gomidi.NoteOn(0, 60, 100)))
		d.Dispatch(midi.Event(gomidi.ControlChange(0, 1, 100)))
		d.Dispatch(midi.Event(gomidi.NoteOn(0, 60, 100)))
	})
	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
}

func TestNilHandlerIgnored(t *testing.T) {
	registry := NewRegistry()
	registry.OnNote("C4", nil)
	registry.OnController(1, nil)
	registry.OnPitchBend(nil)
	assert.Empty(t, registry.NoteHandlers("C4"))

	d := newTestDispatcher(registry, nil)
	assert.NotPanics(t, func() { d.Dispatch(midi.Event(gomidi.NoteOn(0, 60, 100))) })
}

func TestSetRegistry(t *testing.T) {
	first, second := 0, 0
	a := NewRegistry()
	a.OnNote("C4", NoteFunc(func(string, float64, bool) { first++ }))
	b := NewRegistry()
	b.OnNote("C4", NoteFunc(func(string, float64, bool) { second++ }))

	d := newTestDispatcher(a, nil)
	d.Dispatch(midi.Event(gomidi.NoteOn(0, 60, 100)))
	d.SetRegistry(b)
	d.Dispatch(midi.Event(gomidi.NoteOn(0, 60, 100)))

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestReplayNotCaptured(t *testing.T) {
	virtual := sched.NewVirtual(time.Time{})
	rec := recorder.New(virtual, recorder.Options{})

	var played []string
	registry := NewRegistry()
	registry.SetRecordToggle("C5")
	registry.OnNote("C5", NoteFunc(func(_ string, _ float64, sustain bool) {
		require.NoError(t, rec.Toggle(sustain))
	}))
	registry.OnNote("C4", NoteFunc(func(identifier string, _ float64, sustain bool) {
		if sustain {
			played = append(played, identifier)
		}
	}))

	d := New(registry, midi.NewDecoder(midi.DefaultMiddleC), rec, virtual)
	rec.SetOutput(d.Replay)

	c5 := midi.StringToNoteUnsafe("C5", midi.DefaultMiddleC)
	d.Dispatch(midi.Event(gomidi.NoteOn(0, c5, 100)))
	d.Dispatch(midi.Event(gomidi.NoteOff(0, c5)))
	virtual.Advance(100 * time.Millisecond)
	d.Dispatch(midi.Event(gomidi.NoteOn(0, 60, 100)))
	virtual.Advance(100 * time.Millisecond)
	d.Dispatch(midi.Event(gomidi.NoteOn(0, c5, 100)))
	d.Dispatch(midi.Event(gomidi.NoteOff(0, c5)))

	// second recording overdubs while the first tape replays
	d.Dispatch(midi.Event(gomidi.NoteOn(0, c5, 100)))
	virtual.Advance(time.Second)
	d.Dispatch(midi.Event(gomidi.NoteOn(0, c5, 100)))

	events, err := rec.Events(0)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	assert.Len(t, rec.State().Tapes, 1)
	// one live press and replays at 300, 500, 700, 900 and 1100ms
	assert.Len(t, played, 6)

	live, replayed := d.Counters()
	assert.Equal(t, uint64(7), live)
	assert.Equal(t, uint64(5), replayed)
}
