package input

import (
	"testing"

	"github.com/gethiox/magneto/internal/pkg/midi"
	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	k := NewKeyboard("/dev/input/event3", map[evdev.EvCode]byte{
		evdev.KEY_Q:     48,
		evdev.KEY_SPACE: 72,
	}, false)

	for _, tc := range []struct {
		name     string
		event    evdev.InputEvent
		expected midi.Event
	}{
		{
			name:     "press",
			event:    evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_Q, Value: 1},
			expected: midi.Event{0x90, 48, DefaultVelocity},
		},
		{
			name:     "release",
			event:    evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_SPACE, Value: 0},
			expected: midi.Event{0x80, 72, 0},
		},
		{
			name:  "repeat",
			event: evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_Q, Value: 2},
		},
		{
			name:  "not assigned",
			event: evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_W, Value: 1},
		},
		{
			name:  "not a key",
			event: evdev.InputEvent{Type: evdev.EV_MSC, Code: evdev.EvCode(evdev.MSC_SCAN), Value: 1},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e, ok := k.Translate(tc.event)
			assert.Equal(t, tc.expected != nil, ok)
			assert.Equal(t, tc.expected, e)
		})
	}
}

func TestSetKeys(t *testing.T) {
	k := NewKeyboard("/dev/input/event3", nil, false)
	k.Channel = 2

	_, ok := k.Translate(evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_A, Value: 1})
	assert.False(t, ok)

	k.SetKeys(map[evdev.EvCode]byte{evdev.KEY_A: 60})
	e, ok := k.Translate(evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_A, Value: 1})
	assert.True(t, ok)
	assert.Equal(t, midi.Event{0x92, 60, DefaultVelocity}, e)
	assert.Equal(t, "keyboard: /dev/input/event3", k.Name())
}

func TestListenMissingDevice(t *testing.T) {
	k := NewKeyboard("/nonexistent/event99", nil, false)
	_, err := k.Listen(func(midi.Event) {})
	assert.Error(t, err)
}
