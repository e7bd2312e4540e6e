package main

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gethiox/magneto/internal/pkg/config"
	"github.com/gethiox/magneto/internal/pkg/input"
	"github.com/gethiox/magneto/internal/pkg/midi"
	"github.com/gethiox/magneto/internal/pkg/midi/driver"
	"github.com/gethiox/magneto/internal/pkg/recorder"
	"github.com/gethiox/magneto/internal/pkg/sched"
	"github.com/gethiox/magneto/internal/pkg/tick"
	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ms = time.Millisecond

var epoch = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	recordPress = midi.Event{0x90, 72, 127} // C5
	c3On        = midi.Event{0x90, 48, 127}
	c3Off       = midi.Event{0x80, 48, 0}
)

func newTestEngine(t *testing.T, v *sched.Virtual, root string) *Engine {
	t.Helper()
	file := config.MappingFile{
		Path:       "mapping.toml",
		ConfigType: "factory",
		Mapping: config.Mapping{
			RecordToggle: "C5",
			Notes:        map[string][]config.Action{"C3": {config.Light}},
		},
	}
	return NewEngine(v, file, engineOptions{Root: root, MiddleC: midi.DefaultMiddleC}, rand.New(rand.NewSource(1)))
}

func TestEngineLoop(t *testing.T) {
	v := sched.NewVirtual(epoch)
	e := newTestEngine(t, v, t.TempDir())

	e.Dispatcher.Dispatch(recordPress)
	assert.Equal(t, recorder.Recording, e.Recorder.State().Mode)

	v.Advance(100 * ms)
	e.Dispatcher.Dispatch(c3On)
	assert.Equal(t, 1.0, e.Step().LightLevel("C3"))

	v.Advance(100 * ms)
	e.Dispatcher.Dispatch(c3Off)
	v.Advance(300 * ms)
	e.Dispatcher.Dispatch(recordPress)

	state := e.Recorder.State()
	assert.Equal(t, recorder.Idle, state.Mode)
	require.Len(t, state.Tapes, 1)
	assert.Equal(t, 2, state.Tapes[0].Events)
	assert.Equal(t, 500*ms, state.Tapes[0].Duration)
	assert.True(t, state.Tapes[0].Scheduled)

	// light has been easing out since the release
	level := e.Step().LightLevel("C3")
	assert.Greater(t, level, 0.0)
	assert.Less(t, level, 1.0)

	// immediate pass replays the press at its offset
	v.Advance(100 * ms)
	assert.Equal(t, 1.0, e.Step().LightLevel("C3"))
	live, replayed := e.Dispatcher.Counters()
	assert.Equal(t, uint64(4), live)
	assert.Equal(t, uint64(1), replayed)

	// second pass starts one period after the stop
	v.Advance(600 * ms)
	_, replayed = e.Dispatcher.Counters()
	assert.Equal(t, uint64(4), replayed)
	assert.Equal(t, uint64(8), e.Status().Events)

	e.Recorder.Reset()
	assert.Equal(t, 0, v.Pending())
	v.Advance(time.Second)
	_, replayed = e.Dispatcher.Counters()
	assert.Equal(t, uint64(4), replayed)
	assert.Empty(t, e.Status().Recorder.Tapes)
}

func TestEngineRecordToggleNotCaptured(t *testing.T) {
	v := sched.NewVirtual(epoch)
	e := newTestEngine(t, v, t.TempDir())

	e.Dispatcher.Dispatch(recordPress)
	v.Advance(10 * ms)
	e.Dispatcher.Dispatch(midi.Event{0x80, 72, 0})
	e.Dispatcher.Dispatch(c3On)
	v.Advance(90 * ms)
	e.Dispatcher.Dispatch(recordPress)

	events, err := e.Recorder.Events(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "C3", events[0].Identifier)
	assert.Equal(t, 10*ms, events[0].Timestamp)
}

func TestEngineRetry(t *testing.T) {
	v := sched.NewVirtual(epoch)
	file := config.MappingFile{
		Path:       "mapping.toml",
		ConfigType: "factory",
		Mapping: config.Mapping{
			RecordToggle: "C5",
			Notes: map[string][]config.Action{
				"C3":  {config.Light},
				"A#4": {config.Retry},
			},
		},
	}
	e := NewEngine(v, file, engineOptions{Root: t.TempDir(), MiddleC: midi.DefaultMiddleC}, rand.New(rand.NewSource(1)))

	e.Dispatcher.Dispatch(recordPress)
	v.Advance(100 * ms)
	e.Dispatcher.Dispatch(c3On)
	v.Advance(100 * ms)

	v.ScheduleErr = errors.New("no timers left")
	e.Dispatcher.Dispatch(recordPress)
	v.ScheduleErr = nil

	state := e.Recorder.State()
	assert.Equal(t, recorder.Idle, state.Mode)
	require.Len(t, state.Tapes, 1)
	assert.False(t, state.Tapes[0].Scheduled)

	v.Advance(time.Second)
	_, replayed := e.Dispatcher.Counters()
	assert.Equal(t, uint64(0), replayed)

	e.Dispatcher.Dispatch(midi.Event{0x90, 70, 127}) // A#4
	assert.True(t, e.Recorder.State().Tapes[0].Scheduled)

	v.Advance(100 * ms)
	_, replayed = e.Dispatcher.Counters()
	assert.Equal(t, uint64(1), replayed)
}

type fakeSource struct {
	name string

	mu      sync.Mutex
	fn      driver.Listener
	stopped bool
}

func (s *fakeSource) Name() string {
	return s.name
}

func (s *fakeSource) Listen(fn driver.Listener) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
	return func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	}, nil
}

func (s *fakeSource) send(ev midi.Event) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	fn(ev)
}

func TestEngineAttach(t *testing.T) {
	v := sched.NewVirtual(epoch)
	e := newTestEngine(t, v, t.TempDir())

	a, b := &fakeSource{name: "Keystation 49"}, &fakeSource{name: "file: demo.mid"}
	stopA, err := e.Attach(a)
	require.NoError(t, err)
	stopB, err := e.Attach(b)
	require.NoError(t, err)

	assert.Equal(t, []string{"Keystation 49", "file: demo.mid"}, e.Sources())
	assert.Equal(t, 2, e.Status().Sources)

	a.send(c3On)
	b.send(c3Off)
	live, _ := e.Dispatcher.Counters()
	assert.Equal(t, uint64(2), live)

	stopA()
	stopA()
	assert.True(t, a.stopped)
	assert.Equal(t, []string{"file: demo.mid"}, e.Sources())

	manager := e.Manage(func() []driver.Source {
		return []driver.Source{&fakeSource{name: "Launchkey"}}
	}, driver.Filter{})
	manager.Scan()
	assert.Equal(t, []string{"Launchkey", "file: demo.mid"}, e.Sources())

	manager.Close()
	stopB()
	assert.Empty(t, e.Sources())
}

const reloadedMapping = `
record_toggle = "C5"

[notes]
D3 = "light"

[keys]
KEY_Z = "D3"

[params.bloom]
rest = 2.0
`

func TestEngineReload(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, config.UserDir), 0o777))
	path := filepath.Join(root, config.UserDir, "mapping.toml")
	require.NoError(t, os.WriteFile(path, []byte(reloadedMapping), 0o666))

	v := sched.NewVirtual(epoch)
	e := newTestEngine(t, v, root)
	keyboard := input.NewKeyboard("/dev/input/event0", nil, false)
	e.SetKeyboard(keyboard)

	require.NoError(t, e.Reload())
	assert.Equal(t, path, e.Mapping().Path)
	assert.Equal(t, "user", e.Mapping().ConfigType)
	assert.Len(t, e.Dispatcher.Registry().NoteHandlers("D3"), 1)
	assert.Empty(t, e.Dispatcher.Registry().NoteHandlers("C3"))
	assert.Equal(t, 2.0, e.Driver.Rest(tick.Bloom))

	ev, ok := keyboard.Translate(evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_Z, Value: 1})
	require.True(t, ok)
	assert.Equal(t, midi.Event{0x90, 50, 127}, ev)

	registry := e.Dispatcher.Registry()
	require.NoError(t, os.WriteFile(path, []byte("[notes]\nD3 = \"teleport\"\n"), 0o666))
	assert.Error(t, e.Reload())
	assert.Same(t, registry, e.Dispatcher.Registry())
	assert.Equal(t, path, e.Mapping().Path)
}

func TestEngineRunFrames(t *testing.T) {
	v := sched.NewVirtual(epoch)
	e := newTestEngine(t, v, t.TempDir())
	e.Dispatcher.Dispatch(c3On)
	v.Advance(250 * ms)

	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	frames := make(chan tick.Frame, 1)
	wg.Add(1)
	go e.RunFrames(ctx, &wg, 1000, frames)

	select {
	case frame := <-frames:
		assert.Equal(t, 250*ms, frame.At)
		assert.Equal(t, 1.0, frame.LightLevel("C3"))
	case <-time.After(time.Second):
		t.Fatal("no frame")
	}
	cancel()
	wg.Wait()

	for range frames {
	}
	assert.Equal(t, 250*ms, e.Frame().At)
}
