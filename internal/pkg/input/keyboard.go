package input

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/gethiox/magneto/internal/pkg/midi"
	"github.com/gethiox/magneto/internal/pkg/midi/driver"
	"github.com/holoplot/go-evdev"
	"go.uber.org/zap"

	gomidi "gitlab.com/gomidi/midi/v2"
)

var log = logger.GetLogger()

const DefaultVelocity = 127

// Keyboard turns key presses of an evdev input device into note events.
type Keyboard struct {
	Path     string
	Grab     bool
	Channel  uint8
	Velocity uint8

	mu   sync.Mutex
	keys map[evdev.EvCode]byte
}

func NewKeyboard(path string, keys map[evdev.EvCode]byte, grab bool) *Keyboard {
	return &Keyboard{
		Path:     path,
		Grab:     grab,
		Velocity: DefaultVelocity,
		keys:     keys,
	}
}

func (k *Keyboard) Name() string {
	return fmt.Sprintf("keyboard: %s", k.Path)
}

// SetKeys replaces key to note assignment, used on mapping reload.
func (k *Keyboard) SetKeys(keys map[evdev.EvCode]byte) {
	k.mu.Lock()
	k.keys = keys
	k.mu.Unlock()
}

// Translate returns note event for assigned key press or release, repeats are ignored.
func (k *Keyboard) Translate(ev evdev.InputEvent) (midi.Event, bool) {
	if ev.Type != evdev.EV_KEY {
		return nil, false
	}

	k.mu.Lock()
	note, ok := k.keys[ev.Code]
	k.mu.Unlock()
	if !ok {
		return nil, false
	}

	switch ev.Value {
	case 1:
		return midi.Event(gomidi.NoteOn(k.Channel, note, k.Velocity)), true
	case 0:
		return midi.Event(gomidi.NoteOff(k.Channel, note)), true
	default: // repeat
		return nil, false
	}
}

func (k *Keyboard) Listen(fn driver.Listener) (func(), error) {
	dev, err := evdev.Open(k.Path)
	if err != nil {
		return nil, fmt.Errorf("opening keyboard failed: %w", err)
	}

	name, _ := dev.Name()
	name = strings.Trim(name, "\x00")
	fields := []zap.Field{zap.String("source", k.Path), zap.String("device_name", name)}

	if k.Grab {
		err = dev.Grab()
		if err != nil {
			log.Info(fmt.Sprintf("grabbing keyboard failed: %v", err), append(fields, logger.Warning)...)
		} else {
			log.Info("Grabbing keyboard for exclusive usage", append(fields, logger.Debug)...)
		}
	}

	err = dev.NonBlock()
	if err != nil {
		log.Info(fmt.Sprintf("enabling non-blocking event reading mode failed: %v", err), append(fields, logger.Warning)...)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("Reading keyboard events", append(fields, logger.Debug)...)
		for {
			event, err := dev.ReadOne()
			if err != nil {
				break
			}
			e, ok := k.Translate(*event)
			if !ok {
				continue
			}
			fn(e)
		}
		log.Info("Reading keyboard events finished", append(fields, logger.Debug)...)
	}()

	return func() {
		if k.Grab {
			_ = dev.Ungrab()
		}
		err := dev.Close()
		if err != nil {
			log.Info(fmt.Sprintf("keyboard close failed: %v", err), append(fields, logger.Warning)...)
		}
		<-done
	}, nil
}
