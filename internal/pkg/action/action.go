package action

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gethiox/magneto/internal/pkg/config"
	"github.com/gethiox/magneto/internal/pkg/dispatch"
	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/gethiox/magneto/internal/pkg/recorder"
	"github.com/gethiox/magneto/internal/pkg/tick"
	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// Looper is the part of the recorder driven by actions.
type Looper interface {
	Toggle(press bool) error
	Reset()
	Retry(index int) error
	State() recorder.State
}

// Envelope describes how a triggered parameter moves: it jumps to Peak and goes back to Rest over Duration.
type Envelope struct {
	Peak, Rest float64
	Duration   time.Duration
}

var DefaultEnvelopes = map[config.Action]Envelope{
	config.Light:     {Peak: 1, Rest: 0, Duration: 1000 * time.Millisecond},
	config.Glitch:    {Peak: 1, Rest: 0, Duration: 300 * time.Millisecond},
	config.Pixelate:  {Peak: 64, Rest: 0, Duration: 300 * time.Millisecond},
	config.Bloom:     {Peak: 20, Rest: 4, Duration: 300 * time.Millisecond},
	config.Flash:     {Peak: 0.3, Rest: 0, Duration: 1000 * time.Millisecond},
	config.BackFlash: {Peak: 1, Rest: 0, Duration: 200 * time.Millisecond},
}

// Envelopes merges parameter overrides of the mapping into defaults.
func Envelopes(params map[config.Action]config.Param) map[config.Action]Envelope {
	envelopes := make(map[config.Action]Envelope, len(DefaultEnvelopes))
	for action, e := range DefaultEnvelopes {
		p, ok := params[action]
		if ok {
			if p.Peak != nil {
				e.Peak = *p.Peak
			}
			if p.Rest != nil {
				e.Rest = *p.Rest
			}
			if p.Duration != nil {
				e.Duration = *p.Duration
			}
		}
		envelopes[action] = e
	}
	return envelopes
}

// Rests returns parameter rest values for the tick driver.
func Rests(params map[config.Action]config.Param) map[string]float64 {
	envelopes := Envelopes(params)
	rests := make(map[string]float64)
	for action, name := range paramNames {
		rests[name] = envelopes[action].Rest
	}
	return rests
}

var paramNames = map[config.Action]string{
	config.Glitch:   tick.Glitch,
	config.Pixelate: tick.Pixelate,
	config.Bloom:    tick.Bloom,
	config.Flash:    tick.Mega,
}

type binder struct {
	looper    Looper
	driver    *tick.Driver
	envelopes map[config.Action]Envelope
	lights    []string
	palette   []colorful.Color
	random    *rand.Rand
}

type noteAction func(b *binder, identifier string, value float64, sustain bool)
type valueAction func(b *binder, value float64)

var noteActions = map[config.Action]noteAction{
	config.Record: func(b *binder, identifier string, value float64, sustain bool) {
		if sustain {
			log.Info("Record toggle", zap.String("identifier", identifier), logger.Action)
		}
		err := b.looper.Toggle(sustain)
		if err != nil {
			log.Info(fmt.Sprintf("record toggle failed: %v", err), logger.Error)
		}
	},
	config.Reset: func(b *binder, identifier string, value float64, sustain bool) {
		if !sustain {
			return
		}
		log.Info("Reset all tapes", zap.String("identifier", identifier), logger.Action)
		b.looper.Reset()
	},
	config.Retry: func(b *binder, identifier string, value float64, sustain bool) {
		if !sustain {
			return
		}
		for i, tape := range b.looper.State().Tapes {
			if tape.Scheduled || tape.Recording || tape.Events == 0 {
				continue
			}
			err := b.looper.Retry(i)
			if err != nil {
				log.Info(fmt.Sprintf("tape retry failed: %v", err), zap.Int("tape", tape.Index), logger.Error)
				continue
			}
			log.Info("Tape rescheduled", zap.Int("tape", tape.Index), logger.Action)
		}
	},
	config.Light: func(b *binder, identifier string, value float64, sustain bool) {
		b.light(identifier, value, sustain)
	},
	config.LightAll: func(b *binder, identifier string, value float64, sustain bool) {
		for _, id := range b.lights {
			b.light(id, value, sustain)
		}
	},
	config.Glitch: func(b *binder, identifier string, value float64, sustain bool) {
		if !sustain {
			return
		}
		e := b.envelopes[config.Glitch]
		b.driver.Pulse(tick.Glitch, e.Peak, e.Duration)
	},
	config.Pixelate: func(b *binder, identifier string, value float64, sustain bool) {
		b.ease(config.Pixelate, sustain)
	},
	config.Bloom: func(b *binder, identifier string, value float64, sustain bool) {
		b.ease(config.Bloom, sustain)
	},
	config.Flash: func(b *binder, identifier string, value float64, sustain bool) {
		b.ease(config.Flash, sustain)
	},
	config.BackFlash: func(b *binder, identifier string, value float64, sustain bool) {
		if !sustain {
			return
		}
		e := b.envelopes[config.BackFlash]
		b.driver.Flash(colorful.Color{R: e.Peak, G: e.Peak, B: e.Peak}, e.Duration)
	},
	config.RandomFlash: func(b *binder, identifier string, value float64, sustain bool) {
		if !sustain {
			return
		}
		e := b.envelopes[config.BackFlash]
		c := colorful.Color{R: 1, G: 1, B: 1}
		if len(b.palette) > 0 {
			c = b.palette[b.random.Intn(len(b.palette))]
		}
		b.driver.Flash(c, e.Duration)
	},
	config.ResetPos: func(b *binder, identifier string, value float64, sustain bool) {
		if !sustain {
			return
		}
		b.driver.Set(tick.X, 0)
		b.driver.Set(tick.Y, 0)
		b.driver.Set(tick.Position, 0)
	},
}

var valueActions = map[config.Action]valueAction{
	config.X: func(b *binder, value float64) {
		b.driver.Set(tick.X, centered(value))
	},
	config.Y: func(b *binder, value float64) {
		b.driver.Set(tick.Y, centered(value))
	},
	config.Position: func(b *binder, value float64) {
		b.driver.Set(tick.Position, centered(value))
	},
	config.Speed: func(b *binder, value float64) {
		b.driver.SetSpeed(value)
	},
	config.Ambient: func(b *binder, value float64) {
		b.driver.Set(tick.Ambient, value*3)
	},
	config.Bend: func(b *binder, value float64) {
		b.driver.Set(tick.Y, (value*2-1)/50)
	},
}

// centered maps 0.0 - 1.0 onto -0.05 - 0.05.
func centered(value float64) float64 {
	return (value - 0.5) / 10
}

func (b *binder) light(identifier string, value float64, sustain bool) {
	e := b.envelopes[config.Light]
	name := tick.Light(identifier)
	if sustain {
		b.driver.Set(name, value*e.Peak)
		return
	}
	b.driver.EaseTo(name, e.Rest, e.Duration)
}

func (b *binder) ease(action config.Action, sustain bool) {
	if !sustain {
		return
	}
	b.driver.Decay(paramNames[action], b.envelopes[action].Peak, b.envelopes[action].Duration)
}

func (b *binder) note(action config.Action) dispatch.NoteHandler {
	f := noteActions[action]
	return dispatch.NoteFunc(func(identifier string, value float64, sustain bool) {
		f(b, identifier, value, sustain)
	})
}

func (b *binder) value(action config.Action) dispatch.ValueHandler {
	f := valueActions[action]
	return dispatch.ValueFunc(func(value float64) {
		f(b, value)
	})
}

// Build turns mapping into handler registry acting on given looper and parameter driver.
// Record toggle note gets the record action even when the mapping does not list it.
func Build(mapping config.Mapping, looper Looper, driver *tick.Driver, random *rand.Rand) *dispatch.Registry {
	b := &binder{
		looper:    looper,
		driver:    driver,
		envelopes: Envelopes(mapping.Params),
		lights:    mapping.Lights,
		palette:   mapping.Palette,
		random:    random,
	}

	registry := dispatch.NewRegistry()
	registry.SetDebug(mapping.Debug)
	registry.SetRecordToggle(mapping.RecordToggle)

	toggleBound := false
	for identifier, actions := range mapping.Notes {
		for _, action := range actions {
			if _, ok := noteActions[action]; !ok {
				log.Info(fmt.Sprintf("note action not supported: %s", action), logger.Warning)
				continue
			}
			if action == config.Record {
				toggleBound = true
			}
			registry.OnNote(identifier, b.note(action))
		}
	}
	if mapping.RecordToggle != "" && !toggleBound {
		registry.OnNote(mapping.RecordToggle, b.note(config.Record))
	}

	for controller, actions := range mapping.Controllers {
		for _, action := range actions {
			if _, ok := valueActions[action]; !ok {
				log.Info(fmt.Sprintf("controller action not supported: %s", action), logger.Warning)
				continue
			}
			registry.OnController(controller, b.value(action))
		}
	}
	for _, action := range mapping.PitchBend {
		if _, ok := valueActions[action]; ok {
			registry.OnPitchBend(b.value(action))
		}
	}
	for _, action := range mapping.ProgramChange {
		if _, ok := valueActions[action]; ok {
			registry.OnProgramChange(b.value(action))
		}
	}

	return registry
}
