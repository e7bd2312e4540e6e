package dispatch

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/gethiox/magneto/internal/pkg/midi"
	"github.com/gethiox/magneto/internal/pkg/sched"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// Capturer receives live events for recording.
type Capturer interface {
	Capture(env midi.Envelope)
}

type Dispatcher struct {
	decoder  midi.Decoder
	capturer Capturer
	runner   sched.Runner

	mu       sync.RWMutex
	registry *Registry

	live, replayed atomic.Uint64
}

// Counters returns number of decoded live events and replayed events handled so far.
func (d *Dispatcher) Counters() (live, replayed uint64) {
	return d.live.Load(), d.replayed.Load()
}

// New creates Dispatcher, capturer may be nil. Live events are handled inside runner turns.
func New(registry *Registry, decoder midi.Decoder, capturer Capturer, runner sched.Runner) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Dispatcher{
		decoder:  decoder,
		capturer: capturer,
		runner:   runner,
		registry: registry,
	}
}

// SetRegistry replaces handler mapping, in use by reloaded configuration.
func (d *Dispatcher) SetRegistry(registry *Registry) {
	d.mu.Lock()
	d.registry = registry
	d.mu.Unlock()
}

func (d *Dispatcher) Registry() *Registry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.registry
}

// Dispatch handles raw event from a live input source. It never panics,
// malformed events are dropped.
func (d *Dispatcher) Dispatch(raw midi.Event) {
	d.runner.Do(func() {
		d.dispatch(raw)
	})
}

func (d *Dispatcher) dispatch(raw midi.Event) {
	registry := d.Registry()

	env, err := d.decoder.Decode(raw)
	if err != nil {
		log.Info("Event dropped", zap.String("raw", raw.String()), zap.Error(err), logger.Debug)
		return
	}
	d.live.Add(1)

	if registry.Debug() {
		log.Info(env.String(), zap.String("raw", raw.String()), logger.Events)
	}

	if d.capturer != nil && !registry.IsRecordToggle(env.Identifier) {
		d.capturer.Capture(env)
	}

	d.route(registry, env)
}

// Replay handles event emitted by a tape. It is routed like a live one but never captured.
// Replay is expected to be called from within a runner turn.
func (d *Dispatcher) Replay(env midi.Envelope) {
	d.replayed.Add(1)
	d.route(d.Registry(), env)
}

func (d *Dispatcher) route(registry *Registry, env midi.Envelope) {
	handled := 0

	switch env.Kind {
	case midi.KindNoteOn, midi.KindNoteOff:
		for _, h := range registry.NoteHandlers(env.Identifier) {
			h := h
			d.invoke(env, func() { h.Note(env.Identifier, env.Value, env.Sustain) })
			handled++
		}
	case midi.KindControlChange:
		handled += d.invokeValue(env, registry.ControllerHandlers(env.Controller))
	case midi.KindPitchBend:
		handled += d.invokeValue(env, registry.PitchBendHandlers())
	case midi.KindProgramChange:
		handled += d.invokeValue(env, registry.ProgramChangeHandlers())
	}

	if handled == 0 && registry.Debug() {
		log.Info(fmt.Sprintf("Not assigned: %s", env), logger.EventsNotAssigned)
	}
}

func (d *Dispatcher) invokeValue(env midi.Envelope, handlers []ValueHandler) int {
	for _, h := range handlers {
		h := h
		d.invoke(env, func() { h.Value(env.Value) })
	}
	return len(handlers)
}

// invoke isolates handler failures so the rest of the handlers and the input loop keep going.
func (d *Dispatcher) invoke(env midi.Envelope, f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Info("Handler failed",
				zap.String("kind", env.Kind.String()),
				zap.String("identifier", env.Identifier),
				zap.Any("panic", r),
				logger.Warning,
			)
		}
	}()
	f()
}
