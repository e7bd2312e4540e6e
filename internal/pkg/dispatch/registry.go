package dispatch

import (
	"github.com/gethiox/magneto/internal/pkg/midi"
)

// NoteHandler receives note events, sustain is true on press and false on release.
type NoteHandler interface {
	Note(identifier string, value float64, sustain bool)
}

type NoteFunc func(identifier string, value float64, sustain bool)

func (f NoteFunc) Note(identifier string, value float64, sustain bool) {
	f(identifier, value, sustain)
}

// ValueHandler receives normalized values of controllers, pitch bend and program change.
type ValueHandler interface {
	Value(value float64)
}

type ValueFunc func(value float64)

func (f ValueFunc) Value(value float64) {
	f(value)
}

// Registry maps event identifiers to handlers. It is built once and then only read,
// a changed mapping is a new Registry.
type Registry struct {
	notes         map[string][]NoteHandler
	controllers   map[uint8][]ValueHandler
	pitchBend     []ValueHandler
	programChange []ValueHandler

	recordToggle string
	debug        bool
}

func NewRegistry() *Registry {
	return &Registry{
		notes:       make(map[string][]NoteHandler),
		controllers: make(map[uint8][]ValueHandler),
	}
}

// OnNote adds handler for given note identifier, nil handlers are ignored.
func (r *Registry) OnNote(identifier string, h NoteHandler) {
	if h == nil {
		return
	}
	id := midi.NormalizeIdentifier(identifier)
	r.notes[id] = append(r.notes[id], h)
}

func (r *Registry) OnController(controller uint8, h ValueHandler) {
	if h == nil {
		return
	}
	r.controllers[controller] = append(r.controllers[controller], h)
}

func (r *Registry) OnPitchBend(h ValueHandler) {
	if h == nil {
		return
	}
	r.pitchBend = append(r.pitchBend, h)
}

func (r *Registry) OnProgramChange(h ValueHandler) {
	if h == nil {
		return
	}
	r.programChange = append(r.programChange, h)
}

// SetRecordToggle reserves identifier for starting and stopping recording, events carrying it
// are never captured.
func (r *Registry) SetRecordToggle(identifier string) {
	r.recordToggle = midi.NormalizeIdentifier(identifier)
}

// SetDebug enables logging of every incoming event.
func (r *Registry) SetDebug(debug bool) {
	r.debug = debug
}

func (r *Registry) Debug() bool {
	return r.debug
}

func (r *Registry) IsRecordToggle(identifier string) bool {
	if r.recordToggle == "" || identifier == "" {
		return false
	}
	return midi.NormalizeIdentifier(identifier) == r.recordToggle
}

// NoteHandlers does case-insensitive exact-match lookup.
func (r *Registry) NoteHandlers(identifier string) []NoteHandler {
	return r.notes[midi.NormalizeIdentifier(identifier)]
}

func (r *Registry) ControllerHandlers(controller uint8) []ValueHandler {
	return r.controllers[controller]
}

func (r *Registry) PitchBendHandlers() []ValueHandler {
	return r.pitchBend
}

func (r *Registry) ProgramChangeHandlers() []ValueHandler {
	return r.programChange
}
