package recorder

import (
	"time"

	"github.com/gethiox/magneto/internal/pkg/midi"
	"github.com/gethiox/magneto/internal/pkg/sched"
)

// Tape is one recorded loop. It is owned by the Recorder, all fields are guarded by Recorder.mu.
type Tape struct {
	Index    int
	events   []midi.Envelope
	duration time.Duration

	// periodic replay, nil when not scheduled
	handle sched.Handle
	// deferred per-event playback of passes in flight
	pending   map[uint64]sched.Handle
	pendingID uint64
	// bumped on every cancellation, callbacks of older generations are ignored
	generation uint64
}

func newTape(index int) *Tape {
	return &Tape{Index: index, pending: make(map[uint64]sched.Handle)}
}

func (t *Tape) scheduled() bool {
	return t.handle != nil
}

// cancel stops periodic replay and every in-flight event of this tape.
func (t *Tape) cancel() {
	if t.handle != nil {
		t.handle.Stop()
		t.handle = nil
	}
	for id, h := range t.pending {
		h.Stop()
		delete(t.pending, id)
	}
	t.generation++
}

func (t *Tape) append(env midi.Envelope, offset time.Duration) {
	if n := len(t.events); n > 0 && offset < t.events[n-1].Timestamp {
		offset = t.events[n-1].Timestamp
	}
	if offset < 0 {
		offset = 0
	}

	env.Timestamp = offset
	env.Raw = append(midi.Event(nil), env.Raw...)
	t.events = append(t.events, env)
}

// TapeState is a read-only view of a tape.
type TapeState struct {
	Index     int
	Events    int
	Duration  time.Duration
	Scheduled bool
	Recording bool
	InFlight  int
}

func (t *Tape) state() TapeState {
	return TapeState{
		Index:     t.Index,
		Events:    len(t.events),
		Duration:  t.duration,
		Scheduled: t.scheduled(),
		InFlight:  len(t.pending),
	}
}
