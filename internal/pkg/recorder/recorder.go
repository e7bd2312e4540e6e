package recorder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/gethiox/magneto/internal/pkg/midi"
	"github.com/gethiox/magneto/internal/pkg/sched"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

var (
	ErrNoSuchTape = errors.New("no such tape")
	ErrTapeEmpty  = errors.New("tape is empty")
)

// DefaultMinLoopPeriod is the shortest tape duration that is still looped,
// shorter tapes are played once.
const DefaultMinLoopPeriod = 50 * time.Millisecond

type Mode uint8

const (
	Idle Mode = iota
	Recording
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

type Options struct {
	MinLoopPeriod time.Duration
	// SyncLoops re-arms every non-empty tape from the same instant when a recording stops.
	SyncLoops bool
}

type Recorder struct {
	mu    sync.Mutex
	timer sched.Timer
	opts  Options

	output func(midi.Envelope)

	mode   Mode
	active *Tape
	origin time.Time
	tapes  []*Tape
}

func New(timer sched.Timer, opts Options) *Recorder {
	if opts.MinLoopPeriod <= 0 {
		opts.MinLoopPeriod = DefaultMinLoopPeriod
	}
	return &Recorder{timer: timer, opts: opts}
}

// SetOutput sets the path replayed events are re-injected through.
func (r *Recorder) SetOutput(output func(midi.Envelope)) {
	r.mu.Lock()
	r.output = output
	r.mu.Unlock()
}

// Toggle starts or stops recording on press, release is ignored.
// Stopping returns an error wrapping sched.ErrScheduleFailed when the finished tape could not be
// scheduled, the tape is kept and can be scheduled again with Retry.
func (r *Recorder) Toggle(press bool) error {
	if !press {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now, err := r.timer.Now()
	if err != nil {
		log.Info("Recording toggle ignored, clock unavailable", zap.Error(err), logger.Warning)
		return fmt.Errorf("toggle recording: %w", err)
	}

	switch r.mode {
	case Idle:
		r.startLocked(now)
		return nil
	default:
		return r.stopLocked(now)
	}
}

func (r *Recorder) startLocked(now time.Time) {
	r.sweepLocked()

	tape := newTape(len(r.tapes))
	r.tapes = append(r.tapes, tape)
	r.active = tape
	r.origin = now
	r.mode = Recording

	log.Info("Recording started", zap.Int("tape", tape.Index), logger.Action)
}

// sweepLocked drops tapes left without events.
func (r *Recorder) sweepLocked() {
	kept := r.tapes[:0]
	for _, t := range r.tapes {
		if len(t.events) == 0 {
			t.cancel()
			log.Info("Empty tape discarded", zap.Int("tape", t.Index), logger.Debug)
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(r.tapes); i++ {
		r.tapes[i] = nil
	}
	r.tapes = kept
}

func (r *Recorder) stopLocked(now time.Time) error {
	tape := r.active
	tape.duration = now.Sub(r.origin)
	if tape.duration < 0 {
		tape.duration = 0
	}
	r.active = nil
	r.mode = Idle

	if len(tape.events) == 0 {
		r.sweepLocked()
		log.Info("Recording stopped, nothing captured", zap.Int("tape", tape.Index), logger.Action)
		return nil
	}

	log.Info("Recording stopped",
		zap.Int("tape", tape.Index),
		zap.Int("events", len(tape.events)),
		zap.Duration("duration", tape.duration),
		logger.Action,
	)

	if !r.opts.SyncLoops {
		return r.armLocked(tape)
	}

	var errs []error
	for _, t := range r.tapes {
		if t != tape && !t.scheduled() {
			continue
		}
		if err := r.armLocked(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// armLocked replaces any replay of the tape with a fresh one starting now.
func (r *Recorder) armLocked(tape *Tape) error {
	tape.cancel()

	if tape.duration < r.opts.MinLoopPeriod {
		log.Info("Tape too short to loop, playing once",
			zap.Int("tape", tape.Index),
			zap.Duration("duration", tape.duration),
			logger.Warning,
		)
		r.playLocked(tape)
		return nil
	}

	generation := tape.generation
	handle, err := r.timer.Every(tape.duration, func() {
		r.pass(tape, generation)
	})
	if err != nil {
		log.Info("Tape scheduling failed", zap.Int("tape", tape.Index), zap.Error(err), logger.Error)
		return fmt.Errorf("tape %d: %w", tape.Index, err)
	}
	tape.handle = handle

	r.playLocked(tape)
	return nil
}

func (r *Recorder) pass(tape *Tape, generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tape.generation != generation {
		return
	}
	r.playLocked(tape)
}

// playLocked schedules every event of the tape at its offset from now.
func (r *Recorder) playLocked(tape *Tape) {
	generation := tape.generation
	for _, env := range tape.events {
		env := env
		tape.pendingID++
		id := tape.pendingID

		handle, err := r.timer.AfterFunc(env.Timestamp, func() {
			r.emit(tape, generation, id, env)
		})
		if err != nil {
			log.Info("Event playback scheduling failed", zap.Int("tape", tape.Index), zap.Error(err), logger.Warning)
			continue
		}
		tape.pending[id] = handle
	}
}

func (r *Recorder) emit(tape *Tape, generation, id uint64, env midi.Envelope) {
	r.mu.Lock()
	if tape.generation != generation {
		r.mu.Unlock()
		return
	}
	delete(tape.pending, id)
	output := r.output
	r.mu.Unlock()

	if output == nil {
		return
	}
	log.Info(env.String(), zap.Int("tape", tape.Index), logger.Replay)
	output(env)
}

// Capture appends envelope to the tape being recorded, it is a no-op outside of recording.
func (r *Recorder) Capture(env midi.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode != Recording {
		return
	}

	now, err := r.timer.Now()
	if err != nil {
		log.Info("Event not captured, clock unavailable", zap.Error(err), logger.Warning)
		return
	}
	r.active.append(env, now.Sub(r.origin))
}

// Reset cancels every replay, discards all tapes and returns to idle.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tapes {
		t.cancel()
	}
	count := len(r.tapes)
	r.tapes = nil
	r.active = nil
	r.mode = Idle

	log.Info("Recorder reset", zap.Int("tapes", count), logger.Action)
}

// Retry schedules a retained tape again, replacing its current replay.
func (r *Recorder) Retry(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tape, err := r.tapeLocked(index)
	if err != nil {
		return err
	}
	if tape == r.active {
		return fmt.Errorf("tape %d: still recording", index)
	}
	if len(tape.events) == 0 {
		return fmt.Errorf("tape %d: %w", index, ErrTapeEmpty)
	}
	return r.armLocked(tape)
}

func (r *Recorder) tapeLocked(index int) (*Tape, error) {
	if index < 0 || index >= len(r.tapes) {
		return nil, fmt.Errorf("tape %d: %w", index, ErrNoSuchTape)
	}
	return r.tapes[index], nil
}

// Events returns copy of events captured by given tape.
func (r *Recorder) Events(index int) ([]midi.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tape, err := r.tapeLocked(index)
	if err != nil {
		return nil, err
	}
	events := make([]midi.Envelope, len(tape.events))
	copy(events, tape.events)
	return events, nil
}

type State struct {
	Mode Mode
	// Active is index of the tape being recorded, -1 when idle.
	Active int
	// Elapsed is time since the recording started, zero when idle.
	Elapsed time.Duration
	Tapes   []TapeState
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := State{Mode: r.mode, Active: -1, Tapes: make([]TapeState, 0, len(r.tapes))}
	if r.active != nil {
		state.Active = r.active.Index
		if now, err := r.timer.Now(); err == nil {
			state.Elapsed = now.Sub(r.origin)
		}
	}
	for _, t := range r.tapes {
		ts := t.state()
		ts.Recording = t == r.active
		state.Tapes = append(state.Tapes, ts)
	}
	return state
}
