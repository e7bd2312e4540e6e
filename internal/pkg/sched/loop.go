package sched

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Loop is a wall-clock Timer that runs every scheduled callback inside a single turn,
// input callbacks join the same turn through Do, so no two callbacks ever interleave.
type Loop struct {
	turn sync.Mutex

	mu     sync.Mutex
	timers map[*loopTimer]struct{}
	closed bool
}

func NewLoop() *Loop {
	return &Loop{timers: make(map[*loopTimer]struct{})}
}

func (l *Loop) Now() (time.Time, error) {
	return time.Now(), nil
}

func (l *Loop) Do(f func()) {
	l.turn.Lock()
	defer l.turn.Unlock()
	f()
}

func (l *Loop) AfterFunc(d time.Duration, f func()) (Handle, error) {
	if d < 0 {
		d = 0
	}
	return l.schedule(d, 0, f)
}

func (l *Loop) Every(d time.Duration, f func()) (Handle, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: non-positive interval %s", ErrScheduleFailed, d)
	}
	return l.schedule(d, d, f)
}

// Pending returns number of armed timers.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// Close stops every armed timer, scheduling afterwards fails with ErrClosed.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	timers := l.timers
	l.timers = make(map[*loopTimer]struct{})
	l.mu.Unlock()

	for t := range timers {
		t.Stop()
	}
}

func (l *Loop) schedule(d, every time.Duration, f func()) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	t := &loopTimer{
		loop:     l,
		f:        f,
		every:    every,
		deadline: time.Now().Add(d),
	}
	l.timers[t] = struct{}{}
	t.mu.Lock()
	t.timer = time.AfterFunc(d, t.fire)
	t.mu.Unlock()
	return t, nil
}

func (l *Loop) forget(t *loopTimer) {
	l.mu.Lock()
	delete(l.timers, t)
	l.mu.Unlock()
}

type loopTimer struct {
	loop    *Loop
	f       func()
	every   time.Duration
	stopped atomic.Bool

	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
}

func (t *loopTimer) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	t.loop.forget(t)
}

func (t *loopTimer) fire() {
	t.loop.turn.Lock()
	defer t.loop.turn.Unlock()

	// stopped while waiting for the turn
	if t.stopped.Load() {
		return
	}

	if t.every == 0 {
		t.stopped.Store(true)
		t.loop.forget(t)
	} else {
		// deadlines are derived from the first one, so periods do not drift
		t.mu.Lock()
		t.deadline = t.deadline.Add(t.every)
		t.timer.Reset(time.Until(t.deadline))
		t.mu.Unlock()
	}

	t.f()
}
