package sched

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Virtual is a manually advanced Timer, time moves only with Advance.
// Callbacks due at the same instant run in scheduling order.
type Virtual struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*virtualTimer

	// ClockErr, when set, is returned by Now.
	ClockErr error
	// ScheduleErr, when set, is returned by AfterFunc and Every.
	ScheduleErr error
}

func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

func (v *Virtual) Now() (time.Time, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ClockErr != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrClockUnavailable, v.ClockErr)
	}
	return v.now, nil
}

func (v *Virtual) Do(f func()) {
	f()
}

func (v *Virtual) AfterFunc(d time.Duration, f func()) (Handle, error) {
	if d < 0 {
		d = 0
	}
	return v.schedule(d, 0, f)
}

func (v *Virtual) Every(d time.Duration, f func()) (Handle, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: non-positive interval %s", ErrScheduleFailed, d)
	}
	return v.schedule(d, d, f)
}

func (v *Virtual) schedule(d, every time.Duration, f func()) (Handle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.ScheduleErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrScheduleFailed, v.ScheduleErr)
	}

	t := &virtualTimer{virtual: v, f: f, every: every, due: v.now.Add(d)}
	v.push(t)
	return t, nil
}

// push expects v.mu to be held.
func (v *Virtual) push(t *virtualTimer) {
	v.seq++
	t.seq = v.seq
	v.pending = append(v.pending, t)
	sort.SliceStable(v.pending, func(i, j int) bool {
		a, b := v.pending[i], v.pending[j]
		if a.due.Equal(b.due) {
			return a.seq < b.seq
		}
		return a.due.Before(b.due)
	})
}

func (v *Virtual) remove(t *virtualTimer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, p := range v.pending {
		if p == t {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return
		}
	}
}

// Pending returns number of armed timers.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// Advance moves virtual time forward by d, firing every callback that becomes due,
// including the ones scheduled by callbacks themselves.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)

	for len(v.pending) > 0 && !v.pending[0].due.After(target) {
		t := v.pending[0]
		v.pending = v.pending[1:]
		v.now = t.due

		if t.every > 0 {
			t.due = t.due.Add(t.every)
			v.push(t)
		} else {
			t.stopped = true
		}

		v.mu.Unlock()
		t.f()
		v.mu.Lock()
	}

	v.now = target
	v.mu.Unlock()
}

type virtualTimer struct {
	virtual *Virtual
	f       func()
	every   time.Duration
	due     time.Time
	seq     uint64
	stopped bool
}

func (t *virtualTimer) Stop() {
	t.virtual.mu.Lock()
	if t.stopped {
		t.virtual.mu.Unlock()
		return
	}
	t.stopped = true
	t.virtual.mu.Unlock()
	t.virtual.remove(t)
}
