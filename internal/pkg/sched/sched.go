package sched

import (
	"errors"
	"time"
)

var (
	ErrClockUnavailable = errors.New("clock unavailable")
	ErrScheduleFailed   = errors.New("scheduling failed")
	ErrClosed           = errors.New("scheduler closed")
)

// Clock provides current time, reading it may fail.
type Clock interface {
	Now() (time.Time, error)
}

// Handle is a cancellable scheduled callback.
// Stop is safe to call multiple times and from inside any callback,
// once it returns the callback will not be invoked again.
type Handle interface {
	Stop()
}

// Scheduler is the timer facility used by the recorder.
type Scheduler interface {
	// AfterFunc calls f once after d.
	AfterFunc(d time.Duration, f func()) (Handle, error)
	// Every calls f every d, the first call happens after d.
	Every(d time.Duration, f func()) (Handle, error)
}

// Timer is a Clock and Scheduler that share one time source.
type Timer interface {
	Clock
	Scheduler
}

// Runner executes f inside a mutually-exclusive turn.
type Runner interface {
	Do(f func())
}
