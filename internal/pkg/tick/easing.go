package tick

import (
	"math"
	"time"
)

// EaseInOutSine maps progress k in 0.0 - 1.0 range onto the sinusoidal in/out curve.
func EaseInOutSine(k float64) float64 {
	switch {
	case k <= 0:
		return 0
	case k >= 1:
		return 1
	}
	return 0.5 * (1 - math.Cos(math.Pi*k))
}

// transient moves from one value to another over duration, starting at given offset.
type transient struct {
	from, to float64
	start    time.Duration
	duration time.Duration
	// step holds from for the whole duration and jumps to the target at the end
	step bool
}

func (t transient) progress(now time.Duration) float64 {
	if t.duration <= 0 {
		return 1
	}
	return EaseInOutSine(float64(now-t.start) / float64(t.duration))
}

func (t transient) at(now time.Duration) float64 {
	if t.step {
		if t.done(now) {
			return t.to
		}
		return t.from
	}
	return t.from + (t.to-t.from)*t.progress(now)
}

func (t transient) done(now time.Duration) bool {
	return now-t.start >= t.duration
}
