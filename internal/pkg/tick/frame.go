package tick

import (
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

// Frame is a snapshot of parameter state for one refresh. It is never mutated after Tick returns it.
type Frame struct {
	At     time.Duration
	Params map[string]float64
	// Waves holds one cyclic value per object, sin(now/speed + index).
	Waves      []float64
	Speed      time.Duration
	Background colorful.Color
}

func (f Frame) Param(name string) float64 {
	return f.Params[name]
}

func (f Frame) LightLevel(identifier string) float64 {
	return f.Params[Light(identifier)]
}
