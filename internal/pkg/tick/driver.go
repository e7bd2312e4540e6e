package tick

import (
	"math"
	"sync"
	"time"

	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/gethiox/magneto/internal/pkg/sched"
	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const (
	Glitch   = "glitch"
	Pixelate = "pixelate"
	Bloom    = "bloom"
	Mega     = "mega"
	X        = "x"
	Y        = "y"
	Position = "position"
	Ambient  = "ambient"

	lightPrefix = "light:"
)

// Light returns parameter name of the light bound to note identifier.
func Light(identifier string) string {
	return lightPrefix + identifier
}

const (
	DefaultSpeed   = 500 * time.Millisecond
	DefaultObjects = 8
)

// DefaultRest holds values parameters decay to.
var DefaultRest = map[string]float64{
	Glitch:   0,
	Pixelate: 0,
	Bloom:    4,
	Mega:     0,
	X:        0,
	Y:        0,
	Position: 0,
	Ambient:  1,
}

type Options struct {
	// Objects is number of cyclic parameters.
	Objects int
	Speed   time.Duration
	Rest    map[string]float64
}

// Driver owns time-based parameter state. Handlers write through Set/Ease/EaseTo,
// the frame loop reads through Tick. All values are derived from absolute elapsed time.
type Driver struct {
	clock  sched.Clock
	origin time.Time

	mu          sync.Mutex
	last        time.Duration
	objects     int
	speed       time.Duration
	rest        map[string]float64
	params      map[string]transient
	background  colorful.Color
	bgTransient transient
}

func New(clock sched.Clock, opts Options) *Driver {
	if opts.Objects <= 0 {
		opts.Objects = DefaultObjects
	}
	if opts.Speed <= 0 {
		opts.Speed = DefaultSpeed
	}
	rest := make(map[string]float64, len(DefaultRest)+len(opts.Rest))
	for k, v := range DefaultRest {
		rest[k] = v
	}
	for k, v := range opts.Rest {
		rest[k] = v
	}

	origin, err := clock.Now()
	if err != nil {
		log.Info("Clock unavailable, tick origin set to zero time", zap.Error(err), logger.Warning)
	}

	return &Driver{
		clock:       clock,
		origin:      origin,
		objects:     opts.Objects,
		speed:       opts.Speed,
		rest:        rest,
		params:      make(map[string]transient),
		background:  colorful.Color{},
		bgTransient: transient{from: 1, to: 1},
	}
}

// Elapsed returns time since the driver was created, last ticked time when clock is unavailable.
func (d *Driver) Elapsed() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elapsedLocked()
}

func (d *Driver) elapsedLocked() time.Duration {
	now, err := d.clock.Now()
	if err != nil {
		return d.last
	}
	return now.Sub(d.origin)
}

func (d *Driver) valueLocked(name string, now time.Duration) float64 {
	t, ok := d.params[name]
	if !ok {
		return d.rest[name]
	}
	return t.at(now)
}

// Set holds parameter at value until it is eased again.
func (d *Driver) Set(name string, value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.elapsedLocked()
	d.params[name] = transient{from: value, to: value, start: now}
}

// Ease moves parameter from one value to another over duration, starting now.
func (d *Driver) Ease(name string, from, to float64, duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.elapsedLocked()
	d.params[name] = transient{from: from, to: to, start: now, duration: duration}
}

// EaseTo moves parameter from its current value to the given one over duration.
func (d *Driver) EaseTo(name string, to float64, duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.elapsedLocked()
	d.params[name] = transient{from: d.valueLocked(name, now), to: to, start: now, duration: duration}
}

// Decay eases parameter from peak down to its rest value.
func (d *Driver) Decay(name string, peak float64, duration time.Duration) {
	d.mu.Lock()
	rest := d.rest[name]
	d.mu.Unlock()
	d.Ease(name, peak, rest, duration)
}

// Pulse holds parameter at peak for duration, then returns it to its rest value.
func (d *Driver) Pulse(name string, peak float64, duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.elapsedLocked()
	d.params[name] = transient{from: peak, to: d.rest[name], start: now, duration: duration, step: true}
}

// Rest returns rest value of parameter.
func (d *Driver) Rest(name string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rest[name]
}

// SetRest overrides rest values, running transients keep their targets.
func (d *Driver) SetRest(rest map[string]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, v := range rest {
		d.rest[name] = v
	}
}

// SetSpeed sets period of cyclic parameters from normalized value, higher values are faster.
func (d *Driver) SetSpeed(value float64) {
	ms := 1000 - value*1000
	if ms < 1 {
		ms = 1
	}
	d.mu.Lock()
	d.speed = time.Duration(ms * float64(time.Millisecond))
	d.mu.Unlock()
}

// Flash sets background colour and fades it to black over duration.
func (d *Driver) Flash(c colorful.Color, duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.background = c
	d.bgTransient = transient{from: 0, to: 1, start: d.elapsedLocked(), duration: duration}
}

// Tick computes frame for given elapsed time. Calling it repeatedly with the same time yields
// the same frame, skipped calls lose nothing.
func (d *Driver) Tick(now time.Duration) Frame {
	d.mu.Lock()
	defer d.mu.Unlock()

	if now > d.last {
		d.last = now
	}

	params := make(map[string]float64, len(d.rest)+len(d.params))
	for name, v := range d.rest {
		params[name] = v
	}
	for name, t := range d.params {
		params[name] = t.at(now)
	}

	speedMs := float64(d.speed) / float64(time.Millisecond)
	nowMs := float64(now) / float64(time.Millisecond)
	waves := make([]float64, d.objects)
	for r := range waves {
		waves[r] = math.Sin(nowMs/speedMs + float64(r))
	}

	black := colorful.Color{}
	background := d.background.BlendRgb(black, d.bgTransient.progress(now)).Clamped()

	return Frame{
		At:         now,
		Params:     params,
		Waves:      waves,
		Speed:      d.speed,
		Background: background,
	}
}

// Prune forgets finished transients that ended at the rest value, returns number of removed ones.
func (d *Driver) Prune(now time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for name, t := range d.params {
		if t.done(now) && t.to == d.rest[name] {
			delete(d.params, name)
			removed++
		}
	}
	return removed
}
