package main

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/gethiox/magneto/internal/pkg/action"
	"github.com/gethiox/magneto/internal/pkg/config"
	"github.com/gethiox/magneto/internal/pkg/dispatch"
	"github.com/gethiox/magneto/internal/pkg/display"
	"github.com/gethiox/magneto/internal/pkg/input"
	"github.com/gethiox/magneto/internal/pkg/lights"
	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/gethiox/magneto/internal/pkg/midi"
	"github.com/gethiox/magneto/internal/pkg/midi/driver"
	"github.com/gethiox/magneto/internal/pkg/recorder"
	"github.com/gethiox/magneto/internal/pkg/sched"
	"github.com/gethiox/magneto/internal/pkg/tick"
	"go.uber.org/zap"
)

type engineOptions struct {
	Root          string
	MiddleC       int
	MinLoopPeriod time.Duration
	SyncLoops     bool
}

// turnTimer is a timer facility that can also run input callbacks in its turns.
type turnTimer interface {
	sched.Timer
	sched.Runner
}

// Engine binds recorder, dispatcher and tick driver together with the outputs following them.
type Engine struct {
	opts   engineOptions
	random *rand.Rand

	Recorder   *recorder.Recorder
	Driver     *tick.Driver
	Dispatcher *dispatch.Dispatcher

	mu       sync.Mutex
	mapping  config.MappingFile
	frame    tick.Frame
	keyboard *input.Keyboard
	renderer *lights.Renderer
	manager  *driver.Manager
	sources  map[string]int
}

func NewEngine(timer turnTimer, file config.MappingFile, opts engineOptions, random *rand.Rand) *Engine {
	rec := recorder.New(timer, recorder.Options{MinLoopPeriod: opts.MinLoopPeriod, SyncLoops: opts.SyncLoops})
	drv := tick.New(timer, tick.Options{Rest: action.Rests(file.Mapping.Params)})

	e := &Engine{
		opts:     opts,
		random:   random,
		Recorder: rec,
		Driver:   drv,
		mapping:  file,
		sources:  make(map[string]int),
	}
	registry := action.Build(file.Mapping, rec, drv, random)
	e.Dispatcher = dispatch.New(registry, midi.NewDecoder(opts.MiddleC), rec, timer)
	rec.SetOutput(e.Dispatcher.Replay)
	return e
}

func layoutOf(mapping config.Mapping) lights.Layout {
	return lights.Layout{Lights: mapping.Lights, Palette: mapping.Palette}
}

func (e *Engine) Mapping() config.MappingFile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mapping
}

// Apply swaps handler registry and every output following the mapping.
func (e *Engine) Apply(file config.MappingFile) {
	registry := action.Build(file.Mapping, e.Recorder, e.Driver, e.random)
	e.Driver.SetRest(action.Rests(file.Mapping.Params))
	e.Dispatcher.SetRegistry(registry)

	e.mu.Lock()
	e.mapping = file
	keyboard, renderer := e.keyboard, e.renderer
	e.mu.Unlock()

	if keyboard != nil {
		keyboard.SetKeys(file.Mapping.Keys)
	}
	if renderer != nil {
		renderer.SetLayout(layoutOf(file.Mapping))
	}
	log.Info("Mapping applied",
		zap.String("config", fmt.Sprintf("%s (%s)", file.Path, file.ConfigType)),
		zap.Int("notes", len(file.Mapping.Notes)),
		zap.Int("controllers", len(file.Mapping.Controllers)),
		logger.Info,
	)
}

// Reload reads mapping again, the current one stays in use when it fails.
func (e *Engine) Reload() error {
	file, err := config.LoadMapping(e.opts.Root, e.opts.MiddleC)
	if err != nil {
		log.Info(fmt.Sprintf("Mapping reload failed, previous one kept: %v", err), logger.Error)
		return err
	}
	e.Apply(file)
	return nil
}

// Watch reloads mapping on every change until ctx is done.
func (e *Engine) Watch(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for range config.DetectMappingChanges(ctx, config.MappingDirs(e.opts.Root)...) {
		_ = e.Reload()
	}
	log.Info("Mapping watcher stopped", logger.Debug)
}

func (e *Engine) SetKeyboard(k *input.Keyboard) {
	e.mu.Lock()
	e.keyboard = k
	e.mu.Unlock()
}

func (e *Engine) SetRenderer(r *lights.Renderer) {
	e.mu.Lock()
	e.renderer = r
	e.mu.Unlock()
}

// Manage creates port manager delivering events of discovered ports into the dispatcher.
func (e *Engine) Manage(discover driver.Discover, filter driver.Filter) *driver.Manager {
	m := driver.NewManager(discover, filter, e.Dispatcher.Dispatch)
	e.mu.Lock()
	e.manager = m
	e.mu.Unlock()
	return m
}

// Attach starts delivering events of the source into the dispatcher.
func (e *Engine) Attach(src driver.Source) (func(), error) {
	stop, err := src.Listen(e.Dispatcher.Dispatch)
	if err != nil {
		return nil, fmt.Errorf("listening on \"%s\" failed: %w", src.Name(), err)
	}

	name := src.Name()
	e.mu.Lock()
	e.sources[name]++
	e.mu.Unlock()
	log.Info("Source connected", zap.String("source", name), logger.Info)

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			e.mu.Lock()
			e.sources[name]--
			if e.sources[name] <= 0 {
				delete(e.sources, name)
			}
			e.mu.Unlock()
			log.Info("Source disconnected", zap.String("source", name), logger.Info)
		})
	}, nil
}

// Sources returns names of every connected input.
func (e *Engine) Sources() []string {
	e.mu.Lock()
	names := make([]string, 0, len(e.sources))
	for name := range e.sources {
		names = append(names, name)
	}
	manager := e.manager
	e.mu.Unlock()

	if manager != nil {
		names = append(names, manager.Active()...)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) Status() display.Status {
	live, replayed := e.Dispatcher.Counters()
	return display.Status{
		Recorder: e.Recorder.State(),
		Events:   live + replayed,
		Sources:  len(e.Sources()),
	}
}

// Step computes frame for the current time and forgets finished transients.
func (e *Engine) Step() tick.Frame {
	now := e.Driver.Elapsed()
	frame := e.Driver.Tick(now)
	e.Driver.Prune(now)

	e.mu.Lock()
	e.frame = frame
	e.mu.Unlock()
	return frame
}

// Frame returns the last computed frame.
func (e *Engine) Frame() tick.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

// RunFrames computes frames at given rate until ctx is done, frames nobody is ready for are skipped.
// Output channel is closed on exit.
func (e *Engine) RunFrames(ctx context.Context, wg *sync.WaitGroup, rate int, frames chan<- tick.Frame) {
	defer wg.Done()
	defer close(frames)

	ticker := time.NewTicker(time.Second / time.Duration(max(rate, 1)))
	defer ticker.Stop()

	log.Info("Frame loop started", zap.Int("rate", rate), logger.Debug)
root:
	for {
		select {
		case <-ctx.Done():
			break root
		case <-ticker.C:
		}

		frame := e.Step()
		select {
		case frames <- frame:
		default:
		}
	}
	log.Info("Frame loop stopped", logger.Debug)
}
