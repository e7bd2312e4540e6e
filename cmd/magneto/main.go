package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/awesome-gocui/gocui"
	"github.com/gethiox/magneto/internal/pkg/config"
	"github.com/gethiox/magneto/internal/pkg/display"
	"github.com/gethiox/magneto/internal/pkg/input"
	"github.com/gethiox/magneto/internal/pkg/lights"
	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/gethiox/magneto/internal/pkg/midi/driver"
	"github.com/gethiox/magneto/internal/pkg/midi/driver/rtmidi"
	"github.com/gethiox/magneto/internal/pkg/midi/smf"
	"github.com/gethiox/magneto/internal/pkg/sched"
	"github.com/gethiox/magneto/internal/pkg/tick"
	"github.com/gethiox/magneto/internal/pkg/utils"
	"github.com/logrusorgru/aurora"
	gomidi "gitlab.com/gomidi/midi/v2"
)

var log = logger.GetLogger()

func handleSigs(wg *sync.WaitGroup, sigs <-chan os.Signal, cancel func(), g *gocui.Gui) {
	defer wg.Done()
	var counter int
	for sig := range sigs {
		if counter > 0 {
			fmt.Println("Dirty exit")
			os.Exit(1)
		}
		log.Info(fmt.Sprintf("signal received: %v", sig), logger.Debug)
		cancel()
		if g != nil {
			g.Close()
		}
		counter++
	}
}

func runUI(cfg MagnetoConfig, ui bool, sigs chan os.Signal) *gocui.Gui {
	if !ui {
		return nil
	}

	g, err := GetCli()
	if err != nil {
		panic(err)
	}

	go func() {
		if err := g.MainLoop(); err != nil {
			if err != gocui.ErrQuit {
				panic(err)
			}
			sigs <- syscall.SIGINT // pretend that we received signal when exited from gui
		}
	}()

	go func() {
		for {
			g.Update(Layout)
			time.Sleep(cfg.Magneto.LogViewRate)
		}
	}()

	time.Sleep(time.Millisecond * 500) // waiting for view init
	return g
}

// runLogPrinter prints log messages on stdout until logger.Messages is closed.
func runLogPrinter(silent, color bool, logLevel int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if silent {
			for range logger.Messages {
			}
			return
		}
		fmt.Printf("for nicer output use -ui flag\n")
		au := aurora.NewAurora(color)
		for data := range logger.Messages {
			msg, err := unpack(data)
			if err != nil {
				fmt.Printf("%s\n", string(data))
				continue
			}
			m := prepareString(msg, au, -1, logLevel)
			if m != "" {
				fmt.Printf("%s\n", m)
			}
		}
	}()
	return done
}

func listPorts(filter driver.Filter) {
	accepted := map[string]int{}
	for i, s := range filter.Select(rtmidi.GetInPorts()) {
		accepted[s.Name()] = i
	}
	fmt.Printf("MIDI input ports:\n")
	for _, s := range rtmidi.GetInPorts() {
		if i, ok := accepted[s.Name()]; ok {
			fmt.Printf("  [%d] %s\n", i, s.Name())
		} else {
			fmt.Printf("  [-] %s (excluded)\n", s.Name())
		}
	}
}

var (
	configRoot = flag.String("config", configDir, "config directory, created with defaults when missing")
	ui         = flag.Bool("ui", false, "engage debug ui")
	force256   = flag.Bool("256", false, "force 256 color mode")
	nocolor    = flag.Bool("nocolor", false, "disable color")
	logLevel   = flag.Int("loglevel", 3,
		"logging level, each level enables additional information class (0-5, default: 3)\n"+
			"more verbose levels may slightly impact overall performance\n"+
			"\navailable options:\n"+
			"0: general info (eg. port appearance status)\n"+
			"1: action events (record toggle, reset etc.)\n"+
			"2: events of debug-enabled mapping\n"+
			"3: events not assigned to any handler\n"+
			"4: events replayed from tapes\n"+
			"5: debug",
	)
	silent     = flag.Bool("silent", false, "no output logging, best performance")
	midiDevice = flag.Int("mididevice", -1, "listen only on N-th accepted midi port, default: -1 (every accepted port, hot-plug)")
	list       = flag.Bool("list", false, "list midi input ports and exit")
	virtual    = flag.String("virtual", "", "open virtual midi input with given name")
	play       = flag.String("play", "", "play standard midi file as an input source")
	bpm        = flag.Int("bpm", smf.DefaultBPM, "tempo of played midi file, quarter notes per minute")
	grab       = flag.Bool("grab", false, "grab keyboard for exclusive usage, overrides config")
)

// logClass turns -loglevel value into the highest logged level class.
func logClass(level int) int {
	level += 2
	if level > logger.ReplayLvl {
		return logger.DebugLvl
	}
	return level
}

func connectLights(ctx context.Context, wg *sync.WaitGroup, e *Engine, cfg lights.Config, frames *utils.Broadcast[tick.Frame]) {
	renderer, closer, err := lights.Connect(cfg, layoutOf(e.Mapping().Mapping))
	if err != nil {
		log.Info(fmt.Sprintf("[OpenRGB] %v", err), logger.Warning)
		return
	}
	id, sub, err := frames.Subscribe()
	if err != nil {
		log.Info(fmt.Sprintf("[OpenRGB] %v", err), logger.Warning)
		closer()
		return
	}
	e.SetRenderer(renderer)

	wg.Add(1)
	go func() {
		defer wg.Done()
		renderer.Run(ctx, sub)
		log.Info(fmt.Sprintf("[OpenRGB] frames skipped: %d", frames.Dropped(id)), logger.Debug)
		_ = frames.Unsubscribe(id) // already closed when frames ended first
		if err := closer(); err != nil {
			log.Info(fmt.Sprintf("[OpenRGB] closing connection failed: %v", err), logger.Debug)
		}
	}()
}

// connectSources attaches every configured input, returned function detaches them.
func connectSources(ctx context.Context, wg *sync.WaitGroup, e *Engine, cfg MagnetoConfig) func() {
	var stops []func()
	attach := func(src driver.Source, err error) {
		if err != nil {
			log.Info(fmt.Sprintf("Input source unavailable: %v", err), logger.Error)
			return
		}
		stop, err := e.Attach(src)
		if err != nil {
			log.Info(err.Error(), logger.Error)
			return
		}
		stops = append(stops, stop)
	}

	if *midiDevice >= 0 {
		attach(rtmidi.PickMidiPort(cfg.MIDI.Filter, *midiDevice))
	} else {
		manager := e.Manage(rtmidi.GetInPorts, cfg.MIDI.Filter)
		wg.Add(1)
		go func() {
			defer wg.Done()
			manager.Run(ctx, cfg.MIDI.RescanInterval)
		}()
	}

	if *virtual != "" {
		attach(rtmidi.CreateVirtualPort(*virtual))
	}

	if *play != "" {
		player, err := smf.ReadFile(*play, smf.Options{BPM: *bpm})
		if player != nil {
			log.Info(fmt.Sprintf("Playing \"%s\", %d events, %s", *play, len(player.Events()), player.Duration()), logger.Info)
		}
		attach(player, err)
	}

	if cfg.Keyboard.Enabled {
		k := input.NewKeyboard(cfg.Keyboard.Device, e.Mapping().Mapping.Keys, cfg.Keyboard.Grab || *grab)
		e.SetKeyboard(k)
		attach(k, nil)
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

func main() {
	flag.Parse()
	*logLevel = logClass(*logLevel)

	if *force256 {
		os.Setenv("TERM", "xterm-256color")
	}

	withUI := *ui && !*silent

	// debug ui reads log messages on its own
	var printed <-chan struct{}
	if withUI {
		closed := make(chan struct{})
		close(closed)
		printed = closed
	} else {
		printed = runLogPrinter(*silent, !*nocolor, *logLevel)
	}
	exit := func(code int) {
		close(logger.Messages)
		<-printed
		os.Exit(code)
	}

	err := createConfigDirectoryIfNeeded(*configRoot)
	if err != nil {
		log.Info(err.Error(), logger.Error)
		exit(1)
	}

	cfg, err := LoadMagnetoConfig(filepath.Join(*configRoot, "magneto.config"))
	if err != nil {
		log.Info(err.Error(), logger.Error)
		exit(1)
	}
	log.Info(fmt.Sprintf("Magneto config: %+v", cfg), logger.Debug)
	defer gomidi.CloseDriver()

	if *list {
		listPorts(cfg.MIDI.Filter)
		exit(0)
	}

	mapping, err := config.LoadMapping(*configRoot, cfg.MIDI.MiddleC)
	if err != nil {
		log.Info(fmt.Sprintf("Mapping config load failed: %v", err), logger.Error)
		exit(1)
	}

	var sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())

	g := runUI(cfg, withUI, sigs)

	// this wait-group has to be propagated everywhere where usual logging appear
	wg := sync.WaitGroup{}
	wg.Add(1)
	go handleSigs(&wg, sigs, cancel, g)

	loop := sched.NewLoop()
	engine := NewEngine(loop, mapping, engineOptions{
		Root:          *configRoot,
		MiddleC:       cfg.MIDI.MiddleC,
		MinLoopPeriod: cfg.Magneto.MinLoopPeriod,
		SyncLoops:     cfg.Magneto.SyncLoops,
	}, rand.New(rand.NewSource(time.Now().UnixNano())))
	engine.Apply(mapping)

	wg.Add(1)
	go engine.Watch(ctx, &wg)

	frames := make(chan tick.Frame, 1)
	wg.Add(1)
	go engine.RunFrames(ctx, &wg, cfg.Magneto.FrameRate, frames)
	frameBroadcast := utils.NewBroadcast[tick.Frame](frames)

	if cfg.OpenRGB.Enabled {
		connectLights(ctx, &wg, engine, cfg.OpenRGB, frameBroadcast)
	}

	wg.Add(1)
	dd := display.Generate(ctx, &wg, cfg.Screen, engine.Status)
	displayBroadcast := utils.NewBroadcast(dd)

	if cfg.Screen.Enabled {
		_, screen, err := displayBroadcast.Subscribe()
		if err == nil {
			wg.Add(1)
			go display.HandleDisplay(&wg, cfg.Screen, screen)
		}
	}

	if g != nil {
		_, lcd, err := displayBroadcast.Subscribe()
		if err == nil {
			go lcdView(g, lcd)
		}
		go logView(g, !*nocolor, *logLevel, cfg.Magneto.LogBufferSize)
		go overviewView(g, !*nocolor, engine)
	}

	disconnect := connectSources(ctx, &wg, engine, cfg)
	log.Info("Magneto ready", logger.Info)

	<-ctx.Done()

	disconnect()
	engine.Recorder.Reset()
	loop.Close()
	signal.Stop(sigs)
	close(sigs)

	log.Info("waiting...", logger.Debug)
	// closing logger can be safely invoked only when all internally running goroutines (that may emit logs) are done
	wg.Wait()
	<-frameBroadcast.Done()
	<-displayBroadcast.Done()
	close(logger.Messages)
	<-printed
}
