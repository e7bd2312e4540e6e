package smf

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/gethiox/magneto/internal/pkg/midi"
	"github.com/gethiox/magneto/internal/pkg/midi/driver"
	mmidi "github.com/moutend/go-midi"
	mmidiev "github.com/moutend/go-midi/event"
	"go.uber.org/zap"

	gomidi "gitlab.com/gomidi/midi/v2"
)

var log = logger.GetLogger()

const (
	DefaultBPM = 120
	DefaultPPQ = 120
)

// Timed is a raw event at its offset from the start of the file.
type Timed struct {
	Offset time.Duration
	Event  midi.Event
}

// Player replays channel events of a Standard MIDI File, all tracks merged.
type Player struct {
	name   string
	events []Timed

	mu     sync.Mutex
	cancel context.CancelFunc
}

type Options struct {
	BPM int
	PPQ int // ticks per quarter note, overrides file header when set
}

// ticksPerMinute resolves tempo and resolution, division comes from the file header.
func (o Options) ticksPerMinute(division uint16) int64 {
	bpm, ppq := o.BPM, o.PPQ
	if bpm <= 0 {
		bpm = DefaultBPM
	}
	if ppq <= 0 {
		ppq = int(division)
	}
	if ppq <= 0 {
		ppq = DefaultPPQ
	}
	return int64(bpm) * int64(ppq)
}

// headerDivision returns ticks per quarter note stored in MThd chunk.
func headerDivision(data []byte) (uint16, error) {
	if len(data) < 14 || string(data[:4]) != "MThd" {
		return 0, fmt.Errorf("missing MThd header")
	}
	division := binary.BigEndian.Uint16(data[12:14])
	if division&0x8000 != 0 {
		return 0, fmt.Errorf("SMPTE time division is not supported")
	}
	return division, nil
}

type tickedEvent struct {
	ticks uint64
	event midi.Event
}

// Load parses file contents.
func Load(name string, data []byte, opts Options) (*Player, error) {
	parser := mmidi.NewParser(data)
	parsed, err := parser.Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse midi file: %w", err)
	}
	division, err := headerDivision(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse midi file: %w", err)
	}

	var ticked []tickedEvent
	for _, track := range parsed.Tracks {
		var position uint64
		for _, event := range track.Events {
			position += uint64(event.DeltaTime().Quantity().Uint32())

			var raw []byte
			switch v := event.(type) {
			case *mmidiev.NoteOnEvent:
				raw = v.Serialize()
			case *mmidiev.NoteOffEvent:
				raw = v.Serialize()
			case *mmidiev.ControllerEvent:
				raw = v.Serialize()
			case *mmidiev.PitchBendEvent:
				raw = v.Serialize()
			case *mmidiev.ProgramChangeEvent:
				raw = v.Serialize()
			default:
				continue
			}
			ticked = append(ticked, tickedEvent{ticks: position, event: raw})
		}
	}

	sort.SliceStable(ticked, func(i, j int) bool {
		return ticked[i].ticks < ticked[j].ticks
	})

	perMinute := opts.ticksPerMinute(division)
	events := make([]Timed, 0, len(ticked))
	for _, t := range ticked {
		offset := time.Duration(int64(t.ticks) * int64(time.Minute) / perMinute)
		events = append(events, Timed{Offset: offset, Event: t.event})
	}

	return &Player{name: name, events: events}, nil
}

func ReadFile(path string, opts Options) (*Player, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read midi file: %w", err)
	}
	return Load(filepath.Base(path), data, opts)
}

func (p *Player) Name() string {
	return fmt.Sprintf("file: %s", p.name)
}

func (p *Player) Events() []Timed {
	return p.events
}

func (p *Player) Duration() time.Duration {
	if len(p.events) == 0 {
		return 0
	}
	return p.events[len(p.events)-1].Offset
}

// Play sends events to fn at their offsets, it blocks until the end of file or ctx cancellation.
// Notes still sounding at exit get a note-off.
func (p *Player) Play(ctx context.Context, fn driver.Listener) error {
	sounding := make(map[[2]uint8]bool)
	defer func() {
		for key := range sounding {
			fn(midi.Event(gomidi.NoteOff(key[0], key[1])))
		}
	}()

	start := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for _, e := range p.events {
		wait := e.Offset - time.Since(start)
		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		var channel, key, velocity uint8
		msg := gomidi.Message(e.Event)
		switch {
		case msg.GetNoteStart(&channel, &key, &velocity):
			sounding[[2]uint8{channel, key}] = true
		case msg.GetNoteEnd(&channel, &key):
			delete(sounding, [2]uint8{channel, key})
		}
		fn(e.Event)
	}
	return nil
}

// Listen plays the file in background, stop interrupts playback and waits for it to finish.
func (p *Player) Listen(fn driver.Listener) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil, fmt.Errorf("player already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel

	go func() {
		defer close(done)
		log.Info("Playback started", zap.String("source", p.Name()), logger.Info)
		err := p.Play(ctx, fn)
		if err != nil {
			log.Info(fmt.Sprintf("playback interrupted: %v", err), zap.String("source", p.Name()), logger.Debug)
			return
		}
		log.Info("Playback finished", zap.String("source", p.Name()), logger.Info)
	}()

	return func() {
		cancel()
		<-done
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
	}, nil
}
