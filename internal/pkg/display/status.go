package display

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gethiox/magneto/internal/pkg/recorder"
)

var blocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
var heart, randomChar = '❤', '░'

// Status is everything shown on the screen.
type Status struct {
	Recorder recorder.State
	// Events is total number of handled events, live and replayed.
	Events  uint64
	Sources int
}

type DisplayData struct {
	Lines   [4]string
	LastMsg bool // inform LCD about loading exit message to load differrent custom character set
}

// Screen turns status snapshots into screen lines, it keeps event rate history for the graph.
type Screen struct {
	columns, rows int

	graph        []uint64
	graphPointer int
	lastEvents   uint64
	started      bool
}

func NewScreen(columns, rows int) *Screen {
	return &Screen{
		columns: columns,
		rows:    rows,
		graph:   make([]uint64, columns),
	}
}

func pad(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-len(r))
}

// field renders label on the left and value aligned to the right edge.
func field(label, value string, width int) string {
	gap := width - len([]rune(label)) - len([]rune(value))
	if gap < 1 {
		gap = 1
	}
	return pad(label+strings.Repeat(" ", gap)+value, width)
}

func (s *Screen) header(state recorder.State) string {
	if state.Mode == recorder.Recording {
		return field(fmt.Sprintf("REC #%d", state.Active), fmt.Sprintf("%.1fs", state.Elapsed.Seconds()), s.columns)
	}
	return field("idle", fmt.Sprintf("tapes: %d", len(state.Tapes)), s.columns)
}

func (s *Screen) loops(state recorder.State) string {
	var scheduled, inFlight int
	for _, t := range state.Tapes {
		if t.Scheduled {
			scheduled++
		}
		inFlight += t.InFlight
	}
	return field(fmt.Sprintf("loops: %d", scheduled), fmt.Sprintf("queued: %d", inFlight), s.columns)
}

func (s *Screen) bars() string {
	var maxGraph uint64
	for _, v := range s.graph {
		if v > maxGraph {
			maxGraph = v
		}
	}
	if maxGraph < 8 {
		maxGraph = 8
	}

	var b strings.Builder
	for i := range s.graph {
		v := s.graph[(s.graphPointer+i)%len(s.graph)]
		if v == 0 {
			b.WriteRune(' ')
			continue
		}
		realVal := float64(v) / (float64(maxGraph) + 1) * 7
		b.WriteRune(blocks[int(realVal)])
	}
	return b.String()
}

// Update records event rate since the previous update and returns screen content.
func (s *Screen) Update(status Status, period time.Duration) [4]string {
	var rate uint64
	if s.started && status.Events >= s.lastEvents && period > 0 {
		rate = uint64(float64(status.Events-s.lastEvents) / period.Seconds())
	}
	s.started = true
	s.lastEvents = status.Events

	s.graph[s.graphPointer] = rate
	s.graphPointer = (s.graphPointer + 1) % len(s.graph)

	var lines [4]string
	if s.rows < 4 {
		lines[0] = s.header(status.Recorder)
		lines[1] = s.bars()
		return lines
	}
	lines[0] = s.header(status.Recorder)
	lines[1] = s.loops(status.Recorder)
	lines[2] = field("events:", fmt.Sprintf("%d", rate), s.columns)
	lines[3] = s.bars()
	return lines
}

// Farewell returns exit screen content.
func (s *Screen) Farewell(cfg ScreenConfig, loops int) [4]string {
	var lines [4]string
	if cfg.HaveExitMessage() {
		for i, msg := range cfg.ExitMessage {
			lines[i] = pad(msg, s.columns)
		}
		return lines
	}

	center := func(msg string) string {
		return fmt.Sprintf("%*s", -s.columns, fmt.Sprintf("%*s", (s.columns+len([]rune(msg)))/2, msg))
	}
	lines[0] = center(fmt.Sprintf("%c see you %c", randomChar, heart))
	lines[1] = center(fmt.Sprintf("loops: %d", loops))
	return lines
}

// Generate emits screen content every cfg.UpdateRate until ctx is done, the last message is the exit screen.
func Generate(ctx context.Context, wg *sync.WaitGroup, cfg ScreenConfig, status func() Status) <-chan DisplayData {
	data := make(chan DisplayData)
	columns, rows := cfg.Size()
	screen := NewScreen(columns, rows)

	rate := cfg.UpdateRate
	if rate <= 0 {
		rate = time.Second
	}

	go func() {
		defer wg.Done()
		defer close(data)

		var last Status
	root:
		for {
			start := time.Now()
			last = status()
			lines := screen.Update(last, rate)

			select {
			case data <- DisplayData{Lines: lines}:
			case <-ctx.Done():
				break root
			}

			select {
			case <-ctx.Done():
				break root
			case <-time.After(rate - time.Since(start)):
			}
		}

		var loops int
		for _, t := range last.Recorder.Tapes {
			if t.Scheduled {
				loops++
			}
		}
		data <- DisplayData{Lines: screen.Farewell(cfg, loops), LastMsg: true}
	}()

	return data
}
