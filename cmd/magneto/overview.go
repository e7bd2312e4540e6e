package main

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/awesome-gocui/gocui"
	"github.com/gethiox/magneto/internal/pkg/display"
	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/gethiox/magneto/internal/pkg/recorder"
	"github.com/gethiox/magneto/internal/pkg/tick"
	"github.com/logrusorgru/aurora"
)

// logBuffer keeps last size log messages.
type logBuffer struct {
	mu    sync.Mutex
	data  [][]byte
	next  int
	count int
}

func newLogBuffer(size int) *logBuffer {
	if size < 1 {
		size = 1
	}
	return &logBuffer{data: make([][]byte, size)}
}

func (b *logBuffer) WriteMessage(msg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[b.next] = msg
	b.next = (b.next + 1) % len(b.data)
	if b.count < len(b.data) {
		b.count++
	}
}

// ReadLastMessages returns up to n newest messages, oldest first.
func (b *logBuffer) ReadLastMessages(n int) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	n = min(max(n, 0), b.count)
	messages := make([][]byte, n)
	start := b.next - n
	if start < 0 {
		start += len(b.data)
	}
	for i := range messages {
		messages[i] = b.data[(start+i)%len(b.data)]
	}
	return messages
}

func padLine(s string, width int) string {
	return s + strings.Repeat(" ", max(width-rawStringLen(s), 0))
}

func tapeLine(au aurora.Aurora, t recorder.TapeState) string {
	var status aurora.Value
	switch {
	case t.Recording:
		status = au.Red("REC ")
	case t.Scheduled:
		status = au.Green("LOOP")
	case t.Events > 0:
		status = au.Yellow("HOLD")
	default:
		status = au.Gray(12, "----")
	}
	return fmt.Sprintf(
		"#%-2d %s events: %4d, period: %7.3fs, in flight: %3d",
		t.Index, status.String(), t.Events, t.Duration.Seconds(), t.InFlight,
	)
}

// overviewLines renders recorder state, connected sources and parameters of the last frame.
func overviewLines(au aurora.Aurora, state recorder.State, sources []string, frame tick.Frame) []string {
	var lines []string

	header := fmt.Sprintf("mode: %s", colorForString(au, state.Mode.String()).String())
	if state.Mode == recorder.Recording {
		header += fmt.Sprintf(", tape: #%d, elapsed: %.1fs", state.Active, state.Elapsed.Seconds())
	}
	header += fmt.Sprintf(", tapes: %d, sources: %d", len(state.Tapes), len(sources))
	lines = append(lines, header)

	for _, t := range state.Tapes {
		lines = append(lines, "└ "+tapeLine(au, t))
	}

	names := make([]string, 0, len(frame.Params))
	for name := range frame.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var params []string
	for _, name := range names {
		params = append(params, fmt.Sprintf("%s: %.2f", colorForString(au, name).String(), frame.Params[name]))
	}
	if len(params) > 0 {
		lines = append(lines, strings.Join(params, ", "))
	}
	lines = append(lines, fmt.Sprintf("speed: %s", frame.Speed))
	return lines
}

func overviewView(g *gocui.Gui, colors bool, e *Engine) {
	view, err := g.View(ViewOverview)
	if err != nil {
		panic(err)
	}

	au := aurora.NewAurora(colors)

	for {
		x, y := view.Size()
		viewData := overviewLines(au, e.Recorder.State(), e.Sources(), e.Frame())

		view.Rewind()
		for i := 0; i < y; i++ {
			if i > len(viewData)-1 {
				view.Write([]byte(strings.Repeat(" ", x)))
				view.Write([]byte{'\n'})
				continue
			}
			view.Write([]byte(padLine(viewData[i], x)))
			view.Write([]byte{'\n'})
		}
		time.Sleep(time.Millisecond * 100)
	}
}

func logView(g *gocui.Gui, color bool, logLevel, bufSize int) {
	feeder, err := NewFeeder(g, ViewLogs, logLevel, aurora.NewAurora(color))
	if err != nil {
		panic(err)
	}

	buf := newLogBuffer(bufSize)

	var newMessage = make(chan bool, 1)
	var done = make(chan struct{})

	go func() {
		var lastX, lastY int
		for {
			select {
			case <-done:
				return
			case <-time.After(time.Millisecond * 100):
			}
			x, y := feeder.view.Size()
			if x != lastX || y != lastY {
				lastX, lastY = x, y
				select {
				case newMessage <- true:
				default:
				}
			}
		}
	}()

	go func() {
		defer close(done)
		for msg := range logger.Messages {
			buf.WriteMessage(msg)
			select {
			case newMessage <- true:
			default:
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-newMessage:
		}
		feeder.view.Rewind()
		_, y := feeder.view.Size()
		for _, msg := range buf.ReadLastMessages(y) {
			feeder.Write(msg)
		}
	}
}

func lcdView(g *gocui.Gui, dd <-chan display.DisplayData) {
	view, err := g.View(ViewLCD)
	if err != nil {
		panic(err)
	}

	for data := range dd {
		view.Rewind()
		for _, s := range data.Lines {
			view.Write([]byte(s))
			view.Write([]byte{'\n'})
		}
	}
}
