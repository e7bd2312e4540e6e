package lights

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/gethiox/magneto/internal/pkg/tick"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/realbucksavage/openrgb-go"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

type Config struct {
	Enabled bool
	Host    string
	Port    int
	Device  int
}

// Layout tells which note-light drives which LED, LED i follows Lights[i % len(Lights)].
type Layout struct {
	Lights []string
	// Palette colours note-lights in order, hue wheel is used when empty.
	Palette []colorful.Color
}

// ambientFloor is the brightness ambient parameter (0 - 3) adds at its maximum.
const ambientFloor = 0.25

func (l Layout) base(i, leds int) colorful.Color {
	if len(l.Palette) > 0 {
		return l.Palette[i%len(l.Palette)]
	}
	return colorful.Hsv(360*float64(i)/float64(max(leds, 1)), 1, 1)
}

// Colors renders frame onto LED colours.
func (l Layout) Colors(frame tick.Frame, leds int) []openrgb.Color {
	colors := make([]openrgb.Color, leds)
	ambient := math.Min(math.Max(frame.Param(tick.Ambient)/3, 0), 1) * ambientFloor

	for i := range colors {
		var level float64
		if len(l.Lights) > 0 {
			level = frame.LightLevel(l.Lights[i%len(l.Lights)])
		}
		if len(frame.Waves) > 0 {
			// waves ripple the ambient glow between objects
			glow := ambient * (1 + frame.Waves[i%len(frame.Waves)]) / 2
			level = math.Max(level, glow)
		}
		level = math.Min(math.Max(level, 0), 1)

		h, s, _ := l.base(i, leds).Hsv()
		c := colorful.Hsv(h, s, level)
		c = colorful.Color{
			R: c.R + frame.Background.R,
			G: c.G + frame.Background.G,
			B: c.B + frame.Background.B,
		}.Clamped()

		colors[i] = openrgb.Color{
			Red:   uint8(math.Round(c.R * 255)),
			Green: uint8(math.Round(c.G * 255)),
			Blue:  uint8(math.Round(c.B * 255)),
		}
	}
	return colors
}

type updater interface {
	UpdateLEDs(device int, colors []openrgb.Color) error
}

// Renderer pushes frames onto OpenRGB device.
type Renderer struct {
	client updater
	device int
	leds   int

	mu     sync.Mutex
	layout Layout
}

func newRenderer(client updater, device, leds int, layout Layout) *Renderer {
	return &Renderer{client: client, device: device, leds: leds, layout: layout}
}

// Connect opens connection to running OpenRGB server, closer releases it.
func Connect(cfg Config, layout Layout) (*Renderer, func() error, error) {
	c, err := openrgb.Connect(cfg.Host, cfg.Port)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to server: %w", err)
	}

	count, err := c.GetControllerCount()
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("failed to get controller count: %w", err)
	}
	if cfg.Device < 0 || cfg.Device >= count {
		c.Close()
		return nil, nil, fmt.Errorf("controller %d doesn't exist, %d available", cfg.Device, count)
	}

	dev, err := c.GetDeviceController(cfg.Device)
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("getting controller information failed: %w", err)
	}
	log.Info(fmt.Sprintf("[OpenRGB] Controller found: %s, index: %d", dev.Name, cfg.Device), logger.Info)

	return newRenderer(c, cfg.Device, len(dev.Colors), layout), c.Close, nil
}

// SetLayout replaces note-light layout, used on mapping reload.
func (r *Renderer) SetLayout(layout Layout) {
	r.mu.Lock()
	r.layout = layout
	r.mu.Unlock()
}

func (r *Renderer) Render(frame tick.Frame) error {
	r.mu.Lock()
	layout := r.layout
	r.mu.Unlock()
	return r.client.UpdateLEDs(r.device, layout.Colors(frame, r.leds))
}

// Run renders frames until channel is closed or ctx is done.
// Failures are reported at most once per second.
func (r *Renderer) Run(ctx context.Context, frames <-chan tick.Frame) {
	nextFailedLedUpdateReport := time.Now()
	updateFails := 0

	log.Info("[OpenRGB] LED update loop started", logger.Debug)
root:
	for {
		select {
		case <-ctx.Done():
			break root
		case frame, ok := <-frames:
			if !ok {
				break root
			}
			err := r.Render(frame)
			if err == nil {
				continue
			}
			updateFails++
			if time.Now().After(nextFailedLedUpdateReport) {
				log.Info(fmt.Sprintf("[OpenRGB] LED update failed: %v", err), zap.Int("fails", updateFails), logger.Warning)
				nextFailedLedUpdateReport = time.Now().Add(time.Second)
				updateFails = 0
			}
		}
	}
	log.Info("[OpenRGB] LED update loop stopped", logger.Debug)
}
