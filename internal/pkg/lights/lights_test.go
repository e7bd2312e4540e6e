package lights

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gethiox/magneto/internal/pkg/tick"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/realbucksavage/openrgb-go"
	"github.com/stretchr/testify/assert"
)

func TestColors(t *testing.T) {
	layout := Layout{
		Lights:  []string{"C3", "D3"},
		Palette: []colorful.Color{{R: 1}, {G: 1}},
	}

	for _, tc := range []struct {
		name     string
		frame    tick.Frame
		expected []openrgb.Color
	}{
		{
			name:     "dark",
			frame:    tick.Frame{},
			expected: []openrgb.Color{{}, {}, {}},
		},
		{
			name: "note lights",
			frame: tick.Frame{Params: map[string]float64{
				tick.Light("C3"): 1,
				tick.Light("D3"): 0.5,
			}},
			expected: []openrgb.Color{{Red: 255}, {Green: 128}, {Red: 255}},
		},
		{
			name: "background flash",
			frame: tick.Frame{
				Params:     map[string]float64{tick.Light("C3"): 1},
				Background: colorful.Color{R: 1, G: 1, B: 1},
			},
			expected: []openrgb.Color{
				{Red: 255, Green: 255, Blue: 255},
				{Red: 255, Green: 255, Blue: 255},
				{Red: 255, Green: 255, Blue: 255},
			},
		},
		{
			name: "ambient glow",
			frame: tick.Frame{
				Params: map[string]float64{tick.Ambient: 3},
				Waves:  []float64{1, -1},
			},
			expected: []openrgb.Color{{Red: 64}, {}, {Red: 64}},
		},
		{
			name:     "levels clamped",
			frame:    tick.Frame{Params: map[string]float64{tick.Light("C3"): 7}},
			expected: []openrgb.Color{{Red: 255}, {}, {Red: 255}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, layout.Colors(tc.frame, 3))
		})
	}
}

func TestColorsHueWheel(t *testing.T) {
	colors := Layout{Lights: []string{"C3"}}.Colors(tick.Frame{Params: map[string]float64{tick.Light("C3"): 1}}, 3)
	assert.Equal(t, openrgb.Color{Red: 255}, colors[0])
	assert.Equal(t, openrgb.Color{Green: 255}, colors[1])
	assert.Equal(t, openrgb.Color{Blue: 255}, colors[2])

	assert.Empty(t, Layout{}.Colors(tick.Frame{}, 0))
}

type fakeClient struct {
	mu      sync.Mutex
	err     error
	updates [][]openrgb.Color
}

func (c *fakeClient) UpdateLEDs(device int, colors []openrgb.Color) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, colors)
	return c.err
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func TestRun(t *testing.T) {
	client := &fakeClient{}
	r := newRenderer(client, 0, 2, Layout{Lights: []string{"C3"}, Palette: []colorful.Color{{B: 1}}})

	frames := make(chan tick.Frame)
	done := make(chan struct{})
	go func() {
		r.Run(context.Background(), frames)
		close(done)
	}()

	frames <- tick.Frame{Params: map[string]float64{tick.Light("C3"): 1}}
	assert.Eventually(t, func() bool { return client.count() == 1 }, time.Second, time.Millisecond)
	r.SetLayout(Layout{Lights: []string{"C3"}, Palette: []colorful.Color{{G: 1}}})
	client.mu.Lock()
	client.err = errors.New("connection reset")
	client.mu.Unlock()
	frames <- tick.Frame{Params: map[string]float64{tick.Light("C3"): 1}}
	close(frames)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("renderer not stopped")
	}

	assert.Equal(t, 2, client.count())
	assert.Equal(t, []openrgb.Color{{Blue: 255}, {Blue: 255}}, client.updates[0])
	assert.Equal(t, []openrgb.Color{{Green: 255}, {Green: 255}}, client.updates[1])
}
