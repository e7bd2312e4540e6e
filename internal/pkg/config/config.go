package config

import (
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	// note actions
	Record      Action = "record"
	Reset       Action = "reset"
	Retry       Action = "retry" // re-schedules tapes left unscheduled
	Light       Action = "light"
	LightAll    Action = "light_all"
	Glitch      Action = "glitch"
	Pixelate    Action = "pixelate"
	Bloom       Action = "bloom"
	Flash       Action = "flash"
	BackFlash   Action = "back_flash"
	RandomFlash Action = "random_flash" // back_flash with colour picked from the palette
	ResetPos    Action = "reset_pos"

	// value actions, used by controllers, pitch bend and program change
	X        Action = "x"
	Y        Action = "y"
	Position Action = "position"
	Speed    Action = "speed"
	Ambient  Action = "ambient"
	Bend     Action = "bend"
)

var SupportedNoteActions = map[Action]bool{
	Record:      true,
	Reset:       true,
	Retry:       true,
	Light:       true,
	LightAll:    true,
	Glitch:      true,
	Pixelate:    true,
	Bloom:       true,
	Flash:       true,
	BackFlash:   true,
	RandomFlash: true,
	ResetPos:    true,
}

var SupportedValueActions = map[Action]bool{
	X:        true,
	Y:        true,
	Position: true,
	Speed:    true,
	Ambient:  true,
	Bend:     true,
}

// SupportedParams lists actions which envelope can be tuned in the params section.
var SupportedParams = map[Action]bool{
	Light:     true,
	Glitch:    true,
	Pixelate:  true,
	Bloom:     true,
	Flash:     true,
	BackFlash: true,
}

type Action string

// Param overrides envelope of an action, nil fields keep defaults.
type Param struct {
	Rest     *float64
	Peak     *float64
	Duration *time.Duration
}

type Mapping struct {
	RecordToggle string
	Debug        bool

	Notes         map[string][]Action
	Controllers   map[uint8][]Action
	PitchBend     []Action
	ProgramChange []Action

	// Keys maps computer keyboard keys onto notes
	Keys    map[evdev.EvCode]byte
	Params  map[Action]Param
	Lights  []string
	Palette []colorful.Color
}

type MappingFile struct {
	Path       string
	ConfigType string // factory or user
	Mapping    Mapping
}
