package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gethiox/magneto/internal/pkg/midi"
	"github.com/holoplot/go-evdev"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("unsupported config format")

type Format string

const (
	TOML Format = "toml"
	YAML Format = "yaml"
)

// FormatFromPath picks format by file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("%w: \"%s\"", ErrUnsupportedFormat, filepath.Base(path))
	}
}

type rawParam struct {
	Rest     *float64 `toml:"rest" yaml:"rest"`
	Peak     *float64 `toml:"peak" yaml:"peak"`
	Duration *int     `toml:"duration" yaml:"duration"` // milliseconds
}

// rawMapping is the file representation, actions are given either as a string or a list of strings.
type rawMapping struct {
	RecordToggle  string   `toml:"record_toggle" yaml:"record_toggle"`
	Debug         bool     `toml:"debug" yaml:"debug"`
	PitchBend     any      `toml:"pitch_bend" yaml:"pitch_bend"`
	ProgramChange any      `toml:"program_change" yaml:"program_change"`
	Lights        []string `toml:"lights" yaml:"lights"`
	Palette       []string `toml:"palette" yaml:"palette"`

	Notes       map[string]any      `toml:"notes" yaml:"notes"`
	Controllers map[string]any      `toml:"controllers" yaml:"controllers"`
	Keys        map[string]string   `toml:"keys" yaml:"keys"`
	Params      map[string]rawParam `toml:"params" yaml:"params"`
}

func decode(data []byte, format Format) (rawMapping, error) {
	raw := rawMapping{}

	switch format {
	case TOML:
		d := toml.NewDecoder(bytes.NewReader(data))
		d.DisallowUnknownFields()
		if err := d.Decode(&raw); err != nil {
			return rawMapping{}, fmt.Errorf("parsing toml failed: %w", err)
		}
	case YAML:
		d := yaml.NewDecoder(bytes.NewReader(data))
		d.KnownFields(true)
		if err := d.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return rawMapping{}, fmt.Errorf("parsing yaml failed: %w", err)
		}
	default:
		return rawMapping{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return raw, nil
}

func parseActions(raw any, supported map[Action]bool) ([]Action, error) {
	var names []string

	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		names = []string{v}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("action name expected, got %v", item)
			}
			names = append(names, s)
		}
	default:
		return nil, fmt.Errorf("action name or list of action names expected, got %v", raw)
	}

	actions := make([]Action, 0, len(names))
	for _, name := range names {
		action := Action(strings.ToLower(strings.TrimSpace(name)))
		if !supported[action] {
			return nil, fmt.Errorf("unsupported action: \"%s\"", name)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func normalizeNote(identifier string, middleC int) (string, error) {
	note, err := midi.StringToNote(identifier, middleC)
	if err != nil {
		return "", err
	}
	return midi.NoteName(note, middleC), nil
}

// ParseData decodes and validates mapping, note identifiers are brought to the canonical form
// for given octave numbering.
func ParseData(data []byte, format Format, middleC int) (Mapping, error) {
	raw, err := decode(data, format)
	if err != nil {
		return Mapping{}, err
	}

	mapping := Mapping{
		Debug:       raw.Debug,
		Notes:       make(map[string][]Action),
		Controllers: make(map[uint8][]Action),
		Keys:        make(map[evdev.EvCode]byte),
		Params:      make(map[Action]Param),
	}

	if raw.RecordToggle != "" {
		mapping.RecordToggle, err = normalizeNote(raw.RecordToggle, middleC)
		if err != nil {
			return Mapping{}, fmt.Errorf("record_toggle: %w", err)
		}
	}

	for identifier, actionsRaw := range raw.Notes {
		id, err := normalizeNote(identifier, middleC)
		if err != nil {
			return Mapping{}, fmt.Errorf("[notes] %s: %w", identifier, err)
		}
		actions, err := parseActions(actionsRaw, SupportedNoteActions)
		if err != nil {
			return Mapping{}, fmt.Errorf("[notes] %s: %w", identifier, err)
		}
		for _, action := range actions {
			if action == Record && id != mapping.RecordToggle {
				return Mapping{}, fmt.Errorf("[notes] %s: record action is only allowed on record_toggle note", identifier)
			}
		}
		mapping.Notes[id] = append(mapping.Notes[id], actions...)
	}

	for controllerRaw, actionsRaw := range raw.Controllers {
		controller, err := strconv.Atoi(strings.TrimSpace(controllerRaw))
		if err != nil {
			return Mapping{}, fmt.Errorf("[controllers] %s: controller number expected", controllerRaw)
		}
		if controller < 0 || controller > 127 {
			return Mapping{}, fmt.Errorf("[controllers] %s: controller number outside of 0-127 range", controllerRaw)
		}
		actions, err := parseActions(actionsRaw, SupportedValueActions)
		if err != nil {
			return Mapping{}, fmt.Errorf("[controllers] %s: %w", controllerRaw, err)
		}
		mapping.Controllers[uint8(controller)] = actions
	}

	mapping.PitchBend, err = parseActions(raw.PitchBend, SupportedValueActions)
	if err != nil {
		return Mapping{}, fmt.Errorf("pitch_bend: %w", err)
	}
	mapping.ProgramChange, err = parseActions(raw.ProgramChange, SupportedValueActions)
	if err != nil {
		return Mapping{}, fmt.Errorf("program_change: %w", err)
	}

	for _, identifier := range raw.Lights {
		id, err := normalizeNote(identifier, middleC)
		if err != nil {
			return Mapping{}, fmt.Errorf("lights: %w", err)
		}
		mapping.Lights = append(mapping.Lights, id)
	}

	for _, hex := range raw.Palette {
		c, err := colorful.Hex(hex)
		if err != nil {
			return Mapping{}, fmt.Errorf("palette: %w", err)
		}
		mapping.Palette = append(mapping.Palette, c)
	}

	for keyRaw, noteRaw := range raw.Keys {
		code, ok := evdev.KEYFromString[strings.ToUpper(keyRaw)]
		if !ok {
			return Mapping{}, fmt.Errorf("[keys] %s: key name not found / not supported", keyRaw)
		}
		note, err := midi.StringToNote(noteRaw, middleC)
		if err != nil {
			return Mapping{}, fmt.Errorf("[keys] %s: %w", keyRaw, err)
		}
		mapping.Keys[code] = note
	}

	for name, p := range raw.Params {
		action := Action(strings.ToLower(name))
		if !SupportedParams[action] {
			return Mapping{}, fmt.Errorf("[params] %s: parameters not supported for this action", name)
		}
		param := Param{Rest: p.Rest, Peak: p.Peak}
		if p.Duration != nil {
			if *p.Duration < 0 {
				return Mapping{}, fmt.Errorf("[params] %s: negative duration", name)
			}
			d := time.Duration(*p.Duration) * time.Millisecond
			param.Duration = &d
		}
		mapping.Params[action] = param
	}

	return mapping, nil
}

func ReadFile(path, configType string, middleC int) (MappingFile, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return MappingFile{}, err
	}

	fd, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return MappingFile{}, fmt.Errorf("opening config file failed: %w", err)
	}
	defer fd.Close()

	data, err := io.ReadAll(fd)
	if err != nil {
		return MappingFile{}, fmt.Errorf("reading file data failed: %w", err)
	}

	mapping, err := ParseData(data, format, middleC)
	if err != nil {
		return MappingFile{}, err
	}

	return MappingFile{
		Path:       path,
		ConfigType: configType,
		Mapping:    mapping,
	}, nil
}
