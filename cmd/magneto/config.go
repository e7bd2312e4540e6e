package main

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/d2r2/go-hd44780"
	"github.com/gethiox/magneto/internal/pkg/config"
	"github.com/gethiox/magneto/internal/pkg/display"
	"github.com/gethiox/magneto/internal/pkg/lights"
	"github.com/gethiox/magneto/internal/pkg/logger"
	"github.com/gethiox/magneto/internal/pkg/midi"
	"github.com/gethiox/magneto/internal/pkg/midi/driver"
	"github.com/go-ini/ini"
)

type Magneto struct {
	FrameRate     int
	MinLoopPeriod time.Duration
	SyncLoops     bool
	LogBufferSize int
	LogViewRate   time.Duration
}

type MIDI struct {
	MiddleC        int
	Filter         driver.Filter
	RescanInterval time.Duration
}

type Keyboard struct {
	Enabled bool
	Device  string
	Grab    bool
}

type MagnetoConfig struct {
	Magneto  Magneto
	MIDI     MIDI
	Keyboard Keyboard
	Screen   display.ScreenConfig
	OpenRGB  lights.Config
}

func splitList(s string) []string {
	var list []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			list = append(list, v)
		}
	}
	return list
}

// LoadMagnetoConfig reads application config, missing keys fall back to defaults.
func LoadMagnetoConfig(path string) (MagnetoConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return MagnetoConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	return parseMagnetoConfig(cfg)
}

func parseMagnetoConfig(cfg *ini.File) (MagnetoConfig, error) {
	var c MagnetoConfig

	// [magneto]
	magneto := cfg.Section("magneto")
	c.Magneto.FrameRate = magneto.Key("frame_rate").MustInt(60)
	if c.Magneto.FrameRate <= 0 {
		return c, fmt.Errorf("[magneto] frame_rate must be positive, got %d", c.Magneto.FrameRate)
	}
	c.Magneto.MinLoopPeriod = time.Millisecond * time.Duration(magneto.Key("min_loop_period").MustInt(50))
	c.Magneto.SyncLoops = magneto.Key("sync_loops").MustBool(false)
	c.Magneto.LogBufferSize = magneto.Key("log_buffer_size").MustInt(1000)
	logViewRate := magneto.Key("log_view_rate").MustInt(30)
	if logViewRate <= 0 {
		return c, fmt.Errorf("[magneto] log_view_rate must be positive, got %d", logViewRate)
	}
	c.Magneto.LogViewRate = time.Second / time.Duration(logViewRate)

	// [midi]
	m := cfg.Section("midi")
	c.MIDI.MiddleC = m.Key("middle_c").MustInt(midi.DefaultMiddleC)
	c.MIDI.Filter = driver.Filter{
		Preferred: splitList(m.Key("preferred").String()),
		Excluded:  splitList(m.Key("excluded").String()),
	}
	c.MIDI.RescanInterval = time.Millisecond * time.Duration(m.Key("rescan_interval").MustInt(1000))

	// [keyboard]
	kbd := cfg.Section("keyboard")
	c.Keyboard.Enabled = kbd.Key("enabled").MustBool(false)
	c.Keyboard.Device = kbd.Key("device").String()
	c.Keyboard.Grab = kbd.Key("grab").MustBool(false)
	if c.Keyboard.Enabled && c.Keyboard.Device == "" {
		return c, fmt.Errorf("[keyboard] device is required when keyboard is enabled")
	}

	// [screen]
	screen := cfg.Section("screen")
	c.Screen.Enabled = screen.Key("enabled").MustBool(false)
	switch t := screen.Key("type").MustString("20x4"); t {
	case "16x2":
		c.Screen.LcdType = hd44780.LCD_16x2
	case "20x4":
		c.Screen.LcdType = hd44780.LCD_20x4
	default:
		return c, fmt.Errorf("[screen] unsupported type: %s", t)
	}
	c.Screen.Bus = screen.Key("bus").MustInt(1)
	address := screen.Key("address").MustUint64(0x27)
	if address > 0x7f {
		return c, fmt.Errorf("[screen] address out of range: %d", address)
	}
	c.Screen.Address = uint8(address)
	c.Screen.UpdateRate = time.Second * time.Duration(screen.Key("update_rate").MustInt(1))
	for i := range c.Screen.ExitMessage {
		c.Screen.ExitMessage[i] = screen.Key(fmt.Sprintf("exit_message%d", i+1)).String()
	}

	// [openrgb]
	orgb := cfg.Section("openrgb")
	c.OpenRGB.Enabled = orgb.Key("enabled").MustBool(false)
	c.OpenRGB.Host = orgb.Key("host").MustString("localhost")
	c.OpenRGB.Port = orgb.Key("port").MustInt(6742)
	c.OpenRGB.Device = orgb.Key("device").MustInt(0)

	return c, nil
}

//go:embed magneto-config/magneto.config
//go:embed magneto-config/*/*
var templateConfig embed.FS

const configDir = "magneto-config"

func writeTemplate(path, dst string) error {
	data, err := fs.ReadFile(templateConfig, path)
	if err != nil {
		return fmt.Errorf("cannot read \"%s\" template file: %w", path, err)
	}

	old, err := os.ReadFile(dst)
	if err == nil && bytes.Equal(old, data) {
		log.Info(fmt.Sprintf("File \"%s\" not changed", dst), logger.Debug)
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot read \"%s\" file: %w", dst, err)
	}

	err = os.WriteFile(dst, data, 0o666)
	if err != nil {
		return fmt.Errorf("cannot write data into \"%s\" file: %w", dst, err)
	}
	log.Info(fmt.Sprintf("File \"%s\" written", dst), logger.Debug)
	return nil
}

// createConfigDirectoryIfNeeded creates config tree under root when it does not exist.
// Factory configs are refreshed on every start, user files and magneto.config stay intact.
func createConfigDirectoryIfNeeded(root string) error {
	_, err := os.Stat(root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot open config directory: %w", err)
	}
	fresh := err != nil
	if fresh {
		log.Info("config not exist, generating tree...", logger.Info)
	}

	err = fs.WalkDir(templateConfig, configDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(configDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(root, rel)

		if d.IsDir() {
			err := os.MkdirAll(dst, 0o777)
			if err != nil {
				return fmt.Errorf("cannot create \"%s\" directory: %w", dst, err)
			}
			return nil
		}

		factory := strings.HasPrefix(rel, config.FactoryDir+string(filepath.Separator))
		if !fresh && !factory {
			return nil
		}
		return writeTemplate(path, dst)
	})
	if err != nil {
		return fmt.Errorf("config generation failed: %w", err)
	}
	if fresh {
		log.Info("config generation done", logger.Info)
	}
	return nil
}
