// Package config loads the runtime settings shared by the simulation and
// render loops.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TickRateHz  int    `yaml:"tick_rate_hz"`
	FrameRateHz int    `yaml:"frame_rate_hz"`
	MaxTicks    uint64 `yaml:"max_ticks"`

	Display Display `yaml:"display"`

	DataDir        string `yaml:"data_dir"`
	Infrastructure string `yaml:"infrastructure"`
	LogLevel       string `yaml:"log_level"`

	Observer   Observer   `yaml:"observer"`
	CommandLog CommandLog `yaml:"command_log"`
	Index      Index      `yaml:"index"`
	Snapshots  Snapshots  `yaml:"snapshots"`
}

type Display struct {
	ViewportX int  `yaml:"viewport_x"`
	ViewportY int  `yaml:"viewport_y"`
	VSync     bool `yaml:"vsync"`
	// FPS caps the render loop when VSync is off.
	FPS int `yaml:"fps"`
}

type Observer struct {
	Addr string `yaml:"addr"`
}

type CommandLog struct {
	Enabled bool `yaml:"enabled"`
}

// Snapshots are written to <data_dir>/snapshots when a run stops.
type Snapshots struct {
	OnExit bool `yaml:"on_exit"`
}

type Index struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Defaults() Config {
	return Config{
		TickRateHz:  20,
		FrameRateHz: 60,
		Display: Display{
			ViewportX: 1280,
			ViewportY: 720,
			FPS:       60,
		},
		DataDir:        "data",
		Infrastructure: "configs/infrastructure.yaml",
		LogLevel:       "info",
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("bluebear.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("bluebear.yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Index.Enabled && strings.TrimSpace(c.Index.Path) == "" {
		c.Index.Path = filepath.Join(c.DataDir, "index", "lots.sqlite")
	}
}

// FrameRate is the effective render rate: VSync pins it to FrameRateHz,
// otherwise the FPS cap wins.
func (c Config) FrameRate() int {
	if c.Display.VSync || c.Display.FPS <= 0 {
		return c.FrameRateHz
	}
	return c.Display.FPS
}

func (c Config) SnapshotDir() string { return filepath.Join(c.DataDir, "snapshots") }

func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func (c Config) Validate() error {
	var errs []error
	if c.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0"))
	}
	if c.FrameRateHz <= 0 {
		errs = append(errs, fmt.Errorf("frame_rate_hz must be > 0"))
	}
	if c.Display.ViewportX <= 0 || c.Display.ViewportY <= 0 {
		errs = append(errs, fmt.Errorf("display viewport must be positive, got %dx%d", c.Display.ViewportX, c.Display.ViewportY))
	}
	if c.Display.FPS < 0 {
		errs = append(errs, fmt.Errorf("display.fps must be >= 0"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if (c.CommandLog.Enabled || c.Index.Enabled || c.Snapshots.OnExit) && strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, fmt.Errorf("data_dir is required when command_log, index or snapshots are enabled"))
	}
	return errors.Join(errs...)
}
