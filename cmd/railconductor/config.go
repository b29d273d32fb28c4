package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the railconductor daemon.
//
// This is intentionally user-facing and stable-ish. Keep defaults and
// validation centralized so the rest of the code can assume a well-formed
// config.
//
// Design goals:
// - Make config file the primary configuration surface.
// - Keep flags for small overrides and for environments where a file is awkward.
type Config struct {
	// Simulator UDP endpoint and transmit cadence
	Simulator SimulatorConfig `yaml:"simulator"`

	// Input transform and capture tuning
	Input InputConfig `yaml:"input"`

	// Mappings file location and watching
	Mappings MappingsConfig `yaml:"mappings"`

	// IPC configuration (used by the ctl tool)
	IPC IPCConfig `yaml:"ipc"`

	// Control WebSocket configuration (state broadcasts)
	Control ControlConfig `yaml:"control"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type SimulatorConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	TickHz int    `yaml:"tick_hz"`
}

type InputConfig struct {
	// DeviceGlob selects the joystick device nodes to open.
	DeviceGlob string `yaml:"device_glob"`

	// Deadzone is the default lever dead-zone applied to captured bindings.
	Deadzone float64 `yaml:"deadzone"`

	// Activation is the axis magnitude treated as a deliberate press.
	Activation float64 `yaml:"activation"`

	// CaptureWindowMS bounds how long a capture listens before timing out.
	CaptureWindowMS int `yaml:"capture_window_ms"`
}

type MappingsConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type ControlConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults and current CLI defaults.
func DefaultConfig() Config {
	return Config{
		Simulator: SimulatorConfig{
			Host:   defaultSimulatorHost,
			Port:   defaultSimulatorPort,
			TickHz: defaultTickHz,
		},
		Input: InputConfig{
			DeviceGlob:      "/dev/input/js*",
			Deadzone:        defaultLeverDeadzone,
			Activation:      defaultActivation,
			CaptureWindowMS: defaultCaptureWindowMS,
		},
		Mappings: MappingsConfig{
			Path:  "~/.config/railconductor/mappings.csv",
			Watch: true,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocketPath,
		},
		Control: ControlConfig{
			Port: defaultControlWSPort,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Notes:
//   - The file must be valid YAML.
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
//
// Flags pass pointers; each override is only applied if the pointer is
// non-nil. Keeping the override mechanism separate makes it easy to evolve
// flags without proliferating conditionals all over the code.
type FlagOverrides struct {
	SimulatorHost *string
	SimulatorPort *int
	TickHz        *int

	DeviceGlob      *string
	Deadzone        *float64
	Activation      *float64
	CaptureWindowMS *int

	MappingsPath  *string
	MappingsWatch *bool

	IPCSocketPath *string
	ControlPort   *int

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is
// ignored. If the pointer is non-nil, the value is applied (even a zero value).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.SimulatorHost != nil {
		cfg.Simulator.Host = *o.SimulatorHost
	}
	if o.SimulatorPort != nil {
		cfg.Simulator.Port = *o.SimulatorPort
	}
	if o.TickHz != nil {
		cfg.Simulator.TickHz = *o.TickHz
	}

	if o.DeviceGlob != nil {
		cfg.Input.DeviceGlob = *o.DeviceGlob
	}
	if o.Deadzone != nil {
		cfg.Input.Deadzone = *o.Deadzone
	}
	if o.Activation != nil {
		cfg.Input.Activation = *o.Activation
	}
	if o.CaptureWindowMS != nil {
		cfg.Input.CaptureWindowMS = *o.CaptureWindowMS
	}

	if o.MappingsPath != nil {
		cfg.Mappings.Path = *o.MappingsPath
	}
	if o.MappingsWatch != nil {
		cfg.Mappings.Watch = *o.MappingsWatch
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.ControlPort != nil {
		cfg.Control.Port = *o.ControlPort
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	if c.Simulator.Host == "" {
		return errors.New("simulator.host must not be empty")
	}
	if c.Simulator.Port <= 0 || c.Simulator.Port > 65535 {
		return errors.New("simulator.port must be between 1 and 65535")
	}
	if c.Simulator.TickHz <= 0 || c.Simulator.TickHz > 1000 {
		return errors.New("simulator.tick_hz must be between 1 and 1000")
	}

	if c.Input.DeviceGlob == "" {
		return errors.New("input.device_glob must not be empty")
	}
	if c.Input.Deadzone < 0 || c.Input.Deadzone >= 1 {
		return errors.New("input.deadzone must be in [0, 1)")
	}
	if c.Input.Activation <= 0 || c.Input.Activation >= 1 {
		return errors.New("input.activation must be in (0, 1)")
	}
	if c.Input.CaptureWindowMS <= 0 {
		return errors.New("input.capture_window_ms must be > 0")
	}

	if c.Mappings.Path == "" {
		return errors.New("mappings.path must not be empty")
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.Control.Port <= 0 || c.Control.Port > 65535 {
		return errors.New("control.port must be between 1 and 65535")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToReducerConfig converts the user-facing config into the reducer tunables.
func (c *Config) ToReducerConfig() ReducerConfig {
	return ReducerConfig{
		Transform: TransformConfig{
			Activation: c.Input.Activation,
			Deadzone:   c.Input.Deadzone,
		},
		Capture: CaptureConfig{
			Window:     time.Duration(c.Input.CaptureWindowMS) * time.Millisecond,
			Activation: c.Input.Activation,
		},
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
// This is handy for config values like mappings.path.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
