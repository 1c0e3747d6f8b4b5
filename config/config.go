// Package config loads the gridseq configuration: tempo, audio and MIDI
// output, logging, controllers and the declared tracks.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// ControllerType identifies the kind of controller
type ControllerType string

const (
	ControllerLaunchpadX    ControllerType = "launchpad-x"
	ControllerLaunchpadMini ControllerType = "launchpad-mini"
	ControllerLaunchpadPro  ControllerType = "launchpad-pro"
	ControllerGenericGrid   ControllerType = "generic-grid"
)

// ControllerConfig defines a saved controller configuration
type ControllerConfig struct {
	PortName    string         `yaml:"portName"`
	Type        ControllerType `yaml:"type"`
	AutoConnect bool           `yaml:"autoConnect"`
}

// Synth backends
const (
	BackendAudio = "audio"
	BackendMIDI  = "midi"
)

// SynthOutputConfig chooses where synth tracks sound: the built-in audio
// engine, or a MIDI port driving external gear.
type SynthOutputConfig struct {
	Backend  string `yaml:"backend,omitempty"`
	PortName string `yaml:"portName,omitempty"`
	Channel  int    `yaml:"channel,omitempty"`
}

// AudioConfig sets up the speaker.
type AudioConfig struct {
	SampleRate int           `yaml:"sampleRate,omitempty"`
	Buffer     time.Duration `yaml:"buffer,omitempty"`
}

// LogConfig sets up the debug log. With no path nothing is logged.
type LogConfig struct {
	Path  string `yaml:"path,omitempty"`
	Level string `yaml:"level,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette       string `yaml:"palette,omitempty"` // GIMP palette file
	LastFocused   int    `yaml:"lastFocused,omitempty"`
	ShowBeatCells int    `yaml:"beatIndicator,omitempty"` // 4, 8, 16 or 32
}

// Config is the main configuration structure
type Config struct {
	Tempo       float64            `yaml:"tempo,omitempty"`
	Lookahead   time.Duration      `yaml:"lookahead,omitempty"`
	Audio       AudioConfig        `yaml:"audio,omitempty"`
	SynthOutput SynthOutputConfig  `yaml:"synthOutput,omitempty"`
	Log         LogConfig          `yaml:"log,omitempty"`
	Controllers []ControllerConfig `yaml:"controllers,omitempty"`
	Tracks      []TrackConfig      `yaml:"tracks,omitempty"`
	UI          UIConfig           `yaml:"ui,omitempty"`
}

// Defaults applied by Normalize
const (
	DefaultTempo      = 120
	DefaultLookahead  = 100 * time.Millisecond
	DefaultSampleRate = 44100
	DefaultBuffer     = 50 * time.Millisecond
)

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	c := &Config{
		Controllers: []ControllerConfig{
			{
				PortName:    "Launchpad X LPX MIDI",
				Type:        ControllerLaunchpadX,
				AutoConnect: true,
			},
		},
		Tracks: []TrackConfig{
			{
				ID:       "lead",
				Name:     "Lead",
				Type:     TrackSynth,
				Notes:    []string{"C4", "D4", "E4", "G4", "A4"},
				Columns:  8,
				Settings: SettingsConfig{Oscillator: "square", Volume: ptr(-6.0)},
			},
		},
	}
	c.Normalize()
	return c
}

func ptr[T any](v T) *T { return &v }

// Normalize fills unset fields with defaults and clamps the tempo.
func (c *Config) Normalize() {
	if c.Tempo == 0 {
		c.Tempo = DefaultTempo
	}
	c.Tempo = min(max(c.Tempo, 20), 300)
	if c.Lookahead <= 0 {
		c.Lookahead = DefaultLookahead
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
	if c.Audio.Buffer <= 0 {
		c.Audio.Buffer = DefaultBuffer
	}
	if c.SynthOutput.Backend == "" {
		c.SynthOutput.Backend = BackendAudio
	}
	if c.SynthOutput.Channel == 0 {
		c.SynthOutput.Channel = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "debug"
	}
	if c.UI.ShowBeatCells == 0 {
		c.UI.ShowBeatCells = 16
	}
}

// Validate reports settings that cannot be used as given.
func (c *Config) Validate() error {
	var errs []error
	switch c.SynthOutput.Backend {
	case BackendAudio:
	case BackendMIDI:
		if c.SynthOutput.PortName == "" {
			errs = append(errs, errors.New("synthOutput: midi backend needs a portName"))
		}
	default:
		errs = append(errs, fmt.Errorf("synthOutput: unknown backend %q", c.SynthOutput.Backend))
	}
	if ch := c.SynthOutput.Channel; ch < 1 || ch > 16 {
		errs = append(errs, fmt.Errorf("synthOutput: channel %d out of range 1-16", ch))
	}
	switch c.UI.ShowBeatCells {
	case 4, 8, 16, 32:
	default:
		errs = append(errs, fmt.Errorf("ui: beat indicator size %d not one of 4, 8, 16, 32", c.UI.ShowBeatCells))
	}
	return errors.Join(errs...)
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "gridseq"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path, which may start with ~. A missing
// file gives the defaults.
func LoadFile(path string) (*Config, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory.
func (c *Config) SaveFile(path string) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LogPath returns the expanded log path, or "" when logging is off.
func (c *Config) LogPath() (string, error) {
	if c.Log.Path == "" {
		return "", nil
	}
	return homedir.Expand(c.Log.Path)
}

// FindController finds a controller config by port name
func (c *Config) FindController(portName string) *ControllerConfig {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == portName {
			return &c.Controllers[i]
		}
	}
	return nil
}

// AddController adds or updates a controller config
func (c *Config) AddController(ctrl ControllerConfig) {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == ctrl.PortName {
			c.Controllers[i] = ctrl
			return
		}
	}
	c.Controllers = append(c.Controllers, ctrl)
}

// AutoConnectControllers returns controllers with autoConnect enabled
func (c *Config) AutoConnectControllers() []ControllerConfig {
	var result []ControllerConfig
	for _, ctrl := range c.Controllers {
		if ctrl.AutoConnect {
			result = append(result, ctrl)
		}
	}
	return result
}
