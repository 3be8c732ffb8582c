package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"gopkg.in/yaml.v3"
)

// CurrentVersion is the settings layout written by Save
const CurrentVersion = 2

// Source values with special meaning in TargetConfig.Source
const (
	SourceAny      = "*"
	SourceDisabled = "-"
)

// TargetConfig defines one routing target
type TargetConfig struct {
	ID          string `json:"id" yaml:"id"`
	Port        string `json:"port,omitempty" yaml:"port,omitempty"`
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`   // "*" or "" = any, "-" = disabled
	Channel     int    `json:"channel,omitempty" yaml:"channel,omitempty"` // 1-16, 0 = any
	ScaleFilter bool   `json:"scaleFilter,omitempty" yaml:"scaleFilter,omitempty"`
	Octave      int    `json:"octave,omitempty" yaml:"octave,omitempty"`
	ChordPad    bool   `json:"chordPad,omitempty" yaml:"chordPad,omitempty"`
	SingleNote  bool   `json:"singleNote,omitempty" yaml:"singleNote,omitempty"`
	Inactive    bool   `json:"inactive,omitempty" yaml:"inactive,omitempty"` // no processor loaded
}

// ScaleConfig stores the global quantizer
type ScaleConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Root    int    `json:"root" yaml:"root"`
	Type    string `json:"type" yaml:"type"`
	Mode    string `json:"mode" yaml:"mode"` // "block" or "snap"
}

// ZoneConfig maps pad notes to scale degrees
type ZoneConfig struct {
	Enabled bool        `json:"enabled,omitempty" yaml:"enabled,omitempty"` // secondary zone only
	Channel int         `json:"channel,omitempty" yaml:"channel,omitempty"`
	Octave  int         `json:"octave" yaml:"octave"`
	Buttons map[int]int `json:"buttons,omitempty" yaml:"buttons,omitempty"`

	// StartNote is the v1 secondary layout (seven contiguous notes).
	// Migrate turns it into Buttons.
	StartNote *int `json:"startNote,omitempty" yaml:"startNote,omitempty"`
}

// ChordPadConfig stores the chord pad source and zones
type ChordPadConfig struct {
	Source    string     `json:"source,omitempty" yaml:"source,omitempty"`
	Primary   ZoneConfig `json:"primary" yaml:"primary"`
	Secondary ZoneConfig `json:"secondary" yaml:"secondary"`
}

// AxisConfig defines one expression axis
type AxisConfig struct {
	ID           string   `json:"id,omitempty" yaml:"id,omitempty"`
	Source       string   `json:"source,omitempty" yaml:"source,omitempty"`
	InputCC      int      `json:"inputCC" yaml:"inputCC"`
	InputChannel int      `json:"inputChannel,omitempty" yaml:"inputChannel,omitempty"`
	OutputCC     int      `json:"outputCC" yaml:"outputCC"`
	Enabled      bool     `json:"enabled" yaml:"enabled"`
	Invert       bool     `json:"invert,omitempty" yaml:"invert,omitempty"`
	PitchBend    bool     `json:"pitchBend,omitempty" yaml:"pitchBend,omitempty"`
	BendUp       bool     `json:"bendUp,omitempty" yaml:"bendUp,omitempty"`
	Scale        *float64 `json:"scale,omitempty" yaml:"scale,omitempty"` // nil = full range, else (0, 1]
	RampMS       int      `json:"rampMs,omitempty" yaml:"rampMs,omitempty"`
}

// ExpressionConfig stores the expression source and axes
type ExpressionConfig struct {
	Source string       `json:"source,omitempty" yaml:"source,omitempty"`
	Axes   []AxisConfig `json:"axes,omitempty" yaml:"axes,omitempty"`
	Legacy []AxisConfig `json:"legacy,omitempty" yaml:"legacy,omitempty"`
}

// TapTempoConfig stores where tap tempo pulses go
type TapTempoConfig struct {
	Dest    string `json:"dest,omitempty" yaml:"dest,omitempty"`
	CC      int    `json:"cc" yaml:"cc"`
	Channel int    `json:"channel" yaml:"channel"` // 1-16
}

// InputsConfig controls which input ports are opened
type InputsConfig struct {
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette string  `json:"palette,omitempty" yaml:"palette,omitempty"`
	LastBPM float64 `json:"lastBpm,omitempty" yaml:"lastBpm,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Version                int              `json:"version" yaml:"version"`
	Targets                []TargetConfig   `json:"targets,omitempty" yaml:"targets,omitempty"`
	Scale                  ScaleConfig      `json:"scale" yaml:"scale"`
	ChordPad               ChordPadConfig   `json:"chordPad" yaml:"chordPad"`
	Expression             ExpressionConfig `json:"expression" yaml:"expression"`
	TapTempo               TapTempoConfig   `json:"tapTempo" yaml:"tapTempo"`
	ForcePitchBendChannel1 bool             `json:"forcePitchBendChannel1,omitempty" yaml:"forcePitchBendChannel1,omitempty"`
	Inputs                 InputsConfig     `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	UI                     UIConfig         `json:"ui,omitempty" yaml:"ui,omitempty"`

	// OutputPort is the v1 single output shared by every target.
	// Migrate moves it onto the targets.
	OutputPort string `json:"outputPort,omitempty" yaml:"outputPort,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Targets: []TargetConfig{
			{ID: "main", Source: SourceAny},
		},
		Scale: ScaleConfig{
			Type: "Major",
			Mode: "block",
		},
		ChordPad: ChordPadConfig{
			Primary:   ZoneConfig{Octave: 4},
			Secondary: ZoneConfig{Octave: 5},
		},
		TapTempo: TapTempoConfig{
			CC:      102,
			Channel: 1,
		},
		Inputs: InputsConfig{
			Exclude: []string{"midi through", "through port", "dummy"},
		},
		UI: UIConfig{
			LastBPM: 120,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-midiroute"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the default path, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads and migrates a config file. JSON unless the extension is
// .yaml or .yml. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fault.Wrap(err, fmsg.With("read config"))
	}

	cfg, err := Parse(data, isYAML(path))
	if err != nil {
		return nil, fault.Wrap(err, fmsg.WithDesc("parse config", "Could not parse "+path))
	}
	return cfg, nil
}

// Parse decodes and migrates config data. Sections missing from data keep
// their defaults; a missing version means v1.
func Parse(data []byte, asYAML bool) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Version = 0
	cfg.Targets = nil

	var err error
	if asYAML {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fault.Wrap(err, ftag.With(ftag.InvalidArgument))
	}
	cfg.Migrate()
	return cfg, nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return fault.Wrap(err, fmsg.With("locate config dir"))
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fault.Wrap(err, fmsg.With("create config dir"))
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fault.Wrap(err, fmsg.With("encode config"))
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fault.Wrap(err, fmsg.WithDesc("write config", "Could not write "+path))
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Migrate upgrades an older layout in place
func (c *Config) Migrate() {
	if c.Version >= CurrentVersion {
		return
	}

	// v1: one output port for all targets
	if c.OutputPort != "" {
		for i := range c.Targets {
			if c.Targets[i].Port == "" {
				c.Targets[i].Port = c.OutputPort
			}
		}
		c.OutputPort = ""
	}

	// v1: secondary zone as a contiguous seven-note range
	sec := &c.ChordPad.Secondary
	if sec.StartNote != nil {
		if len(sec.Buttons) == 0 {
			sec.Buttons = make(map[int]int, 7)
			for d := 1; d <= 7; d++ {
				if n := *sec.StartNote + d - 1; n <= 127 {
					sec.Buttons[n] = d
				}
			}
		}
		sec.StartNote = nil
	}

	c.Version = CurrentVersion
}

// FindTarget finds a target config by ID
func (c *Config) FindTarget(id string) *TargetConfig {
	for i := range c.Targets {
		if c.Targets[i].ID == id {
			return &c.Targets[i]
		}
	}
	return nil
}

// AddTarget adds or updates a target config
func (c *Config) AddTarget(t TargetConfig) {
	for i := range c.Targets {
		if c.Targets[i].ID == t.ID {
			c.Targets[i] = t
			return
		}
	}
	c.Targets = append(c.Targets, t)
}
