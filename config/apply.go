package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"go-midiroute/engine"
)

// OutputFunc resolves a target's port to an engine output. active is false
// for targets marked as having no processor loaded.
type OutputFunc func(port string, active bool) engine.Output

// Validate reports every problem in the config as one error
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	seen := map[string]bool{}
	for i, t := range c.Targets {
		switch {
		case t.ID == "":
			add("target %d: missing id", i+1)
		case seen[t.ID]:
			add("target %q: duplicate id", t.ID)
		}
		seen[t.ID] = true
		if !validChannel(t.Channel) {
			add("target %q: channel %d out of range", t.ID, t.Channel)
		}
		if t.Octave < -10 || t.Octave > 10 {
			add("target %q: octave %d out of range", t.ID, t.Octave)
		}
	}

	if c.Scale.Root < 0 || c.Scale.Root > 11 {
		add("scale: root %d out of range", c.Scale.Root)
	}
	if _, ok := ParseScaleType(c.Scale.Type); !ok {
		add("scale: unknown type %q", c.Scale.Type)
	}
	if _, ok := parseMode(c.Scale.Mode); !ok {
		add("scale: unknown mode %q", c.Scale.Mode)
	}

	for name, z := range map[string]ZoneConfig{"primary": c.ChordPad.Primary, "secondary": c.ChordPad.Secondary} {
		if !validChannel(z.Channel) {
			add("chord pad %s: channel %d out of range", name, z.Channel)
		}
		for note, degree := range z.Buttons {
			if !validData(note) {
				add("chord pad %s: note %d out of range", name, note)
			}
			if degree < 1 || degree > 7 {
				add("chord pad %s: note %d has degree %d", name, note, degree)
			}
		}
	}

	if len(c.Expression.Axes) > engine.MaxAxes {
		add("expression: %d axes, at most %d", len(c.Expression.Axes), engine.MaxAxes)
	}
	if len(c.Expression.Legacy) > engine.NumLegacyAxes {
		add("expression: %d legacy axes, at most %d", len(c.Expression.Legacy), engine.NumLegacyAxes)
	}
	for i, a := range append(append([]AxisConfig(nil), c.Expression.Axes...), c.Expression.Legacy...) {
		name := a.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}
		if !validData(a.InputCC) || !validData(a.OutputCC) {
			add("axis %s: cc out of range", name)
		}
		if !validChannel(a.InputChannel) {
			add("axis %s: channel %d out of range", name, a.InputChannel)
		}
		if a.Scale != nil && (*a.Scale <= 0 || *a.Scale > 1) {
			add("axis %s: scale %g outside (0, 1]", name, *a.Scale)
		}
		if a.RampMS < 0 {
			add("axis %s: negative ramp", name)
		}
	}

	if !validData(c.TapTempo.CC) {
		add("tap tempo: cc %d out of range", c.TapTempo.CC)
	}
	if c.TapTempo.Channel < 1 || c.TapTempo.Channel > 16 {
		add("tap tempo: channel %d out of range", c.TapTempo.Channel)
	}

	if len(problems) == 0 {
		return nil
	}
	return fault.New("invalid config",
		ftag.With(ftag.InvalidArgument),
		fmsg.WithDesc(strings.Join(problems, "; "), fmt.Sprintf("%d problem(s) in settings", len(problems))),
	)
}

func validChannel(ch int) bool { return ch >= 0 && ch <= 16 }
func validData(v int) bool     { return v >= 0 && v <= 127 }

// ParseScaleType looks up a scale by display name (case-insensitive)
func ParseScaleType(name string) (engine.ScaleType, bool) {
	for _, st := range engine.ScaleTypes() {
		if strings.EqualFold(st.String(), name) {
			return st, true
		}
	}
	return engine.ScaleChromatic, false
}

func parseMode(mode string) (engine.FilterMode, bool) {
	switch strings.ToLower(mode) {
	case "", "block":
		return engine.FilterBlock, true
	case "snap":
		return engine.FilterSnap, true
	}
	return engine.FilterBlock, false
}

// SourceFilter converts the target's source field
func (t TargetConfig) SourceFilter() engine.SourceFilter {
	switch t.Source {
	case "", SourceAny:
		return engine.AnySource()
	case SourceDisabled:
		return engine.SourceFilter{Mode: engine.SourceNone}
	default:
		return engine.NamedSource(t.Source)
	}
}

// EngineTargets builds engine targets. Targets without a port get no output
// and are never routed to.
func (c *Config) EngineTargets(outputs OutputFunc) []*engine.Target {
	targets := make([]*engine.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		et := &engine.Target{
			ID:          t.ID,
			Source:      t.SourceFilter(),
			Channel:     uint8(t.Channel),
			ScaleFilter: t.ScaleFilter,
			Octave:      t.Octave,
			ChordPad:    t.ChordPad,
			SingleNote:  t.SingleNote,
		}
		if t.Port != "" && outputs != nil {
			et.Output = outputs(t.Port, !t.Inactive)
		}
		targets = append(targets, et)
	}
	return targets
}

// EngineScale converts the quantizer settings
func (c *Config) EngineScale() engine.ScaleSettings {
	st, _ := ParseScaleType(c.Scale.Type)
	mode, _ := parseMode(c.Scale.Mode)
	return engine.ScaleSettings{
		Enabled: c.Scale.Enabled,
		Root:    c.Scale.Root,
		Type:    st,
		Mode:    mode,
	}
}

func buttons(m map[int]int) map[uint8]int {
	if len(m) == 0 {
		return nil
	}
	out := make(map[uint8]int, len(m))
	for note, degree := range m {
		out[uint8(note)] = degree
	}
	return out
}

// EngineChordMapping converts both chord pad zones
func (c *Config) EngineChordMapping() engine.ChordMapping {
	p, s := c.ChordPad.Primary, c.ChordPad.Secondary
	m := engine.ChordMapping{
		Primary: engine.PrimaryZone{
			Channel: uint8(p.Channel),
			Buttons: buttons(p.Buttons),
			Octave:  p.Octave,
		},
		Secondary: engine.SecondaryZone{
			Enabled: s.Enabled,
			Buttons: buttons(s.Buttons),
			Channel: uint8(s.Channel),
			Octave:  s.Octave,
		},
	}
	if s.StartNote != nil {
		m.Secondary.StartNote = uint8(*s.StartNote)
	}
	return m
}

// ScaleFactor returns the axis scale, 1 when omitted
func (a AxisConfig) ScaleFactor() float64 {
	if a.Scale == nil {
		return 1
	}
	return *a.Scale
}

// EngineAxis converts one axis
func (a AxisConfig) EngineAxis() engine.AxisMapping {
	return engine.AxisMapping{
		ID:           a.ID,
		Source:       a.Source,
		InputCC:      uint8(a.InputCC),
		InputChannel: uint8(a.InputChannel),
		OutputCC:     uint8(a.OutputCC),
		Enabled:      a.Enabled,
		Invert:       a.Invert,
		PitchBend:    a.PitchBend,
		BendUp:       a.BendUp,
		Scale:        a.ScaleFactor(),
		Ramp:         time.Duration(a.RampMS) * time.Millisecond,
	}
}

// Apply validates the config and pushes it into the engine
func (c *Config) Apply(e *engine.Engine, outputs OutputFunc) error {
	if err := c.Validate(); err != nil {
		return err
	}

	axes := make([]engine.AxisMapping, 0, len(c.Expression.Axes))
	for _, a := range c.Expression.Axes {
		axes = append(axes, a.EngineAxis())
	}
	var legacy [engine.NumLegacyAxes]engine.AxisMapping
	for i, a := range c.Expression.Legacy {
		legacy[i] = a.EngineAxis()
	}

	e.SetTargets(c.EngineTargets(outputs))
	e.SetScale(c.EngineScale())
	e.SetChordPad(c.ChordPad.Source, c.EngineChordMapping())
	e.SetExpressionSource(c.Expression.Source)
	e.SetAxes(axes)
	e.SetLegacyAxes(legacy)
	e.SetForcePitchBendChannel1(c.ForcePitchBendChannel1)
	if c.UI.LastBPM > 0 {
		_, playing := e.Transport()
		e.SetTransport(c.UI.LastBPM, playing)
	}
	return nil
}

// ApplyTapTempo configures the tap tempo controller and channel
func (c *Config) ApplyTapTempo(tt *engine.TapTempo) {
	tt.CC = uint8(c.TapTempo.CC)
	if c.TapTempo.Channel >= 1 && c.TapTempo.Channel <= 16 {
		tt.Channel = uint8(c.TapTempo.Channel - 1)
	}
}
