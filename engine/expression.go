package engine

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// RampInterval is the cadence of the ramp updater
const RampInterval = 5 * time.Millisecond

// AxisMapping remaps one incoming controller onto a CC or pitch bend
type AxisMapping struct {
	ID           string
	Source       string // "" = the engine's shared expression source
	InputCC      uint8
	InputChannel uint8 // 1-16, 0 = any
	OutputCC     uint8
	Enabled      bool
	Invert       bool
	PitchBend    bool    // emit pitch bend instead of OutputCC
	BendUp       bool    // bend from centre toward 16383 (else toward 0)
	Scale        float64 // 0 < Scale <= 1
	Ramp         time.Duration
}

func (a *AxisMapping) matches(defaultSource, source string, cc, channel uint8) bool {
	if !a.Enabled || a.InputCC != cc {
		return false
	}
	src := a.Source
	if src == "" {
		src = defaultSource
	}
	if src == "" || src != source {
		return false
	}
	return a.InputChannel == 0 || a.InputChannel == channel+1
}

func (a *AxisMapping) scale() float64 {
	if a.Scale <= 0 || a.Scale > 1 {
		return 1
	}
	return a.Scale
}

// CCValue transforms an input value (0-127) into the output CC value
func (a *AxisMapping) CCValue(v float64) uint8 {
	scaled := math.Round(v * a.scale())
	if a.Invert {
		scaled = 127 - scaled
	}
	return uint8(math.Max(0, math.Min(127, scaled)))
}

// BendValue transforms an input value (0-127) into a 14-bit pitch bend
// centred on 8192 with at most round(8191*scale) deviation
func (a *AxisMapping) BendValue(v float64) uint16 {
	frac := math.Max(0, math.Min(127, v)) / 127
	if a.Invert {
		frac = 1 - frac
	}
	maxDev := math.Round(8191 * a.scale())
	dev := int(math.Round(frac * maxDev))
	if !a.BendUp {
		dev = -dev
	}
	return uint16(max(0, min(16383, 8192+dev)))
}

// rampState is the smoothing state of one axis. target is written only by
// the ingestion path, current only by the ramp updater.
type rampState struct {
	target  atomic.Uint64 // float64 bits, NaN until the first value
	current atomic.Uint64 // float64 bits, NaN until primed
	sent    int           // last emitted quantized value (updater only)
}

func newRampState() *rampState {
	r := &rampState{sent: -1}
	r.target.Store(math.Float64bits(math.NaN()))
	r.current.Store(math.Float64bits(math.NaN()))
	return r
}

func (r *rampState) setTarget(v float64) { r.target.Store(math.Float64bits(v)) }

// Current returns the smoothed value (NaN before the first value)
func (r *rampState) Current() float64 { return math.Float64frombits(r.current.Load()) }

// advance moves current toward target and returns the quantized value when
// it changed by at least one step
func (r *rampState) advance(dt, ramp time.Duration) (int, bool) {
	target := math.Float64frombits(r.target.Load())
	if math.IsNaN(target) {
		return 0, false
	}
	cur := r.Current()
	if math.IsNaN(cur) {
		cur = target
	} else {
		cur += (target - cur) * (1 - math.Exp(-float64(dt)/float64(ramp)))
		if math.Abs(target-cur) < 0.01 {
			cur = target
		}
	}
	r.current.Store(math.Float64bits(cur))

	q := int(math.Round(cur))
	if q == r.sent {
		return 0, false
	}
	r.sent = q
	return q, true
}

func axisKey(a *AxisMapping, legacy bool, i int) string {
	if a.ID != "" {
		return a.ID
	}
	if legacy {
		return fmt.Sprintf("legacy-%d", i)
	}
	return fmt.Sprintf("axis-%d", i)
}

// syncRamps carries ramp state across config updates, keyed by axis ID
func syncRamps(old map[string]*rampState, c *Config) map[string]*rampState {
	next := make(map[string]*rampState)
	keep := func(a *AxisMapping, legacy bool, i int) {
		if a.Ramp <= 0 {
			return
		}
		k := axisKey(a, legacy, i)
		if r, ok := old[k]; ok {
			next[k] = r
		} else {
			next[k] = newRampState()
		}
	}
	for i := range c.Axes {
		keep(&c.Axes[i], false, i)
	}
	for i := range c.LegacyAxes {
		keep(&c.LegacyAxes[i], true, i)
	}
	return next
}

// matchAxis finds the axis claiming a CC: dynamic axes first, in order,
// then the legacy axes
func (c *Config) matchAxis(source string, cc, channel uint8) (*AxisMapping, string, bool) {
	for i := range c.Axes {
		if a := &c.Axes[i]; a.matches(c.ExpressionSource, source, cc, channel) {
			return a, axisKey(a, false, i), true
		}
	}
	for i := range c.LegacyAxes {
		if a := &c.LegacyAxes[i]; a.matches(c.ExpressionSource, source, cc, channel) {
			return a, axisKey(a, true, i), true
		}
	}
	return nil, "", false
}

// applyAxis either emits the value now or hands it to the ramp updater
func (e *Engine) applyAxis(c *Config, a *AxisMapping, key string, value uint8) {
	if a.Ramp > 0 {
		if r, ok := c.ramps[key]; ok {
			r.setTarget(float64(value))
			return
		}
	}
	e.emitAxis(c, a, float64(value))
}

// emitAxis sends the transformed value to every target with a loaded
// processor; targets without one are skipped
func (e *Engine) emitAxis(c *Config, a *AxisMapping, v float64) {
	for _, t := range c.Targets {
		if !t.reachable() || !t.Output.HasActiveProcessor() {
			continue
		}
		var err error
		if a.PitchBend {
			err = t.Output.SendPitchBend(a.BendValue(v), 0)
		} else {
			err = t.Output.SendControlChange(a.OutputCC, a.CCValue(v), 0)
		}
		if err != nil {
			e.log("sink", "%s axis %s: %v", t.ID, a.ID, err)
		}
	}
}

// StepRamps advances every ramping axis by dt and emits changed values.
// Only the ramp updater may call it.
func (e *Engine) StepRamps(dt time.Duration) {
	c := e.cfg.Load()
	step := func(a *AxisMapping, legacy bool, i int) {
		if a.Ramp <= 0 || !a.Enabled {
			return
		}
		r, ok := c.ramps[axisKey(a, legacy, i)]
		if !ok {
			return
		}
		if q, changed := r.advance(dt, a.Ramp); changed {
			e.emitAxis(c, a, float64(q))
		}
	}
	for i := range c.Axes {
		step(&c.Axes[i], false, i)
	}
	for i := range c.LegacyAxes {
		step(&c.LegacyAxes[i], true, i)
	}
}

// RunRamps runs the ramp updater until ctx is done (blocking - run in goroutine)
func (e *Engine) RunRamps(ctx context.Context) {
	ticker := time.NewTicker(RampInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.StepRamps(RampInterval)
		}
	}
}

// RampValue returns the smoothed value of a ramping axis (NaN if none)
func (e *Engine) RampValue(axisID string) float64 {
	if r, ok := e.cfg.Load().ramps[axisID]; ok {
		return r.Current()
	}
	return math.NaN()
}
