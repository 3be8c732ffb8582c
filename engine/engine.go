package engine

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"go-midiroute/debug"
)

// MaxAxes is the number of dynamic expression axes
const MaxAxes = 8

// NumLegacyAxes is the number of fixed compatibility axes
const NumLegacyAxes = 4

// Config is an immutable snapshot of everything the control plane can change.
// The engine never mutates a published Config.
type Config struct {
	Targets        []*Target
	Scale          ScaleSettings
	ChordPadSource string // "" = no chord pad configured
	Chord          ChordMapping

	ExpressionSource string // shared default source for axes without one
	Axes             []AxisMapping
	LegacyAxes       [NumLegacyAxes]AxisMapping

	// ForcePitchBendChannel1 sends all pitch bend on channel 1 for
	// destinations that are not multichannel-expressive
	ForcePitchBendChannel1 bool

	// BuildChord constructs chord-pad voicings (nil = DiatonicTriad)
	BuildChord ChordBuilder

	ramps map[string]*rampState
}

// Listener receives non-consuming notifications from the dispatcher.
// Both methods are called synchronously on the ingestion path; channel is
// 0-based.
type Listener interface {
	NoteTriggered(note, channel uint8, source string)
	ControlMoved(cc, value, channel uint8, source string)
}

// NoteLearnFunc receives the learned note and its 1-based channel
type NoteLearnFunc func(note, channel uint8, source string)

// CCLearnFunc receives the learned controller and its 1-based channel
type CCLearnFunc func(cc, channel uint8, source string)

// Engine is the routing and note-lifecycle engine. Create one per
// application and pass it to whoever needs it.
type Engine struct {
	cfg   atomic.Pointer[Config]
	cfgMu sync.Mutex // serializes copy-on-write config updates

	tracker *tracker

	learnMu   sync.Mutex
	noteLearn NoteLearnFunc
	ccLearn   CCLearnFunc

	listener atomic.Pointer[listenerBox]

	transportMu sync.RWMutex
	bpm         float64
	playing     bool

	logf atomic.Pointer[debug.Logf]
}

type listenerBox struct{ l Listener }

// New creates an engine with an empty configuration
func New() *Engine {
	e := &Engine{
		tracker: newTracker(),
		bpm:     120,
	}
	e.SetLogger(debug.Log)
	e.cfg.Store(&Config{ramps: map[string]*rampState{}})
	return e
}

// SetLogger replaces the logging collaborator (defaults to debug.Log).
// Safe to call while events are dispatched.
func (e *Engine) SetLogger(fn debug.Logf) {
	if fn != nil {
		e.logf.Store(&fn)
	}
}

func (e *Engine) log(category, format string, args ...any) {
	(*e.logf.Load())(category, format, args...)
}

// SetChordBuilder replaces the chord construction function
func (e *Engine) SetChordBuilder(fn ChordBuilder) {
	e.update(func(c *Config) { c.BuildChord = fn })
}

// Config returns the current snapshot. Callers must not modify it.
func (e *Engine) Config() *Config {
	return e.cfg.Load()
}

// update publishes a modified copy of the current config
func (e *Engine) update(fn func(c *Config)) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()

	old := e.cfg.Load()
	next := *old
	next.Targets = slices.Clone(old.Targets)
	next.Axes = slices.Clone(old.Axes)
	next.Chord = old.Chord.clone()
	fn(&next)
	next.ramps = syncRamps(old.ramps, &next)
	e.cfg.Store(&next)
}

// SetTargets replaces the routing target list
func (e *Engine) SetTargets(targets []*Target) {
	removed := map[string]bool{}
	e.update(func(c *Config) {
		for _, t := range c.Targets {
			removed[t.ID] = true
		}
		c.Targets = nil
		for _, t := range targets {
			cp := *t
			c.Targets = append(c.Targets, &cp)
			delete(removed, t.ID)
		}
	})
	for id := range removed {
		e.tracker.dropTarget(id)
	}
}

// AddTarget adds a target, replacing any existing target with the same ID
func (e *Engine) AddTarget(t Target) {
	e.update(func(c *Config) {
		c.Targets = slices.DeleteFunc(c.Targets, func(x *Target) bool { return x.ID == t.ID })
		c.Targets = append(c.Targets, &t)
	})
}

// RemoveTarget removes a target. Ref counts it still owed are discarded and
// no note-off is ever sent for them.
func (e *Engine) RemoveTarget(id string) {
	e.update(func(c *Config) {
		c.Targets = slices.DeleteFunc(c.Targets, func(x *Target) bool { return x.ID == id })
	})
	e.tracker.dropTarget(id)
}

// SetScale replaces the global quantizer settings
func (e *Engine) SetScale(s ScaleSettings) {
	e.update(func(c *Config) { c.Scale = s })
}

// SetChordPad configures the chord-pad source and its zone mapping.
// An empty source disables chord-pad routing.
func (e *Engine) SetChordPad(source string, m ChordMapping) {
	e.update(func(c *Config) {
		c.ChordPadSource = source
		c.Chord = m.clone()
	})
}

// SetAxes replaces the dynamic expression axes (at most MaxAxes are kept)
func (e *Engine) SetAxes(axes []AxisMapping) {
	if len(axes) > MaxAxes {
		axes = axes[:MaxAxes]
	}
	e.update(func(c *Config) { c.Axes = slices.Clone(axes) })
}

// SetLegacyAxes replaces the fixed compatibility axes
func (e *Engine) SetLegacyAxes(axes [NumLegacyAxes]AxisMapping) {
	e.update(func(c *Config) { c.LegacyAxes = axes })
}

// SetExpressionSource sets the shared default source for expression axes
func (e *Engine) SetExpressionSource(source string) {
	e.update(func(c *Config) { c.ExpressionSource = source })
}

// SetForcePitchBendChannel1 toggles the pitch bend channel override
func (e *Engine) SetForcePitchBendChannel1(on bool) {
	e.update(func(c *Config) { c.ForcePitchBendChannel1 = on })
}

// SetListener installs the notification listener (nil to remove)
func (e *Engine) SetListener(l Listener) {
	if l == nil {
		e.listener.Store(nil)
		return
	}
	e.listener.Store(&listenerBox{l: l})
}

// ArmNoteLearn consumes the next note-on and reports it to fn
func (e *Engine) ArmNoteLearn(fn NoteLearnFunc) {
	e.learnMu.Lock()
	e.noteLearn = fn
	e.learnMu.Unlock()
}

// ArmCCLearn consumes the next control change and reports it to fn
func (e *Engine) ArmCCLearn(fn CCLearnFunc) {
	e.learnMu.Lock()
	e.ccLearn = fn
	e.learnMu.Unlock()
}

// CancelLearn disarms both learn modes
func (e *Engine) CancelLearn() {
	e.learnMu.Lock()
	e.noteLearn = nil
	e.ccLearn = nil
	e.learnMu.Unlock()
}

// Learning reports which learn modes are armed
func (e *Engine) Learning() (note, cc bool) {
	e.learnMu.Lock()
	defer e.learnMu.Unlock()
	return e.noteLearn != nil, e.ccLearn != nil
}

func (e *Engine) takeNoteLearn() NoteLearnFunc {
	e.learnMu.Lock()
	defer e.learnMu.Unlock()
	fn := e.noteLearn
	e.noteLearn = nil
	return fn
}

func (e *Engine) takeCCLearn() CCLearnFunc {
	e.learnMu.Lock()
	defer e.learnMu.Unlock()
	fn := e.ccLearn
	e.ccLearn = nil
	return fn
}

// SetTransport records the host sequencer state
func (e *Engine) SetTransport(bpm float64, playing bool) {
	e.transportMu.Lock()
	defer e.transportMu.Unlock()
	if bpm > 0 {
		e.bpm = bpm
	}
	e.playing = playing
}

// Transport returns the last reported tempo and play state
func (e *Engine) Transport() (bpm float64, playing bool) {
	e.transportMu.RLock()
	defer e.transportMu.RUnlock()
	return e.bpm, e.playing
}

// HeldNote is one entry of the output ref-count table
type HeldNote struct {
	Note    uint8
	Channel uint8
	Count   int
}

// Snapshot returns the held output notes per target ID
func (e *Engine) Snapshot() map[string][]HeldNote {
	return e.tracker.snapshot()
}

// RefCount returns the current count for one output note
func (e *Engine) RefCount(targetID string, note, channel uint8) int {
	return e.tracker.count(outputKey{target: targetID, note: note, channel: channel})
}

// AllNotesOff forgets every tracked note, then tells every target to stop
// sounding. Clearing happens first so a racing note-off finds nothing.
func (e *Engine) AllNotesOff() {
	e.tracker.mu.Lock()
	e.tracker.reset()
	e.tracker.mu.Unlock()

	c := e.cfg.Load()
	for _, t := range c.Targets {
		if t.Output == nil {
			continue
		}
		for ch := uint8(0); ch < 16; ch++ {
			e.sendCC(t, ccAllSoundOff, 0, ch)
			e.sendCC(t, ccAllNotesOff, 0, ch)
		}
	}
	e.log("engine", "all notes off: %d targets", len(c.Targets))
}

func (c *Config) target(id string) *Target {
	for _, t := range c.Targets {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TargetIDs lists target IDs in configuration order
func (c *Config) TargetIDs() []string {
	ids := make([]string, 0, len(c.Targets))
	for _, t := range c.Targets {
		ids = append(ids, t.ID)
	}
	return ids
}

func (m ChordMapping) clone() ChordMapping {
	m.Primary.Buttons = maps.Clone(m.Primary.Buttons)
	m.Secondary.Buttons = maps.Clone(m.Secondary.Buttons)
	return m
}
