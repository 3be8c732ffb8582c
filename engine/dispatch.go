package engine

import (
	"go-midiroute/midi"
)

// Kind is the classified meaning of a raw event
type Kind int

const (
	KindIgnored Kind = iota
	KindNoteOn
	KindNoteOff
	KindControlChange
	KindPitchBend
)

// Channel mode controllers used by AllNotesOff
const (
	ccAllSoundOff uint8 = 120
	ccAllNotesOff uint8 = 123
)

// Classify maps a raw event to its kind; note-on with velocity 0 is a note-off
func Classify(ev midi.Event) Kind {
	switch ev.Type {
	case midi.NoteOn:
		if ev.Data2 == 0 {
			return KindNoteOff
		}
		return KindNoteOn
	case midi.NoteOff:
		return KindNoteOff
	case midi.CC:
		return KindControlChange
	case midi.PitchBend:
		return KindPitchBend
	default:
		return KindIgnored
	}
}

// Dispatch routes one incoming event. It never blocks on I/O and never fails;
// unknown message kinds are ignored.
func (e *Engine) Dispatch(ev midi.Event) {
	c := e.cfg.Load()
	switch Classify(ev) {
	case KindNoteOn:
		e.dispatchNoteOn(c, ev)
	case KindNoteOff:
		occ := occurrenceKey{source: ev.Source, channel: ev.Channel, note: ev.Data1}
		e.tracker.mu.Lock()
		sends := e.noteOff(occ, e.cfg.Load())
		e.tracker.mu.Unlock()
		e.flush(sends)
	case KindControlChange:
		e.dispatchCC(c, ev)
	case KindPitchBend:
		e.dispatchPitchBend(c, ev)
	}
}

func (e *Engine) notify() Listener {
	if b := e.listener.Load(); b != nil {
		return b.l
	}
	return nil
}

func (e *Engine) dispatchNoteOn(c *Config, ev midi.Event) {
	note, velocity := ev.Data1, ev.Data2

	if learn := e.takeNoteLearn(); learn != nil {
		learn(note, ev.Channel+1, ev.Source)
		e.log("learn", "note %d ch %d from %q", note, ev.Channel+1, ev.Source)
		return
	}
	if l := e.notify(); l != nil {
		l.NoteTriggered(note, ev.Channel, ev.Source)
	}

	occ := occurrenceKey{source: ev.Source, channel: ev.Channel, note: note}
	e.tracker.mu.Lock()
	// reload under the lock: a target removed since Dispatch started has
	// already been purged from the tables and must not be held again
	c = e.cfg.Load()

	var sends []noteSend
	if c.ChordPadSource != "" && c.ChordPadSource == ev.Source {
		var claimed bool
		sends, claimed = e.padNoteOn(c, occ, velocity)
		if !claimed {
			e.log("chord", "pad note %d ch %d unmapped, dropped", note, ev.Channel+1)
		}
	} else {
		targets := c.filterTargets(func(t *Target) bool { return t.accepts(ev.Source, ev.Channel) })
		sends = e.noteOn(occ, targets, func(t *Target) []uint8 {
			if !c.Scale.Enabled || !t.ScaleFilter {
				return []uint8{note}
			}
			return c.Scale.Apply(note)
		}, velocity, ev.Channel)
	}
	e.tracker.mu.Unlock()

	e.flush(sends)
}

func (e *Engine) dispatchCC(c *Config, ev midi.Event) {
	cc, value := ev.Data1, ev.Data2

	if learn := e.takeCCLearn(); learn != nil {
		learn(cc, ev.Channel+1, ev.Source)
		e.log("learn", "cc %d ch %d from %q", cc, ev.Channel+1, ev.Source)
		return
	}
	if l := e.notify(); l != nil {
		l.ControlMoved(cc, value, ev.Channel, ev.Source)
	}

	if a, key, ok := c.matchAxis(ev.Source, cc, ev.Channel); ok {
		e.applyAxis(c, a, key, value)
		return
	}

	for _, t := range c.Targets {
		if !t.accepts(ev.Source, ev.Channel) {
			continue
		}
		e.sendCC(t, cc, value, ev.Channel)
	}
}

// dispatchPitchBend ignores the channel predicate: an MPE controller bends
// on per-note sub-channels that the target never listens to directly
func (e *Engine) dispatchPitchBend(c *Config, ev midi.Event) {
	channel := ev.Channel
	if c.ForcePitchBendChannel1 {
		channel = 0
	}
	value := ev.Bend()
	for _, t := range c.Targets {
		if !t.acceptsSource(ev.Source) {
			continue
		}
		if err := t.Output.SendPitchBend(value, channel); err != nil {
			e.log("sink", "%s pitch bend ch %d: %v", t.ID, channel+1, err)
		}
	}
}

func (e *Engine) sendCC(t *Target, cc, value, channel uint8) {
	if err := t.Output.SendControlChange(cc, value, channel); err != nil {
		e.log("sink", "%s cc %d ch %d: %v", t.ID, cc, channel+1, err)
	}
}
