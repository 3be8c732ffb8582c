package engine

// ChordBuilder returns the notes for the chord on a scale degree (1-7)
type ChordBuilder func(degree, root int, scale ScaleType, octave int) []uint8

// DiatonicTriad stacks two scale thirds on the degree
func DiatonicTriad(degree, root int, scale ScaleType, octave int) []uint8 {
	return []uint8{
		DegreeNote(degree, root, scale, octave),
		DegreeNote(degree+2, root, scale, octave),
		DegreeNote(degree+4, root, scale, octave),
	}
}

// PrimaryZone maps pad notes to chord degrees
type PrimaryZone struct {
	Channel uint8         // 1-16, 0 = any
	Buttons map[uint8]int // input note -> degree 1-7
	Octave  int
}

// SecondaryZone maps pad notes to single scale-degree notes
type SecondaryZone struct {
	Enabled bool
	Buttons map[uint8]int // input note -> degree; preferred when non-empty
	// StartNote is the legacy contiguous layout: seven notes starting here
	// map to degrees 1-7. Used only when Buttons is empty.
	StartNote uint8
	Channel   uint8 // 1-16, 0 = any
	Octave    int
}

// ChordMapping configures both zones of the chord pad
type ChordMapping struct {
	Primary   PrimaryZone
	Secondary SecondaryZone
}

// degree returns the primary zone's degree for a note on a 0-based channel
func (z PrimaryZone) degree(note, channel uint8) (int, bool) {
	if z.Channel != 0 && z.Channel != channel+1 {
		return 0, false
	}
	d, ok := z.Buttons[note]
	return d, ok && d >= 1 && d <= 7
}

func (z SecondaryZone) degree(note, channel uint8) (int, bool) {
	if !z.Enabled {
		return 0, false
	}
	if z.Channel != 0 && z.Channel != channel+1 {
		return 0, false
	}
	if len(z.Buttons) > 0 {
		d, ok := z.Buttons[note]
		return d, ok && d >= 1 && d <= 7
	}
	if note >= z.StartNote && int(note) < int(z.StartNote)+7 {
		return int(note-z.StartNote) + 1, true
	}
	return 0, false
}

// padNoteOn handles a note-on from the chord-pad source and returns the
// note-ons to send. It reports whether either zone claimed the note;
// unclaimed notes are dropped by the caller. Caller holds the tracker lock.
func (e *Engine) padNoteOn(c *Config, occ occurrenceKey, velocity uint8) ([]noteSend, bool) {
	sc := c.Scale

	if d, ok := c.Chord.Secondary.degree(occ.note, occ.channel); ok {
		note := DegreeNote(d, sc.Root, sc.Type, c.Chord.Secondary.Octave)
		targets := c.filterTargets(func(t *Target) bool { return t.SingleNote })
		sends := e.noteOn(occ, targets, func(*Target) []uint8 { return []uint8{note} }, velocity, 0)
		e.log("chord", "single degree %d -> %d (%d targets)", d, note, len(targets))
		return sends, true
	}

	if d, ok := c.Chord.Primary.degree(occ.note, occ.channel); ok {
		build := c.BuildChord
		if build == nil {
			build = DiatonicTriad
		}
		notes := build(d, sc.Root, sc.Type, c.Chord.Primary.Octave)
		targets := c.filterTargets(func(t *Target) bool { return t.ChordPad })
		sends := e.noteOn(occ, targets, func(*Target) []uint8 { return notes }, velocity, 0)
		e.log("chord", "chord degree %d -> %v (%d targets)", d, notes, len(targets))
		return sends, true
	}

	return nil, false
}

// filterTargets returns reachable targets passing keep
func (c *Config) filterTargets(keep func(*Target) bool) []*Target {
	var out []*Target
	for _, t := range c.Targets {
		if t.reachable() && keep(t) {
			out = append(out, t)
		}
	}
	return out
}
