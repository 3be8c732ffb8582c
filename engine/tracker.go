package engine

import (
	"sort"
	"sync"
)

// occurrenceKey identifies one held input note
type occurrenceKey struct {
	source  string
	channel uint8
	note    uint8
}

// outputKey identifies one sounding note on a target
type outputKey struct {
	target  string
	note    uint8
	channel uint8
}

// tracker holds the note-occurrence and output ref-count tables.
// All methods without a lock of their own require mu to be held.
type tracker struct {
	mu          sync.Mutex
	occurrences map[occurrenceKey][]outputKey
	refs        map[outputKey]int
}

func newTracker() *tracker {
	return &tracker{
		occurrences: make(map[occurrenceKey][]outputKey),
		refs:        make(map[outputKey]int),
	}
}

// hold increments the ref count for out and records it under occ
func (tr *tracker) hold(occ occurrenceKey, out outputKey) {
	tr.refs[out]++
	tr.occurrences[occ] = append(tr.occurrences[occ], out)
}

// release removes occ and returns the output notes whose count reached 0.
// Outputs already discarded (target removed, all-notes-off) are skipped.
func (tr *tracker) release(occ occurrenceKey) []outputKey {
	outs, ok := tr.occurrences[occ]
	if !ok {
		return nil
	}
	delete(tr.occurrences, occ)

	var ended []outputKey
	for _, out := range outs {
		n, ok := tr.refs[out]
		if !ok {
			continue
		}
		if n <= 1 {
			delete(tr.refs, out)
			ended = append(ended, out)
			continue
		}
		tr.refs[out] = n - 1
	}
	return ended
}

func (tr *tracker) reset() {
	tr.occurrences = make(map[occurrenceKey][]outputKey)
	tr.refs = make(map[outputKey]int)
}

// dropTarget discards every ref count owed to a target
func (tr *tracker) dropTarget(id string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for k := range tr.refs {
		if k.target == id {
			delete(tr.refs, k)
		}
	}
	// a target re-added under the same ID must not inherit stale holds
	for occ, outs := range tr.occurrences {
		kept := outs[:0]
		for _, out := range outs {
			if out.target != id {
				kept = append(kept, out)
			}
		}
		if len(kept) == 0 {
			delete(tr.occurrences, occ)
		} else {
			tr.occurrences[occ] = kept
		}
	}
}

func (tr *tracker) count(k outputKey) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.refs[k]
}

func (tr *tracker) snapshot() map[string][]HeldNote {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	out := make(map[string][]HeldNote)
	for k, n := range tr.refs {
		out[k.target] = append(out[k.target], HeldNote{Note: k.note, Channel: k.channel, Count: n})
	}
	for _, notes := range out {
		sort.Slice(notes, func(i, j int) bool {
			if notes[i].Note != notes[j].Note {
				return notes[i].Note < notes[j].Note
			}
			return notes[i].Channel < notes[j].Channel
		})
	}
	return out
}

// noteSend is a sink call decided under the tracker lock and made after
// it is released
type noteSend struct {
	target   *Target
	on       bool
	note     uint8
	velocity uint8
	channel  uint8
}

// flush performs collected sends. Caller must not hold tr.mu.
func (e *Engine) flush(sends []noteSend) {
	for _, s := range sends {
		var err error
		if s.on {
			err = s.target.Output.SendNoteOn(s.note, s.velocity, s.channel)
		} else {
			err = s.target.Output.SendNoteOff(s.note, s.channel)
		}
		if err != nil {
			e.log("sink", "%s note %d ch %d (on=%t): %v", s.target.ID, s.note, s.channel+1, s.on, err)
		}
	}
}

// noteOn records one input note against the given targets and returns the
// note-ons to send. notesFor maps a target to its output notes; channel is
// the output channel. A repeated note-on for a still-held occurrence
// appends to it, so the one matching note-off releases everything.
// Caller holds tr.mu.
func (e *Engine) noteOn(occ occurrenceKey, targets []*Target, notesFor func(*Target) []uint8, velocity, channel uint8) []noteSend {
	var sends []noteSend
	for _, t := range targets {
		for _, n := range notesFor(t) {
			out := transpose(n, t.Octave)
			e.tracker.hold(occ, outputKey{target: t.ID, note: out, channel: channel})
			sends = append(sends, noteSend{target: t, on: true, note: out, velocity: velocity, channel: channel})
		}
	}
	return sends
}

// noteOff releases an occurrence and returns note-offs for outputs no
// longer held by anything. Caller holds tr.mu.
func (e *Engine) noteOff(occ occurrenceKey, c *Config) []noteSend {
	var sends []noteSend
	for _, out := range e.tracker.release(occ) {
		t := c.target(out.target)
		if t == nil || t.Output == nil {
			continue
		}
		sends = append(sends, noteSend{target: t, note: out.note, channel: out.channel})
	}
	return sends
}
