package engine

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go-midiroute/midi"
)

// call is one recorded sink invocation
type call struct {
	Kind    string // "on", "off", "cc", "bend"
	Data1   int
	Data2   int
	Channel uint8
}

func (c call) String() string {
	return fmt.Sprintf("%s(%d,%d ch%d)", c.Kind, c.Data1, c.Data2, c.Channel)
}

// recorder is a fake Output that records every call
type recorder struct {
	mu       sync.Mutex
	calls    []call
	inactive bool
	fail     bool
}

func (r *recorder) add(c call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	if r.fail {
		return errors.New("destination unavailable")
	}
	return nil
}

func (r *recorder) SendNoteOn(note, velocity, channel uint8) error {
	return r.add(call{"on", int(note), int(velocity), channel})
}

func (r *recorder) SendNoteOff(note, channel uint8) error {
	return r.add(call{"off", int(note), 0, channel})
}

func (r *recorder) SendControlChange(cc, value, channel uint8) error {
	return r.add(call{"cc", int(cc), int(value), channel})
}

func (r *recorder) SendPitchBend(value uint16, channel uint8) error {
	return r.add(call{"bend", int(value), 0, channel})
}

func (r *recorder) HasActiveProcessor() bool { return !r.inactive }

func (r *recorder) Calls() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recorder) Count(kind string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

// newTestEngine returns an engine with logging captured in the test log
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New()
	e.SetLogger(func(category, format string, args ...any) {
		t.Logf("[%s] "+format, append([]any{category}, args...)...)
	})
	return e
}

func noteOn(src string, ch, note, vel uint8) midi.Event {
	return midi.Event{Type: midi.NoteOn, Channel: ch, Data1: note, Data2: vel, Source: src, Time: time.Now()}
}

func noteOff(src string, ch, note uint8) midi.Event {
	return midi.Event{Type: midi.NoteOff, Channel: ch, Data1: note, Source: src, Time: time.Now()}
}

func cc(src string, ch, num, val uint8) midi.Event {
	return midi.Event{Type: midi.CC, Channel: ch, Data1: num, Data2: val, Source: src, Time: time.Now()}
}

func bend(src string, ch uint8, value uint16) midi.Event {
	return midi.Event{Type: midi.PitchBend, Channel: ch, Data1: uint8(value & 0x7F), Data2: uint8(value >> 7), Source: src, Time: time.Now()}
}
