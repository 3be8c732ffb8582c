package engine

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

type fakeDest struct {
	msg  []byte
	at   []time.Time
	dest string
	err  error
}

func (d *fakeDest) SendRaw(msg []byte, dest string) error {
	d.msg, d.dest = msg, dest
	return d.err
}

func (d *fakeDest) SendTimedPulses(msg []byte, at []time.Time, dest string) error {
	d.msg, d.at, d.dest = msg, at, dest
	return d.err
}

func TestScheduleSpacing(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := Schedule(120, t0)
	if len(at) != TapPulses {
		t.Fatalf("got %d pulses, want %d", len(at), TapPulses)
	}
	for i, ts := range at {
		if want := t0.Add(time.Duration(i) * 500 * time.Millisecond); !ts.Equal(want) {
			t.Fatalf("pulse %d at %v, want %v", i, ts, want)
		}
	}
	if Schedule(0, t0) != nil || Schedule(-5, t0) != nil {
		t.Fatal("non-positive tempo should schedule nothing")
	}
}

func TestTapTempoSend(t *testing.T) {
	e := newTestEngine(t)
	dest := &fakeDest{}
	tt := NewTapTempo(e, dest)
	tt.Channel = 15
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tt.now = func() time.Time { return now }

	tt.Send(60, "Drum Machine")

	if want := []byte{0xBF, DefaultTapCC, 127}; !reflect.DeepEqual(dest.msg, want) {
		t.Fatalf("msg = % X, want % X", dest.msg, want)
	}
	if dest.dest != "Drum Machine" {
		t.Fatalf("dest = %q", dest.dest)
	}
	if len(dest.at) != TapPulses || !dest.at[0].Equal(now.Add(tapLead)) {
		t.Fatalf("pulse times = %v", dest.at)
	}
	if gap := dest.at[1].Sub(dest.at[0]); gap != time.Second {
		t.Fatalf("gap = %v, want 1s", gap)
	}
}

func TestTapTempoFallsBackToTransport(t *testing.T) {
	e := newTestEngine(t)
	e.SetTransport(150, true)
	dest := &fakeDest{}
	tt := NewTapTempo(e, dest)

	tt.Send(0, "out")

	if gap := dest.at[1].Sub(dest.at[0]); gap != 400*time.Millisecond {
		t.Fatalf("gap = %v, want 400ms", gap)
	}
}

func TestTapTempoFailureIsDropped(t *testing.T) {
	e := newTestEngine(t)
	var logged []string
	e.SetLogger(func(category, format string, args ...any) { logged = append(logged, category) })
	dest := &fakeDest{err: errors.New("no such port")}

	NewTapTempo(e, dest).Send(120, "missing")

	if !reflect.DeepEqual(logged, []string{"tap"}) {
		t.Fatalf("logged %v", logged)
	}
}

func TestTransport(t *testing.T) {
	e := newTestEngine(t)
	if bpm, playing := e.Transport(); bpm != 120 || playing {
		t.Fatalf("default transport = %v %v", bpm, playing)
	}
	e.SetTransport(0, true)
	if bpm, playing := e.Transport(); bpm != 120 || !playing {
		t.Fatalf("zero bpm must keep previous tempo: %v %v", bpm, playing)
	}
}
