package midi

import (
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
)

type fakeInput struct {
	closed bool
}

func (f *fakeInput) Close() error {
	f.closed = true
	return nil
}

type fakePorts struct {
	mu     sync.Mutex
	names  []string
	err    error
	opened map[string]*fakeInput
}

func (f *fakePorts) list() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...), f.err
}

func (f *fakePorts) open(name string, h Handler) (io.Closer, error) {
	if name == "Broken" {
		return nil, errors.New("busy")
	}
	in := &fakeInput{}
	f.opened[name] = in
	return in, nil
}

func testManager(f *fakePorts) *DeviceManager {
	dm := NewDeviceManager(func(Event) {})
	dm.listPorts = f.list
	dm.open = f.open
	return dm
}

func drain(dm *DeviceManager) []DeviceEvent {
	var out []DeviceEvent
	for {
		select {
		case ev := <-dm.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestScanConnectsAndDisconnects(t *testing.T) {
	f := &fakePorts{
		names:  []string{"Keystep", "Midi Through Port-0", "Launchpad X MIDI 1", "Broken"},
		opened: map[string]*fakeInput{},
	}
	dm := testManager(f)

	dm.scan()
	if got := dm.Inputs(); !reflect.DeepEqual(got, []string{"Keystep", "Launchpad X MIDI 1"}) {
		t.Fatalf("inputs = %v", got)
	}
	want := []DeviceEvent{
		{Type: DeviceConnected, Name: "Keystep"},
		{Type: DeviceConnected, Name: "Launchpad X MIDI 1"},
	}
	if got := drain(dm); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v", got)
	}

	// no change, no events
	dm.scan()
	if got := drain(dm); len(got) != 0 {
		t.Fatalf("rescan produced %v", got)
	}

	f.mu.Lock()
	f.names = []string{"Launchpad X MIDI 1"}
	f.mu.Unlock()
	dm.scan()

	if got := drain(dm); !reflect.DeepEqual(got, []DeviceEvent{{Type: DeviceDisconnected, Name: "Keystep"}}) {
		t.Fatalf("events = %v", got)
	}
	if !f.opened["Keystep"].closed {
		t.Fatal("disconnected input not closed")
	}
}

func TestScanErrorKeepsInputs(t *testing.T) {
	f := &fakePorts{names: []string{"Keystep"}, opened: map[string]*fakeInput{}}
	dm := testManager(f)
	dm.scan()
	drain(dm)

	f.err = errScanTimeout
	dm.scan()
	if got := dm.Inputs(); !reflect.DeepEqual(got, []string{"Keystep"}) {
		t.Fatalf("inputs after failed scan = %v", got)
	}
	if got := drain(dm); len(got) != 0 {
		t.Fatalf("failed scan produced %v", got)
	}
}

func TestSetExclude(t *testing.T) {
	f := &fakePorts{names: []string{"Keystep", "IAC Bus 1"}, opened: map[string]*fakeInput{}}
	dm := testManager(f)
	dm.SetExclude([]string{" IAC ", ""})

	dm.scan()
	if got := dm.Inputs(); !reflect.DeepEqual(got, []string{"Keystep"}) {
		t.Fatalf("inputs = %v", got)
	}
}

func TestSetExcludeEmptyRestoresDefaults(t *testing.T) {
	f := &fakePorts{names: []string{"Keystep", "Midi Through Port-0"}, opened: map[string]*fakeInput{}}
	dm := testManager(f)
	dm.SetExclude([]string{"keystep"})
	dm.SetExclude(nil)

	dm.scan()
	if got := dm.Inputs(); !reflect.DeepEqual(got, []string{"Keystep"}) {
		t.Fatalf("inputs = %v", got)
	}
}

func TestScanReconcilesOutputs(t *testing.T) {
	f := &fakePorts{opened: map[string]*fakeInput{}}
	dm := testManager(f)
	p := newPortLog()
	o := testOutputs(p)
	ps := o.Port("Synth")
	dm.SetOutputs(o)

	var outNames []string
	dm.listOutPorts = func() ([]string, error) { return outNames, nil }

	outNames = []string{"Synth"}
	dm.scan()
	if err := ps.SendNoteOn(60, 100, 0); err != nil {
		t.Fatalf("send after scan: %v", err)
	}

	outNames = nil
	dm.scan()
	if err := ps.SendNoteOn(60, 100, 0); !errors.Is(err, ErrPortUnavailable) {
		t.Fatalf("send after unplug: %v", err)
	}

	outNames = []string{"Synth"}
	dm.scan()
	if err := ps.SendNoteOn(60, 100, 0); err != nil {
		t.Fatalf("send after replug: %v", err)
	}

	want := []DeviceEvent{
		{Type: DeviceConnected, Name: "Synth", Output: true},
		{Type: DeviceDisconnected, Name: "Synth", Output: true},
		{Type: DeviceConnected, Name: "Synth", Output: true},
	}
	if got := drain(dm); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %+v", got)
	}
}
