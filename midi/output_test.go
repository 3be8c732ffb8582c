package midi

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
)

type portLog struct {
	mu    sync.Mutex
	opens map[string]int
	sent  map[string][][]byte
	fail  map[string]error // next send to the port returns this once
}

func newPortLog() *portLog {
	return &portLog{opens: map[string]int{}, sent: map[string][][]byte{}, fail: map[string]error{}}
}

func (p *portLog) open(port string) (SendFunc, error) {
	p.mu.Lock()
	p.opens[port]++
	p.mu.Unlock()
	if port == "missing" {
		return nil, errors.New("output not found")
	}
	return func(msg gomidi.Message) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := p.fail[port]; err != nil {
			delete(p.fail, port)
			return err
		}
		p.sent[port] = append(p.sent[port], append([]byte(nil), msg...))
		return nil
	}, nil
}

func (p *portLog) openCount(port string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens[port]
}

func (p *portLog) messages(port string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.sent[port]...)
}

func testOutputs(p *portLog) *Outputs {
	o := NewOutputs()
	o.open = p.open
	return o
}

func TestSendNeverOpensPorts(t *testing.T) {
	p := newPortLog()
	o := testOutputs(p)
	ps := o.Port("Synth")

	for i := 0; i < 10; i++ {
		if err := ps.SendNoteOn(60, 100, 0); !errors.Is(err, ErrPortUnavailable) {
			t.Fatalf("send %d: err = %v", i, err)
		}
	}
	o.Refresh([]string{"Other"})
	ps.SendNoteOff(60, 0)
	if n := p.openCount("Synth"); n != 0 {
		t.Fatalf("sends to an absent port opened it %d times", n)
	}
}

func TestRefreshOpensWantedPortsOnce(t *testing.T) {
	p := newPortLog()
	o := testOutputs(p)
	ps := o.Port("Synth")

	opened, closed := o.Refresh([]string{"Synth", "Unused"})
	if !reflect.DeepEqual(opened, []string{"Synth"}) || len(closed) != 0 {
		t.Fatalf("opened %v closed %v", opened, closed)
	}
	o.Refresh([]string{"Synth", "Unused"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ps.SendNoteOn(60, 100, 0)
		}()
	}
	wg.Wait()

	if p.openCount("Synth") != 1 || p.openCount("Unused") != 0 {
		t.Fatalf("opens = %v", p.opens)
	}
	if n := len(p.messages("Synth")); n != 20 {
		t.Fatalf("sent %d messages", n)
	}
	if got := o.Open(); !reflect.DeepEqual(got, []string{"Synth"}) {
		t.Fatalf("open ports = %v", got)
	}
}

func TestUnplugAndReplug(t *testing.T) {
	p := newPortLog()
	o := testOutputs(p)
	ps := o.Port("Synth")
	o.Refresh([]string{"Synth"})

	// unplug: the port vanishes from the listing
	if _, closed := o.Refresh(nil); !reflect.DeepEqual(closed, []string{"Synth"}) {
		t.Fatalf("closed = %v", closed)
	}
	if err := ps.SendNoteOn(60, 100, 0); !errors.Is(err, ErrPortUnavailable) {
		t.Fatalf("send while unplugged: %v", err)
	}

	// replug
	o.Refresh([]string{"Synth"})
	for i := 0; i < 5; i++ {
		if err := ps.SendNoteOn(60, 100, 0); err != nil {
			t.Fatalf("send %d after replug: %v", i, err)
		}
	}
	if p.openCount("Synth") != 2 {
		t.Fatalf("opens = %d, want 2", p.openCount("Synth"))
	}
}

func TestFailedSendForgetsSender(t *testing.T) {
	p := newPortLog()
	o := testOutputs(p)
	ps := o.Port("Synth")
	o.Refresh([]string{"Synth"})

	p.fail["Synth"] = errors.New("port closed")
	if err := ps.SendNoteOn(60, 100, 0); err == nil {
		t.Fatal("expected send error")
	}
	if len(o.Open()) != 0 {
		t.Fatal("broken sender still cached")
	}

	// the port is still listed, so the next scan reopens it
	o.Refresh([]string{"Synth"})
	for i := 0; i < 5; i++ {
		if err := ps.SendNoteOn(60, 100, 0); err != nil {
			t.Fatalf("send %d after reopen: %v", i, err)
		}
	}
	if n := len(p.messages("Synth")); n != 5 {
		t.Fatalf("delivered %d, want 5", n)
	}
}

func TestAcquireAndErrors(t *testing.T) {
	p := newPortLog()
	o := testOutputs(p)
	if _, err := o.Acquire(""); err == nil {
		t.Fatal("empty port name should fail")
	}
	if _, err := o.Acquire("missing"); err == nil {
		t.Fatal("missing port should fail")
	}
	if len(o.Open()) != 0 {
		t.Fatalf("failed opens cached: %v", o.Open())
	}
	if _, err := o.Acquire("Drums"); err != nil {
		t.Fatal(err)
	}
	o.Acquire("Drums")
	if p.openCount("Drums") != 1 {
		t.Fatalf("Drums opened %d times", p.openCount("Drums"))
	}
}

func TestPortSinkMessages(t *testing.T) {
	p := newPortLog()
	o := testOutputs(p)
	ps := o.Port("Synth")
	o.Refresh([]string{"Synth"})

	ps.SendNoteOn(60, 100, 1)
	ps.SendNoteOff(60, 1)
	ps.SendControlChange(74, 12, 9)
	ps.SendPitchBend(8192, 0)
	ps.SendPitchBend(16383, 0)
	ps.SendPitchBend(0, 15)

	want := [][]byte{
		{0x91, 60, 100},
		{0x81, 60, 0},
		{0xB9, 74, 12},
		{0xE0, 0x00, 0x40},
		{0xE0, 0x7F, 0x7F},
		{0xEF, 0x00, 0x00},
	}
	got := p.messages("Synth")
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d: % X", len(got), len(want), got)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("message %d = % X, want % X", i, got[i], want[i])
		}
	}
}

func TestPortSinkActiveFlag(t *testing.T) {
	ps := testOutputs(newPortLog()).Port("Synth")
	if !ps.HasActiveProcessor() {
		t.Fatal("ports are active by default")
	}
	ps.SetActive(false)
	if ps.HasActiveProcessor() {
		t.Fatal("SetActive(false) ignored")
	}
}

func TestDestinationTimedPulses(t *testing.T) {
	p := newPortLog()
	d := NewDestination(context.Background(), testOutputs(p))

	start := time.Now()
	at := []time.Time{start.Add(5 * time.Millisecond), start.Add(15 * time.Millisecond), start.Add(25 * time.Millisecond)}
	if err := d.SendTimedPulses([]byte{0xB0, 102, 127}, at, "Drums"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(p.messages("Drums")) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := len(p.messages("Drums")); n != 3 {
		t.Fatalf("sent %d pulses, want 3", n)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatal("pulses sent before their time")
	}
	if err := d.SendTimedPulses([]byte{0xB0, 102, 127}, at, "missing"); err == nil {
		t.Fatal("unknown destination should fail synchronously")
	}
}

func TestDestinationCancel(t *testing.T) {
	p := newPortLog()
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDestination(ctx, testOutputs(p))

	at := []time.Time{time.Now().Add(time.Hour)}
	if err := d.SendTimedPulses([]byte{0xB0, 102, 127}, at, "Drums"); err != nil {
		t.Fatal(err)
	}
	cancel()
	time.Sleep(10 * time.Millisecond)
	if n := len(p.messages("Drums")); n != 0 {
		t.Fatalf("cancelled pulses sent: %d", n)
	}

	if err := d.SendRaw([]byte{0xFA}, "Drums"); err != nil {
		t.Fatal(err)
	}
	if got := p.messages("Drums"); len(got) != 1 || got[0][0] != 0xFA {
		t.Fatalf("raw send = % X", got)
	}
}
