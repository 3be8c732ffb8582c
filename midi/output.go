package midi

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-midiroute/debug"
)

// ErrPortUnavailable is returned by Send for a port that is not open.
// Sends never open ports; Refresh and Acquire do.
var ErrPortUnavailable = errors.New("output port unavailable")

// SendFunc delivers one message to an opened output port
type SendFunc func(msg gomidi.Message) error

// Outputs caches one sender per output port name, shared by every sink
// addressing that port. Ports are opened by Refresh (device poll loop) or
// Acquire (control plane), never by Send.
type Outputs struct {
	mu      sync.RWMutex
	senders map[string]SendFunc
	wanted  map[string]bool
	open    func(port string) (SendFunc, error)
}

// NewOutputs creates a cache backed by the system MIDI driver
func NewOutputs() *Outputs {
	return &Outputs{
		senders: make(map[string]SendFunc),
		wanted:  make(map[string]bool),
		open:    openOutPort,
	}
}

func openOutPort(port string) (SendFunc, error) {
	for _, p := range gomidi.GetOutPorts() {
		if p.String() == port {
			send, err := gomidi.SendTo(p)
			if err != nil {
				return nil, fmt.Errorf("open output %q: %w", port, err)
			}
			return send, nil
		}
	}
	return nil, fmt.Errorf("output %q not found", port)
}

// Want registers a port so Refresh keeps it open
func (o *Outputs) Want(port string) {
	if port == "" {
		return
	}
	o.mu.Lock()
	o.wanted[port] = true
	o.mu.Unlock()
}

// Refresh reconciles the cache with the ports the driver currently lists:
// wanted ports that appeared are opened, cached ports that vanished are
// dropped. Opening happens without holding the lock so concurrent sends
// never wait on the driver.
func (o *Outputs) Refresh(available []string) (opened, closed []string) {
	o.mu.RLock()
	var toOpen []string
	for port := range o.wanted {
		if _, ok := o.senders[port]; !ok && slices.Contains(available, port) {
			toOpen = append(toOpen, port)
		}
	}
	o.mu.RUnlock()

	fresh := make(map[string]SendFunc, len(toOpen))
	for _, port := range toOpen {
		s, err := o.open(port)
		if err != nil {
			debug.Log("outputs", "open %q: %v", port, err)
			continue
		}
		fresh[port] = s
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for port, s := range fresh {
		if _, ok := o.senders[port]; !ok {
			o.senders[port] = s
			opened = append(opened, port)
		}
	}
	for port := range o.senders {
		if !slices.Contains(available, port) {
			delete(o.senders, port)
			closed = append(closed, port)
		}
	}
	slices.Sort(opened)
	slices.Sort(closed)
	return opened, closed
}

// Acquire returns the sender for port, opening it if needed. It may block
// on the driver, so only control-plane callers use it.
func (o *Outputs) Acquire(port string) (SendFunc, error) {
	if port == "" {
		return nil, fmt.Errorf("no output port")
	}
	o.Want(port)

	if s, ok := o.lookup(port); ok {
		return s, nil
	}
	s, err := o.open(port)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if cached, ok := o.senders[port]; ok {
		return cached, nil
	}
	o.senders[port] = s
	return s, nil
}

func (o *Outputs) lookup(port string) (SendFunc, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.senders[port]
	return s, ok
}

// Send delivers msg to the named port. An unopened port fails with
// ErrPortUnavailable without touching the driver; a failed send drops the
// sender so the next Refresh reopens the port.
func (o *Outputs) Send(port string, msg gomidi.Message) error {
	s, ok := o.lookup(port)
	if !ok {
		return fmt.Errorf("%q: %w", port, ErrPortUnavailable)
	}
	if err := s(msg); err != nil {
		o.Forget(port)
		return err
	}
	return nil
}

// Forget drops a cached sender (used when a device disappears and comes back)
func (o *Outputs) Forget(port string) {
	o.mu.Lock()
	delete(o.senders, port)
	o.mu.Unlock()
}

// Open lists the ports that currently have a cached sender, sorted
func (o *Outputs) Open() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.senders))
	for name := range o.senders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Port returns a sink for the named output port and registers the port
// with Refresh
func (o *Outputs) Port(name string) *PortSink {
	o.Want(name)
	ps := &PortSink{Name: name, outputs: o}
	ps.active.Store(true)
	return ps
}

// PortSink sends routed messages to one output port. Channels are 0-based.
type PortSink struct {
	Name    string
	outputs *Outputs
	active  atomic.Bool
}

// SetActive marks whether a sound-generating processor is listening on the
// port. Expression axes skip inactive ports.
func (ps *PortSink) SetActive(on bool) { ps.active.Store(on) }

// HasActiveProcessor reports the flag set through SetActive (default true)
func (ps *PortSink) HasActiveProcessor() bool { return ps.active.Load() }

func (ps *PortSink) SendNoteOn(note, velocity, channel uint8) error {
	return ps.outputs.Send(ps.Name, gomidi.NoteOn(channel, note, velocity))
}

func (ps *PortSink) SendNoteOff(note, channel uint8) error {
	return ps.outputs.Send(ps.Name, gomidi.NoteOff(channel, note))
}

func (ps *PortSink) SendControlChange(cc, value, channel uint8) error {
	return ps.outputs.Send(ps.Name, gomidi.ControlChange(channel, cc, value))
}

// SendPitchBend takes the unsigned 14-bit value (8192 = centre)
func (ps *PortSink) SendPitchBend(value uint16, channel uint8) error {
	rel := int16(int(value&0x3FFF) - 8192)
	return ps.outputs.Send(ps.Name, gomidi.Pitchbend(channel, rel))
}
