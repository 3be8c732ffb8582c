package midi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-midiroute/debug"
)

// DeviceEvent is emitted when a port appears or disappears
type DeviceEvent struct {
	Type   DeviceEventType
	Name   string
	Output bool
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

func (t DeviceEventType) String() string {
	if t == DeviceConnected {
		return "connected"
	}
	return "disconnected"
}

// DefaultExclude lists port name fragments that are never opened as inputs
var DefaultExclude = []string{"midi through", "through port", "dummy"}

// errScanTimeout is returned when the driver does not answer a port query
var errScanTimeout = errors.New("port scan timed out")

// DeviceManager handles hot-plug detection of MIDI inputs. Every input that
// is not excluded is opened and its events are passed to the handler.
type DeviceManager struct {
	inputs   map[string]io.Closer
	mu       sync.RWMutex
	events   chan DeviceEvent
	pollRate time.Duration
	handler  Handler
	exclude  []string
	outputs  *Outputs

	listPorts    func() ([]string, error)
	listOutPorts func() ([]string, error)
	open         func(name string, h Handler) (io.Closer, error)
}

// NewDeviceManager creates a device manager that feeds h
func NewDeviceManager(h Handler) *DeviceManager {
	return &DeviceManager{
		inputs:    make(map[string]io.Closer),
		events:    make(chan DeviceEvent, 16),
		pollRate:  time.Second,
		handler:   h,
		exclude:   DefaultExclude,
		listPorts:    listInPorts,
		listOutPorts: ListOutPorts,
		open:         openInPort,
	}
}

// SetOutputs makes every scan reconcile o with the output ports the driver
// lists, so unplugged ports are dropped and replugged ones reopened
func (dm *DeviceManager) SetOutputs(o *Outputs) {
	dm.mu.Lock()
	dm.outputs = o
	dm.mu.Unlock()
}

// SetExclude replaces the excluded name fragments (case-insensitive).
// An empty list restores DefaultExclude.
func (dm *DeviceManager) SetExclude(patterns []string) {
	if len(patterns) == 0 {
		patterns = DefaultExclude
	}
	lower := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			lower = append(lower, p)
		}
	}
	dm.mu.Lock()
	dm.exclude = lower
	dm.mu.Unlock()
}

// Events returns a channel of connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Inputs returns the names of the open inputs, sorted
func (dm *DeviceManager) Inputs() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	names := make([]string, 0, len(dm.inputs))
	for name := range dm.inputs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

func (dm *DeviceManager) excluded(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range dm.exclude {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func (dm *DeviceManager) scan() {
	names, err := dm.listPorts()
	if err != nil {
		// CoreMIDI can hang - skip this scan
		debug.Log("devices", "scan skipped: %v", err)
		return
	}

	seen := make(map[string]bool)
	for _, name := range names {
		dm.mu.RLock()
		skip := dm.excluded(name)
		_, exists := dm.inputs[name]
		dm.mu.RUnlock()
		if skip {
			continue
		}
		seen[name] = true
		if exists {
			continue
		}

		in, err := dm.open(name, dm.handler)
		if err != nil {
			debug.Log("devices", "open %q: %v", name, err)
			continue
		}

		dm.mu.Lock()
		dm.inputs[name] = in
		dm.mu.Unlock()
		debug.Log("devices", "input connected: %s", name)
		dm.emit(DeviceEvent{Type: DeviceConnected, Name: name})
	}

	// Check for disconnects
	dm.mu.Lock()
	var gone []string
	for name, in := range dm.inputs {
		if !seen[name] {
			in.Close()
			delete(dm.inputs, name)
			gone = append(gone, name)
		}
	}
	dm.mu.Unlock()

	for _, name := range gone {
		debug.Log("devices", "input disconnected: %s", name)
		dm.emit(DeviceEvent{Type: DeviceDisconnected, Name: name})
	}

	dm.scanOutputs()
}

func (dm *DeviceManager) scanOutputs() {
	dm.mu.RLock()
	o := dm.outputs
	dm.mu.RUnlock()
	if o == nil {
		return
	}

	names, err := dm.listOutPorts()
	if err != nil {
		debug.Log("devices", "output scan skipped: %v", err)
		return
	}
	opened, closed := o.Refresh(names)
	for _, name := range opened {
		debug.Log("devices", "output connected: %s", name)
		dm.emit(DeviceEvent{Type: DeviceConnected, Name: name, Output: true})
	}
	for _, name := range closed {
		debug.Log("devices", "output disconnected: %s", name)
		dm.emit(DeviceEvent{Type: DeviceDisconnected, Name: name, Output: true})
	}
}

// emit never blocks the poller; a full channel drops the event
func (dm *DeviceManager) emit(ev DeviceEvent) {
	select {
	case dm.events <- ev:
	default:
		debug.Log("devices", "event dropped: %s %s", ev.Name, ev.Type)
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, in := range dm.inputs {
		in.Close()
	}
	dm.inputs = make(map[string]io.Closer)
}

// listInPorts queries input port names with a timeout (CoreMIDI can hang)
func listInPorts() ([]string, error) {
	return withTimeout(InPorts)
}

// ListOutPorts queries output port names with a timeout
func ListOutPorts() ([]string, error) {
	return withTimeout(OutPorts)
}

func withTimeout(query func() []string) ([]string, error) {
	ch := make(chan []string, 1)
	go func() {
		ch <- query()
	}()

	select {
	case names := <-ch:
		return names, nil
	case <-time.After(3 * time.Second):
		return nil, errScanTimeout
	}
}

func openInPort(name string, h Handler) (io.Closer, error) {
	for _, p := range gomidi.GetInPorts() {
		if p.String() == name {
			return OpenInput(p, h)
		}
	}
	return nil, fmt.Errorf("input %q not found", name)
}

// InPorts lists the names of every input port the driver reports
func InPorts() []string {
	var names []string
	for _, p := range gomidi.GetInPorts() {
		names = append(names, p.String())
	}
	return names
}

// OutPorts lists the names of every output port the driver reports
func OutPorts() []string {
	var names []string
	for _, p := range gomidi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}
