package midi

import (
	"context"
	"fmt"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-midiroute/debug"
)

// Destination sends raw and timed messages to output ports by name
type Destination struct {
	outputs *Outputs
	ctx     context.Context
}

// NewDestination creates a destination on top of the shared port cache.
// Pending timed sends are abandoned when ctx is done.
func NewDestination(ctx context.Context, outputs *Outputs) *Destination {
	return &Destination{outputs: outputs, ctx: ctx}
}

// SendRaw sends one message immediately, opening dest if needed
func (d *Destination) SendRaw(msg []byte, dest string) error {
	if len(msg) == 0 {
		return fmt.Errorf("empty message")
	}
	if _, err := d.outputs.Acquire(dest); err != nil {
		return err
	}
	return d.outputs.Send(dest, gomidi.Message(append([]byte(nil), msg...)))
}

// SendTimedPulses sends msg once at each absolute time in at. The port is
// resolved up front so an unknown destination fails immediately; the sends
// themselves happen on a background goroutine.
func (d *Destination) SendTimedPulses(msg []byte, at []time.Time, dest string) error {
	if len(msg) == 0 {
		return fmt.Errorf("empty message")
	}
	send, err := d.outputs.Acquire(dest)
	if err != nil {
		return err
	}
	m := gomidi.Message(append([]byte(nil), msg...))
	times := append([]time.Time(nil), at...)

	go func() {
		for i, t := range times {
			if wait := time.Until(t); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-d.ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			if err := send(m); err != nil {
				debug.Log("pulse", "%s pulse %d/%d: %v", dest, i+1, len(times), err)
				d.outputs.Forget(dest)
				return
			}
		}
	}()
	return nil
}
