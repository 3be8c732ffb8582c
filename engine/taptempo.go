package engine

import (
	"time"
)

// TapPulses is the number of pulses sent per tap-tempo request
const TapPulses = 8

// DefaultTapCC is the controller pulsed for tap tempo
const DefaultTapCC uint8 = 102

// tapLead delays the first pulse so the whole batch is in the future
const tapLead = 10 * time.Millisecond

// Destination is an external MIDI destination addressed by name
type Destination interface {
	SendRaw(msg []byte, dest string) error
	SendTimedPulses(msg []byte, at []time.Time, dest string) error
}

// TapTempo sends batched timed pulses so a downstream device can detect the
// tempo. Delivery is best-effort and independent of routing state.
type TapTempo struct {
	Dest    Destination
	CC      uint8
	Channel uint8 // 0-based

	engine *Engine
	now    func() time.Time
}

// NewTapTempo creates a scheduler that falls back to the engine's transport
// tempo when no BPM is given
func NewTapTempo(e *Engine, dest Destination) *TapTempo {
	return &TapTempo{
		Dest:   dest,
		CC:     DefaultTapCC,
		engine: e,
		now:    time.Now,
	}
}

// Schedule returns the pulse times for bpm starting at t0
func Schedule(bpm float64, t0 time.Time) []time.Time {
	if bpm <= 0 {
		return nil
	}
	interval := time.Duration(float64(time.Second) * 60 / bpm)
	at := make([]time.Time, TapPulses)
	for i := range at {
		at[i] = t0.Add(time.Duration(i) * interval)
	}
	return at
}

// Send submits one batch of pulses at bpm (<= 0 uses the transport tempo).
// Failures are logged and dropped.
func (tt *TapTempo) Send(bpm float64, dest string) {
	if bpm <= 0 {
		bpm, _ = tt.engine.Transport()
	}
	at := Schedule(bpm, tt.now().Add(tapLead))
	if len(at) == 0 || tt.Dest == nil {
		return
	}
	msg := []byte{0xB0 | tt.Channel&0x0F, tt.CC & 0x7F, 127}
	if err := tt.Dest.SendTimedPulses(msg, at, dest); err != nil {
		tt.engine.log("tap", "tap tempo %.1f bpm to %q failed: %v", bpm, dest, err)
		return
	}
	tt.engine.log("tap", "tap tempo %.1f bpm to %q (%d pulses)", bpm, dest, len(at))
}
