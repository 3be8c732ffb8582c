package midi

import (
	"fmt"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Handler receives every channel-voice event from an input
type Handler func(Event)

// Input is one opened input port
type Input struct {
	name     string
	stopFunc func()
}

// OpenInput starts listening on port and passes decoded events to h,
// tagged with the port name as source
func OpenInput(port drivers.In, h Handler) (*Input, error) {
	in := &Input{name: port.String()}

	stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, timestampms int32) {
		if ev, ok := FromMessage(msg, in.name, time.Now()); ok {
			h(ev)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("open input %q: %w", in.name, err)
	}
	in.stopFunc = stop
	return in, nil
}

func (in *Input) Name() string {
	return in.name
}

func (in *Input) Close() error {
	if in.stopFunc != nil {
		in.stopFunc()
	}
	return nil
}
