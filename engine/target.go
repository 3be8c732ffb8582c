package engine

// Sink receives messages for one routing target. Calls are fire-and-forget:
// a returned error is logged by the engine and otherwise ignored.
type Sink interface {
	SendNoteOn(note, velocity, channel uint8) error
	SendNoteOff(note, channel uint8) error
	SendControlChange(cc, value, channel uint8) error
	SendPitchBend(value uint16, channel uint8) error
}

// Output is a Sink hosting a sound-generating processor
type Output interface {
	Sink
	HasActiveProcessor() bool
}

// SourceMode is the accepted-source sentinel of a target
type SourceMode int

const (
	SourceNone  SourceMode = iota // explicitly disabled, target unreachable
	SourceAny                     // omni
	SourceNamed                   // only the named input
)

// SourceFilter selects which input a target listens to
type SourceFilter struct {
	Mode SourceMode
	Name string
}

// AnySource accepts every input
func AnySource() SourceFilter { return SourceFilter{Mode: SourceAny} }

// NamedSource accepts a single input by display name
func NamedSource(name string) SourceFilter { return SourceFilter{Mode: SourceNamed, Name: name} }

// Accepts reports whether an event from source passes the filter
func (f SourceFilter) Accepts(source string) bool {
	switch f.Mode {
	case SourceAny:
		return true
	case SourceNamed:
		return f.Name == source
	default:
		return false
	}
}

// Target is one addressable output destination
type Target struct {
	ID          string
	Source      SourceFilter
	Channel     uint8 // 1-16, 0 = any
	ScaleFilter bool
	Octave      int
	ChordPad    bool
	SingleNote  bool
	Output      Output
}

// acceptsSource checks only the source predicate (used by pitch bend)
func (t *Target) acceptsSource(source string) bool {
	return t.Output != nil && t.Source.Accepts(source)
}

// accepts checks source and channel; channel is 0-based
func (t *Target) accepts(source string, channel uint8) bool {
	if !t.acceptsSource(source) {
		return false
	}
	return t.Channel == 0 || t.Channel == channel+1
}

// reachable is false for targets disabled through the SourceNone sentinel
func (t *Target) reachable() bool {
	return t.Output != nil && t.Source.Mode != SourceNone
}
