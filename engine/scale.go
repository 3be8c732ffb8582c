package engine

// ScaleType selects an interval set
type ScaleType int

const (
	ScaleChromatic ScaleType = iota
	ScaleMajor
	ScaleMinor
	ScalePentatonic
	ScaleDorian
	ScalePhrygian
	ScaleLydian
	ScaleMixolydian
	ScaleLocrian
	ScaleHarmonicMinor
	ScaleMelodicMinor
	ScaleBlues
	ScaleWholeTone
	ScaleDimHalfWhole
	ScaleDimWholeHalf
	ScaleHungarianMinor
	ScaleDoubleHarmonic
	ScalePhrygianDominant
	ScaleHirajoshi
	ScaleInSen
	ScaleYo
	ScaleBhairavi
)

// Scale definitions - intervals from root (semitones), one octave
var scales = map[ScaleType][]int{
	ScaleChromatic:        {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	ScaleMajor:            {0, 2, 4, 5, 7, 9, 11},
	ScaleMinor:            {0, 2, 3, 5, 7, 8, 10},
	ScalePentatonic:       {0, 2, 4, 7, 9},
	ScaleDorian:           {0, 2, 3, 5, 7, 9, 10},
	ScalePhrygian:         {0, 1, 3, 5, 7, 8, 10},
	ScaleLydian:           {0, 2, 4, 6, 7, 9, 11},
	ScaleMixolydian:       {0, 2, 4, 5, 7, 9, 10},
	ScaleLocrian:          {0, 1, 3, 5, 6, 8, 10},
	ScaleHarmonicMinor:    {0, 2, 3, 5, 7, 8, 11},
	ScaleMelodicMinor:     {0, 2, 3, 5, 7, 9, 11},
	ScaleBlues:            {0, 3, 5, 6, 7, 10},
	ScaleWholeTone:        {0, 2, 4, 6, 8, 10},
	ScaleDimHalfWhole:     {0, 1, 3, 4, 6, 7, 9, 10},
	ScaleDimWholeHalf:     {0, 2, 3, 5, 6, 8, 9, 11},
	ScaleHungarianMinor:   {0, 2, 3, 6, 7, 8, 11},
	ScaleDoubleHarmonic:   {0, 1, 4, 5, 7, 8, 11},
	ScalePhrygianDominant: {0, 1, 4, 5, 7, 8, 10},
	ScaleHirajoshi:        {0, 2, 3, 7, 8},
	ScaleInSen:            {0, 1, 5, 7, 10},
	ScaleYo:               {0, 2, 4, 7, 9},
	ScaleBhairavi:         {0, 1, 3, 5, 7, 8, 10},
}

var scaleNames = []string{
	"Chromatic", "Major", "Minor", "Pentatonic",
	"Dorian", "Phrygian", "Lydian", "Mixolydian", "Locrian",
	"Harm Min", "Mel Min", "Blues", "Whole Tone",
	"Dim H-W", "Dim W-H", "Hungarian", "Dbl Harm",
	"Phryg Dom", "Hirajoshi", "In Sen", "Yo", "Bhairavi",
}

func (s ScaleType) String() string {
	if s < 0 || int(s) >= len(scaleNames) {
		return "Unknown"
	}
	return scaleNames[s]
}

// Intervals returns the scale's semitone offsets from the root.
// Unknown scale types fall back to chromatic.
func (s ScaleType) Intervals() []int {
	if iv, ok := scales[s]; ok {
		return iv
	}
	return scales[ScaleChromatic]
}

// ScaleTypes lists every known scale in enumeration order
func ScaleTypes() []ScaleType {
	out := make([]ScaleType, len(scaleNames))
	for i := range out {
		out[i] = ScaleType(i)
	}
	return out
}

// FilterMode decides what happens to out-of-scale notes
type FilterMode int

const (
	FilterBlock FilterMode = iota // drop the note
	FilterSnap                    // move to the nearest in-scale pitch
)

func (m FilterMode) String() string {
	if m == FilterSnap {
		return "Snap"
	}
	return "Block"
}

// ScaleSettings is the global quantizer configuration
type ScaleSettings struct {
	Enabled bool
	Root    int // pitch class 0-11
	Type    ScaleType
	Mode    FilterMode
}

// InScale reports whether note belongs to the scale
func (s ScaleSettings) InScale(note int) bool {
	pc := ((note-s.Root)%12 + 12) % 12
	for _, iv := range s.Type.Intervals() {
		if iv == pc {
			return true
		}
	}
	return false
}

// Apply quantizes note. Block mode returns nil for out-of-scale notes; snap
// mode always returns exactly one note. Equidistant ties snap downward.
func (s ScaleSettings) Apply(note uint8) []uint8 {
	n := int(note)
	if s.InScale(n) {
		return []uint8{note}
	}
	if s.Mode == FilterBlock {
		return nil
	}
	for d := 1; d < 12; d++ {
		if n-d >= 0 && s.InScale(n-d) {
			return []uint8{uint8(n - d)}
		}
		if n+d <= 127 && s.InScale(n+d) {
			return []uint8{uint8(n + d)}
		}
	}
	return []uint8{note}
}

// DegreeNote resolves a 1-based scale degree to a concrete pitch.
// Octave follows the C4 = 60 convention; degrees past the scale length
// wrap into the next octave.
func DegreeNote(degree, root int, scale ScaleType, octave int) uint8 {
	iv := scale.Intervals()
	if degree < 1 {
		degree = 1
	}
	idx := (degree - 1) % len(iv)
	shift := (degree - 1) / len(iv)
	return clampNote((octave+1)*12 + root + iv[idx] + shift*12)
}

func clampNote(n int) uint8 {
	if n < 0 {
		return 0
	}
	if n > 127 {
		return 127
	}
	return uint8(n)
}

// transpose shifts by whole octaves, clamped to the valid note range
func transpose(note uint8, octaves int) uint8 {
	return clampNote(int(note) + octaves*12)
}
