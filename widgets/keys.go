package widgets

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-midiroute/theme"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName formats a MIDI note with C4 = 60
func NoteName(n uint8) string {
	return fmt.Sprintf("%s%d", noteNames[n%12], int(n)/12-1)
}

// RenderKeys renders one cell per semitone from lo to hi: held notes, idle
// in-scale notes, and blocked notes each get their own symbol. inScale may
// be nil when no quantizer is active.
func RenderKeys(th *theme.Theme, lo, hi uint8, held map[uint8]bool, inScale func(int) bool) string {
	heldStyle := lipgloss.NewStyle().Foreground(th.Active())
	idleStyle := lipgloss.NewStyle().Foreground(th.FG())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())

	var out strings.Builder
	for n := int(lo); n <= int(hi); n++ {
		switch {
		case held[uint8(n)]:
			out.WriteString(heldStyle.Render(string(th.Symbols.Held)))
		case inScale == nil || inScale(n):
			out.WriteString(idleStyle.Render(string(th.Symbols.Idle)))
		default:
			out.WriteString(dimStyle.Render(string(th.Symbols.Blocked)))
		}
	}
	return out.String()
}

// RenderMeter renders a 0-127 value as a bar of width cells. NaN renders an
// empty track.
func RenderMeter(th *theme.Theme, value float64, width int) string {
	filled, norm := 0, 0.0
	if !math.IsNaN(value) {
		norm = math.Max(0, math.Min(127, value)) / 127
		filled = int(math.Round(norm * float64(width)))
	}
	fill := lipgloss.NewStyle().Foreground(th.Color(norm))
	track := lipgloss.NewStyle().Foreground(th.Muted())
	return fill.Render(strings.Repeat(string(th.Symbols.Meter), filled)) +
		track.Render(strings.Repeat(string(th.Symbols.Track), width-filled))
}

// RenderPad renders a single colored pad
func RenderPad(color theme.RGB, symbol rune) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Hex(color)))
	return style.Render(string(symbol))
}

// RenderDegrees renders the seven chord-pad degrees, lighting the held ones
func RenderDegrees(th *theme.Theme, held map[int]bool) string {
	parts := make([]string, 0, 7)
	for d := 1; d <= 7; d++ {
		sym := th.Symbols.Idle
		c := th.Palette.Lookup(theme.RoleMuted)
		if held[d] {
			sym = th.Symbols.Held
			c = th.Palette.Lookup(float64(d) / 7)
		}
		parts = append(parts, fmt.Sprintf("%d%s", d, RenderPad(c, sym)))
	}
	return strings.Join(parts, " ")
}

// RenderLegendItem renders a single legend item: "■ Name - description"
func RenderLegendItem(color theme.RGB, symbol rune, name, desc string) string {
	return fmt.Sprintf("  %s %s - %s", RenderPad(color, symbol), name, desc)
}
