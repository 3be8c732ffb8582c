package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Southclaws/fault/fmsg"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-midiroute/config"
	"go-midiroute/debug"
	"go-midiroute/engine"
	"go-midiroute/midi"
	"go-midiroute/theme"
	"go-midiroute/widgets"
)

const (
	refreshRate  = time.Second / 30
	logLines     = 8
	problemLines = 3
	keysLo       = 36
	keysHi       = 96
)

var rootNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

type Model struct {
	Engine    *engine.Engine
	DeviceMgr *midi.DeviceManager
	Outputs   *midi.Outputs // nil hides the output list
	Tap       *engine.TapTempo
	TapDest   string
	Config    *config.Config // nil disables saving
	Theme     *theme.Theme

	activity *activity
	keys     keyMap
	help     help.Model
	log      []string
	degree   int // last chord-pad degree pressed
	status   string
	quitting bool
}

type tickMsg time.Time

type DeviceEventMsg midi.DeviceEvent

// ActivityMsg is one line of input activity from the engine listener
type ActivityMsg struct {
	Line    string
	Source  string
	Note    uint8
	IsNote  bool
	Learned bool
}

// activity forwards engine notifications into the bubbletea loop.
// Sends never block the ingestion path.
type activity struct {
	ch chan ActivityMsg
}

func newActivity() *activity {
	return &activity{ch: make(chan ActivityMsg, 64)}
}

func (a *activity) push(msg ActivityMsg) {
	select {
	case a.ch <- msg:
	default:
		debug.LogEvery(100, "tui", "activity dropped")
	}
}

func (a *activity) NoteTriggered(note, channel uint8, source string) {
	a.push(ActivityMsg{
		Line:   fmt.Sprintf("%-16s ch%-2d note %s", sourceLabel(source), channel+1, widgets.NoteName(note)),
		Source: source,
		Note:   note,
		IsNote: true,
	})
}

func (a *activity) ControlMoved(cc, value, channel uint8, source string) {
	a.push(ActivityMsg{Line: fmt.Sprintf("%-16s ch%-2d cc%d=%d", sourceLabel(source), channel+1, cc, value)})
}

func sourceLabel(source string) string {
	if source == "" {
		return "(unknown)"
	}
	return source
}

func NewModel(e *engine.Engine, deviceMgr *midi.DeviceManager, tap *engine.TapTempo, cfg *config.Config, th *theme.Theme) Model {
	m := Model{
		Engine:    e,
		DeviceMgr: deviceMgr,
		Tap:       tap,
		Config:    cfg,
		Theme:     th,
		activity:  newActivity(),
		keys:      keys,
		help:      help.New(),
	}
	if cfg != nil {
		m.TapDest = cfg.TapTempo.Dest
	}
	e.SetListener(m.activity)
	return m
}

func deviceLine(ev DeviceEventMsg) string {
	if ev.Output {
		return fmt.Sprintf("output %s %s", ev.Name, ev.Type)
	}
	return fmt.Sprintf("%s %s", ev.Name, ev.Type)
}

func tick() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func ListenForActivity(a *activity) tea.Cmd {
	return func() tea.Msg {
		return <-a.ch
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tick(), ListenForActivity(m.activity)}
	if m.DeviceMgr != nil {
		cmds = append(cmds, ListenForDevices(m.DeviceMgr))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tickMsg:
		return m, tick()

	case ActivityMsg:
		if msg.IsNote {
			m.trackDegree(msg)
		}
		if msg.Learned {
			m.status = msg.Line
		}
		m.addLog(msg.Line)
		return m, ListenForActivity(m.activity)

	case DeviceEventMsg:
		m.addLog(deviceLine(msg))
		return m, ListenForDevices(m.DeviceMgr)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := m.Engine
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		e.SetListener(nil)
		return m, tea.Quit

	case key.Matches(msg, m.keys.Panic):
		e.AllNotesOff()
		m.status = "all notes off"

	case key.Matches(msg, m.keys.Tap):
		if m.Tap == nil || m.TapDest == "" {
			m.status = "no tap tempo destination"
			break
		}
		m.Tap.Send(0, m.TapDest)
		bpm, _ := e.Transport()
		m.status = fmt.Sprintf("tap %.0f bpm -> %s", bpm, m.TapDest)

	case key.Matches(msg, m.keys.TempoUp), key.Matches(msg, m.keys.TempoDown):
		bpm, playing := e.Transport()
		if key.Matches(msg, m.keys.TempoUp) {
			bpm = min(bpm+1, 300)
		} else {
			bpm = max(bpm-1, 20)
		}
		e.SetTransport(bpm, playing)

	case key.Matches(msg, m.keys.ScaleOn):
		s := e.Config().Scale
		s.Enabled = !s.Enabled
		e.SetScale(s)

	case key.Matches(msg, m.keys.ScaleMode):
		s := e.Config().Scale
		if s.Mode == engine.FilterBlock {
			s.Mode = engine.FilterSnap
		} else {
			s.Mode = engine.FilterBlock
		}
		e.SetScale(s)

	case key.Matches(msg, m.keys.ScaleNext), key.Matches(msg, m.keys.ScalePrev):
		s := e.Config().Scale
		n := len(engine.ScaleTypes())
		step := 1
		if key.Matches(msg, m.keys.ScalePrev) {
			step = n - 1
		}
		s.Type = engine.ScaleType((int(s.Type) + step) % n)
		e.SetScale(s)

	case key.Matches(msg, m.keys.RootUp), key.Matches(msg, m.keys.RootDown):
		s := e.Config().Scale
		step := 1
		if key.Matches(msg, m.keys.RootDown) {
			step = 11
		}
		s.Root = (s.Root + step) % 12
		e.SetScale(s)

	case key.Matches(msg, m.keys.LearnNote):
		a := m.activity
		e.ArmNoteLearn(func(note, channel uint8, source string) {
			a.push(ActivityMsg{
				Line:    fmt.Sprintf("learned note %s ch%d from %s", widgets.NoteName(note), channel, sourceLabel(source)),
				Learned: true,
			})
		})
		m.status = "press a note..."

	case key.Matches(msg, m.keys.LearnCC):
		a := m.activity
		e.ArmCCLearn(func(cc, channel uint8, source string) {
			a.push(ActivityMsg{
				Line:    fmt.Sprintf("learned cc%d ch%d from %s", cc, channel, sourceLabel(source)),
				Learned: true,
			})
		})
		m.status = "move a control..."

	case key.Matches(msg, m.keys.Cancel):
		e.CancelLearn()
		m.status = ""

	case key.Matches(msg, m.keys.Save):
		m.status = m.save()

	case key.Matches(msg, m.keys.ToggleHelp):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// save copies the live quantizer and tempo back into the settings file
func (m Model) save() string {
	if m.Config == nil {
		return "no settings file"
	}
	s := m.Engine.Config().Scale
	m.Config.Scale = config.ScaleConfig{
		Enabled: s.Enabled,
		Root:    s.Root,
		Type:    s.Type.String(),
		Mode:    strings.ToLower(s.Mode.String()),
	}
	m.Config.UI.LastBPM, _ = m.Engine.Transport()
	if err := m.Config.Save(); err != nil {
		debug.Log("tui", "save failed: %v", err)
		return "save failed: " + fmsg.GetIssue(err)
	}
	return "settings saved"
}

func (m *Model) trackDegree(msg ActivityMsg) {
	c := m.Engine.Config()
	if c.ChordPadSource == "" || msg.Source != c.ChordPadSource {
		return
	}
	if d, ok := c.Chord.Primary.Buttons[msg.Note]; ok {
		m.degree = d
	}
}

func (m *Model) addLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > logLines {
		m.log = m.log[len(m.log)-logLines:]
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	c := m.Engine.Config()
	th := m.Theme
	headerStyle := lipgloss.NewStyle().Foreground(th.Accent()).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(th.FG())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	statusStyle := lipgloss.NewStyle().Foreground(th.Warning())

	bpm, playing := m.Engine.Transport()
	playState := "STOP"
	if playing {
		playState = "PLAY"
	}
	scaleState := "off"
	if c.Scale.Enabled {
		scaleState = "on"
	}
	learnState := ""
	if note, cc := m.Engine.Learning(); note || cc {
		learnState = "  " + string(th.Symbols.Learn) + " LEARN"
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(headerStyle.Render(fmt.Sprintf("go-midiroute  %s  %3.0fbpm", playState, bpm)))
	out.WriteString(statusStyle.Render(learnState))
	out.WriteString("\n")
	out.WriteString(labelStyle.Render(fmt.Sprintf("scale %s %s (%s) %s",
		rootNames[c.Scale.Root%12], c.Scale.Type, strings.ToLower(c.Scale.Mode.String()), scaleState)))
	out.WriteString("\n\n")

	if m.DeviceMgr != nil {
		inputs := m.DeviceMgr.Inputs()
		if len(inputs) == 0 {
			out.WriteString(dimStyle.Render("no inputs"))
		} else {
			out.WriteString(dimStyle.Render("inputs: " + strings.Join(inputs, ", ")))
		}
		out.WriteString("\n")
	}
	if m.Outputs != nil {
		if open := m.Outputs.Open(); len(open) == 0 {
			out.WriteString(dimStyle.Render("no outputs"))
		} else {
			out.WriteString(dimStyle.Render("outputs: " + strings.Join(open, ", ")))
		}
		out.WriteString("\n")
	}
	out.WriteString("\n")

	var inScale func(int) bool
	if c.Scale.Enabled {
		inScale = c.Scale.InScale
	}
	held := m.Engine.Snapshot()
	for _, t := range c.Targets {
		notes := map[uint8]bool{}
		for _, h := range held[t.ID] {
			notes[h.Note] = true
		}
		filter := inScale
		if !t.ScaleFilter {
			filter = nil
		}
		out.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", t.ID)))
		out.WriteString(" ")
		out.WriteString(widgets.RenderKeys(th, keysLo, keysHi, notes, filter))
		out.WriteString(dimStyle.Render(fmt.Sprintf(" %s %d held", targetSource(t), len(held[t.ID]))))
		out.WriteString("\n")
	}

	if c.ChordPadSource != "" {
		out.WriteString("\n")
		out.WriteString(labelStyle.Render("chord pad  "))
		out.WriteString(widgets.RenderDegrees(th, map[int]bool{m.degree: true}))
		out.WriteString("\n")
	}

	for i, a := range c.Axes {
		if !a.Enabled || a.Ramp <= 0 {
			continue
		}
		id := a.ID
		if id == "" {
			id = fmt.Sprintf("axis-%d", i)
		}
		out.WriteString(labelStyle.Render(fmt.Sprintf("%-10s ", id)))
		out.WriteString(widgets.RenderMeter(th, m.Engine.RampValue(id), 24))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	for _, line := range m.log {
		out.WriteString(dimStyle.Render(line))
		out.WriteString("\n")
	}

	for _, line := range debug.Recent(problemLines, "sink", "tap", "pulse") {
		out.WriteString(statusStyle.Render(line))
		out.WriteString("\n")
	}

	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(statusStyle.Render(m.status))
	}
	out.WriteString("\n")
	out.WriteString(m.help.View(m.keys))

	return out.String()
}

func targetSource(t *engine.Target) string {
	switch t.Source.Mode {
	case engine.SourceAny:
		return "omni"
	case engine.SourceNamed:
		return "<" + t.Source.Name + ">"
	default:
		return "disabled"
	}
}
