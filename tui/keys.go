package tui

import "github.com/charmbracelet/bubbles/key"

func Key(help string, keyboardKey ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keyboardKey...), key.WithHelp(keyboardKey[0], help))
}

type keyMap struct {
	Quit       key.Binding
	Panic      key.Binding
	Tap        key.Binding
	TempoUp    key.Binding
	TempoDown  key.Binding
	ScaleOn    key.Binding
	ScaleMode  key.Binding
	ScaleNext  key.Binding
	ScalePrev  key.Binding
	RootUp     key.Binding
	RootDown   key.Binding
	LearnNote  key.Binding
	LearnCC    key.Binding
	Cancel     key.Binding
	Save       key.Binding
	ToggleHelp key.Binding
}

var keys = keyMap{
	Quit:       Key("quit", "q", "ctrl+c"),
	Panic:      Key("all notes off", "x", "!"),
	Tap:        Key("tap tempo", "t"),
	TempoUp:    Key("tempo +1", "+", "="),
	TempoDown:  Key("tempo -1", "-", "_"),
	ScaleOn:    Key("scale on/off", "s"),
	ScaleMode:  Key("block/snap", "m"),
	ScaleNext:  Key("next scale", "]"),
	ScalePrev:  Key("prev scale", "["),
	RootUp:     Key("root +1", "r"),
	RootDown:   Key("root -1", "R"),
	LearnNote:  Key("learn note", "n"),
	LearnCC:    Key("learn cc", "c"),
	Cancel:     Key("cancel learn", "esc"),
	Save:       Key("save settings", "w"),
	ToggleHelp: Key("help", "?"),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Panic, k.Tap, k.ScaleOn, k.LearnNote, k.LearnCC, k.ToggleHelp, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Panic, k.Tap, k.TempoUp, k.TempoDown},
		{k.ScaleOn, k.ScaleMode, k.ScaleNext, k.ScalePrev, k.RootUp, k.RootDown},
		{k.LearnNote, k.LearnCC, k.Cancel},
		{k.Save, k.ToggleHelp, k.Quit},
	}
}
