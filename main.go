package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/Southclaws/fault/fmsg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/xlab/closer"

	"go-midiroute/config"
	"go-midiroute/debug"
	"go-midiroute/engine"
	"go-midiroute/midi"
	"go-midiroute/theme"
	"go-midiroute/tui"
)

func main() {
	defer closer.Close()

	configPath := flag.String("config", "", "settings file (default ~/.config/go-midiroute/config.json)")
	verbose := flag.Bool("debug", false, "write ~/.config/go-midiroute/debug.log")
	flag.Parse()

	if *verbose {
		if err := debug.Enable(); err != nil {
			fmt.Printf("debug log: %v\n", err)
		}
		closer.Bind(debug.Disable)
	}

	// Load settings
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		closer.Fatalln("Error:", fmsg.GetIssue(err), err)
	}

	// Create routing engine
	outputs := midi.NewOutputs()
	e := engine.New()
	e.SetLogger(debug.Log)
	if err := cfg.Apply(e, func(port string, active bool) engine.Output {
		sink := outputs.Port(port)
		sink.SetActive(active)
		return sink
	}); err != nil {
		closer.Fatalln("Error:", fmsg.GetIssue(err))
	}
	if names, err := midi.ListOutPorts(); err == nil {
		outputs.Refresh(names)
	} else {
		debug.Log("outputs", "list: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	closer.Bind(func() {
		e.AllNotesOff()
		cancel()
	})

	tap := engine.NewTapTempo(e, midi.NewDestination(ctx, outputs))
	cfg.ApplyTapTempo(tap)

	// Create MIDI device manager (handles hot-plug)
	deviceMgr := midi.NewDeviceManager(e.Dispatch)
	deviceMgr.SetExclude(cfg.Inputs.Exclude)
	deviceMgr.SetOutputs(outputs)
	go deviceMgr.Run(ctx)
	go e.RunRamps(ctx)

	// Load theme
	palette, err := theme.Load(cfg.UI.Palette)
	if err != nil {
		debug.Log("theme", "palette %q: %v", cfg.UI.Palette, err)
	}
	th := theme.New(palette)

	fmt.Println("go-midiroute")
	fmt.Println("Connect MIDI devices any time - they'll be detected automatically")
	fmt.Println("")

	// Create and run TUI
	m := tui.NewModel(e, deviceMgr, tap, cfg, th)
	m.Outputs = outputs
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		closer.Fatalln("Error:", err)
	}
}
