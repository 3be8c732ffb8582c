package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xlab/closer"

	"go-midiroute/engine"
	"go-midiroute/midi"
	"go-midiroute/widgets"
)

func main() {
	defer closer.Close()

	if len(os.Args) < 2 {
		usage()
		return
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "list":
		listPorts()
	case "monitor":
		monitor()
	case "poll":
		pollDevices()
	case "note":
		sendNote(args)
	case "tap":
		tap(args)
	case "panic":
		panicPort(args)
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                 - List all MIDI ports")
	fmt.Println("  monitor              - Print events from every input")
	fmt.Println("  poll                 - Poll for device changes")
	fmt.Println("  note <port> <note>   - Play one note for half a second")
	fmt.Println("  tap <port> [bpm]     - Send one batch of tap tempo pulses")
	fmt.Println("  panic <port>         - All notes off on every channel")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins, outs []string
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: midi.InPorts(), outs: midi.OutPorts()}
	}()

	select {
	case r := <-ch:
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p)
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p)
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
	}
}

func describe(ev midi.Event) string {
	switch engine.Classify(ev) {
	case engine.KindNoteOn:
		return fmt.Sprintf("note on  %-4s vel %d", widgets.NoteName(ev.Data1), ev.Data2)
	case engine.KindNoteOff:
		return fmt.Sprintf("note off %-4s", widgets.NoteName(ev.Data1))
	case engine.KindControlChange:
		return fmt.Sprintf("cc %d = %d", ev.Data1, ev.Data2)
	case engine.KindPitchBend:
		return fmt.Sprintf("bend %d", ev.Bend())
	default:
		return fmt.Sprintf("status %#x %d %d (ignored)", ev.Type, ev.Data1, ev.Data2)
	}
}

func monitor() {
	fmt.Println("Listening on all inputs. Ctrl+C to exit.")

	dm := midi.NewDeviceManager(func(ev midi.Event) {
		fmt.Printf("[%s] %-24s ch%-2d %s\n", ev.Time.Format("15:04:05.000"), ev.Source, ev.Channel+1, describe(ev))
	})
	ctx, cancel := context.WithCancel(context.Background())
	closer.Bind(cancel)

	go func() {
		for ev := range dm.Events() {
			fmt.Printf("-- %s %s\n", ev.Name, ev.Type)
		}
	}()
	go dm.Run(ctx)

	closer.Hold()
}

func pollDevices() {
	fmt.Println("Polling for device changes every 2 seconds...")
	fmt.Println("Connect/disconnect a device to test. Ctrl+C to exit.")

	lastIn := ""
	lastOut := ""

	for {
		inNames := midi.InPorts()
		outNames := midi.OutPorts()

		currentIn := strings.Join(inNames, ",")
		currentOut := strings.Join(outNames, ",")

		if currentIn != lastIn || currentOut != lastOut {
			fmt.Printf("\n[%s] Device change detected!\n", time.Now().Format("15:04:05"))
			fmt.Printf("  Inputs: %v\n", inNames)
			fmt.Printf("  Outputs: %v\n", outNames)

			lastIn = currentIn
			lastOut = currentOut
		}

		time.Sleep(2 * time.Second)
	}
}

func sendNote(args []string) {
	if len(args) < 2 {
		usage()
		return
	}
	note, err := strconv.Atoi(args[1])
	if err != nil || note < 0 || note > 127 {
		closer.Fatalln("bad note:", args[1])
	}

	sink := openPort(args[0])
	if err := sink.SendNoteOn(uint8(note), 100, 0); err != nil {
		closer.Fatalln("Error:", err)
	}
	fmt.Printf("%s on %s\n", widgets.NoteName(uint8(note)), args[0])
	time.Sleep(500 * time.Millisecond)
	sink.SendNoteOff(uint8(note), 0)
}

// openPort opens an output up front; sinks never open ports themselves
func openPort(name string) *midi.PortSink {
	outputs := midi.NewOutputs()
	if _, err := outputs.Acquire(name); err != nil {
		closer.Fatalln("Error:", err)
	}
	return outputs.Port(name)
}

func tap(args []string) {
	if len(args) < 1 {
		usage()
		return
	}
	bpm := 120.0
	if len(args) > 1 {
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil || v <= 0 {
			closer.Fatalln("bad bpm:", args[1])
		}
		bpm = v
	}

	e := engine.New()
	e.SetLogger(func(category, format string, args ...any) {
		fmt.Printf("%s: %s\n", category, fmt.Sprintf(format, args...))
	})
	e.SetTransport(bpm, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tt := engine.NewTapTempo(e, midi.NewDestination(ctx, midi.NewOutputs()))
	tt.Send(0, args[0])

	// wait for the last pulse to go out
	time.Sleep(time.Duration(float64(engine.TapPulses)*60/bpm*float64(time.Second)) + 50*time.Millisecond)
}

func panicPort(args []string) {
	if len(args) < 1 {
		usage()
		return
	}
	e := engine.New()
	e.SetLogger(func(category, format string, args ...any) {
		fmt.Printf("%s: %s\n", category, fmt.Sprintf(format, args...))
	})
	e.AddTarget(engine.Target{ID: args[0], Source: engine.AnySource(), Output: openPort(args[0])})
	e.AllNotesOff()
}
