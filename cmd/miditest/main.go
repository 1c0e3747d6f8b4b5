package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"gridseq/midi"
	"gridseq/sequencer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		listPorts()
	case "detect":
		detectControllers()
	case "leds":
		err = testLEDs()
	case "note":
		err = playNote(os.Args[2:])
	case "panic":
		err = panicPort(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                        - List all MIDI ports")
	fmt.Println("  detect                      - Find grid controllers")
	fmt.Println("  leds                        - Test Launchpad LED control")
	fmt.Println("  note <port> [note] [ch]     - Play one note through a synth voice")
	fmt.Println("  panic <port> [ch]           - Send all notes off")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
	}
}

func detectControllers() {
	fmt.Println("Looking for grid controllers...")

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	dm := midi.NewDeviceManager()
	go dm.Run(ctx)

	found := 0
	for ev := range dm.Events() {
		if ev.Type == midi.DeviceConnected {
			fmt.Printf("Found: %s\n", ev.ID)
			found++
		}
	}
	if found == 0 {
		fmt.Println("\nNo controller found")
	}
}

func testLEDs() error {
	fmt.Println("Testing LED control...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dm := midi.NewDeviceManager()
	go dm.Run(ctx)

	var lp midi.Controller
	select {
	case ev := <-dm.Events():
		lp = ev.Controller
	case <-time.After(4 * time.Second):
		return fmt.Errorf("no Launchpad found")
	}
	fmt.Printf("Using: %s\n", lp.ID())

	fmt.Println("Lighting up diagonal (green)...")
	for i := range midi.GridSize {
		err := lp.SetLEDBatch([]midi.LEDUpdate{{Row: i, Col: i, Color: [3]uint8{0, 255, 0}}})
		if err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("Press Enter to clear...")
	fmt.Scanln()
	return nil
}

func voiceFor(args []string, chArg int) (*midi.Synths, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("missing port name")
	}
	channel := 1
	if len(args) > chArg {
		c, err := strconv.Atoi(args[chArg])
		if err != nil {
			return nil, fmt.Errorf("channel: %w", err)
		}
		channel = c
	}
	send, err := midi.NewOutputs().Sender(args[0])
	if err != nil {
		return nil, err
	}
	return midi.NewSynths(send, channel)
}

func playNote(args []string) error {
	synths, err := voiceFor(args, 2)
	if err != nil {
		return err
	}
	note := "C4"
	if len(args) > 1 {
		note = strings.TrimSpace(args[1])
	}
	voice, err := synths.NewSynth(sequencer.Settings{})
	if err != nil {
		return err
	}

	fmt.Printf("Playing %s on %s\n", note, args[0])
	voice.TriggerAttackRelease(sequencer.Note(note), 500*time.Millisecond, time.Now().Add(50*time.Millisecond))
	time.Sleep(700 * time.Millisecond)
	voice.Dispose()
	return nil
}

func panicPort(args []string) error {
	synths, err := voiceFor(args, 1)
	if err != nil {
		return err
	}
	return synths.Panic()
}
