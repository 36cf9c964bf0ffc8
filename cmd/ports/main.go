package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-cue/clock"
	"go-cue/config"
	"go-cue/engine"
	"go-cue/midi"
	"go-cue/song"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = listPorts()
	case "probe":
		if len(os.Args) < 3 {
			usage()
			return
		}
		err = probe(os.Args[2])
	case "watch":
		if len(os.Args) < 3 {
			usage()
			return
		}
		watch(os.Args[2])
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("MIDI port utility")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list          - List MIDI output ports")
	fmt.Println("  probe <port>  - Send one cue of each kind to a port")
	fmt.Println("  watch <port>  - Report when a port comes and goes")
}

func listPorts() error {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	names, err := midi.OutPortNames()
	if err != nil {
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return err
	}
	for i, name := range names {
		fmt.Printf("  %d: %s\n", i, name)
	}
	return nil
}

// probe sends a hit, a positional cue and an intensity step for every
// configured instrument
func probe(port string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ports := midi.NewPorts()
	defer ports.Close()
	send, err := ports.Sender(port)
	if err != nil {
		return err
	}
	fmt.Printf("Using output: %s\n", port)

	out := midi.NewOutput(cfg.MIDI, send, clock.Real())
	for id := range cfg.MIDI.Instruments {
		for _, ev := range []engine.AudioEvent{
			{InstrumentID: id, Kind: song.Hit},
			{InstrumentID: id, Kind: song.Positional, Parameter: 64},
			{InstrumentID: id, Kind: song.IntensityIncrease},
		} {
			fmt.Printf("  %s\n", ev)
			if err := out.Handle(ev); err != nil {
				return err
			}
			time.Sleep(150 * time.Millisecond)
		}
	}
	out.Reset()

	sent, failed, _ := out.Stats()
	fmt.Printf("Done! %d messages sent, %d failed\n", sent, failed)
	return nil
}

func watch(port string) {
	fmt.Printf("Watching for %q. Ctrl+C to exit.\n", port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := midi.NewPortWatcher(port)
	go w.Run(ctx)
	for ev := range w.Events() {
		fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), ev.Name, ev.Type)
	}
}
