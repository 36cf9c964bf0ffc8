package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-cue/config"
	"go-cue/debug"
	"go-cue/engine"
	"go-cue/midi"
	"go-cue/playback"
	"go-cue/song"
	"go-cue/theme"
	"go-cue/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "go-cue: %v\n", err)
		os.Exit(1)
	}
}

// run does the work of main so deferred cleanup runs before the exit
func run(args []string) error {
	var (
		configPath string
		songsDir   string
		songName   string
		portName   string
		tempo      float64
		headless   bool
		dump       bool
		exportPath string
		bars       int
		debugLog   bool
	)
	flags := pflag.NewFlagSet("go-cue", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/go-cue/config.json)")
	flags.StringVarP(&songsDir, "songs", "d", "", "directory of song files")
	flags.StringVarP(&songName, "song", "s", "", "song to start right away")
	flags.StringVarP(&portName, "port", "p", "", "MIDI output port")
	flags.Float64VarP(&tempo, "tempo", "t", 0, "override the song tempo (bpm)")
	flags.BoolVar(&headless, "headless", false, "print events instead of running the monitor")
	flags.BoolVar(&dump, "dump", false, "print the parsed songs and exit")
	flags.StringVar(&exportPath, "export", "", "render --song to a MIDI file and exit")
	flags.IntVar(&bars, "bars", 8, "bars to render with --export")
	flags.BoolVar(&debugLog, "debug", false, "write a debug log")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fault.Wrap(err, fmsg.With("config"))
	}
	if songsDir != "" {
		cfg.SongsDir = songsDir
	}
	if portName != "" {
		cfg.MIDI.PortName = portName
	}

	if debugLog {
		if headless {
			debug.EnableWriter(os.Stderr)
		} else if err := debug.Enable(); err != nil {
			return fault.Wrap(err, fmsg.With("debug log"))
		}
		defer debug.Disable()
	}

	songs, err := song.LoadDir(cfg.SongsDir)
	if err != nil {
		return fault.Wrap(err, fmsg.With("songs"))
	}
	if dump {
		spew.Dump(songs)
		return nil
	}
	if len(songs) == 0 {
		return fault.New("no songs in " + cfg.SongsDir)
	}
	if exportPath != "" {
		return export(songs, songName, bars, tempo, cfg, exportPath)
	}

	e, err := engine.New(songs, engine.Options{MinDelay: cfg.MinDelay()})
	if err != nil {
		return fault.Wrap(err, fmsg.With("engine"))
	}
	defer e.Dispose()

	player := playback.New(func(name string) string {
		if s, ok := e.Song(name); ok {
			return s.Backing
		}
		return ""
	})
	defer player.Stop()
	e.SetPlayer(player.Play)

	ports := midi.NewPorts()
	defer ports.Close()
	out := midi.NewOutput(cfg.MIDI, ports.Lazy(cfg.MIDI.PortName), nil)

	if headless {
		return runHeadless(e, out, cfg, songName, tempo)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := tui.NewModel(e, theme.New(loadPalette(cfg.UI.Palette)), cfg.FrameInterval())
	m.Output = out
	m.Backing = player
	m.Ports = ports
	if cfg.MIDI.PortName != "" {
		m.Watcher = midi.NewPortWatcher(cfg.MIDI.PortName)
		go m.Watcher.Run(ctx)
	}

	autostart := songName != ""
	if songName == "" {
		songName = cfg.UI.LastSong
	}
	m.Tempo = tempo
	m = m.Select(songName)
	if autostart {
		m = m.Play()
	}

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return fault.Wrap(err, fmsg.With("monitor"))
	}

	if last := final.(tui.Model).Last(); last != "" && configPath == "" {
		cfg.UI.LastSong = last
		if err := cfg.Save(); err != nil {
			debug.Log("engine", "save config: %v", err)
		}
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}

func loadPalette(path string) *theme.Palette {
	if path == "" {
		return nil
	}
	p, err := theme.LoadGPL(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "palette %s: %v, using the built-in one\n", filepath.Base(path), err)
		return nil
	}
	return p
}

func export(songs []*song.Song, name string, bars int, tempo float64, cfg *config.Config, path string) error {
	for _, s := range songs {
		if s.Name != name {
			continue
		}
		sm, err := midi.Render(s, bars, tempo, cfg.MIDI)
		if err != nil {
			return fault.Wrap(err, fmsg.With("export"))
		}
		if err := sm.WriteFile(path); err != nil {
			return fault.Wrap(err, fmsg.With("write "+path))
		}
		fmt.Printf("wrote %d bars of %s to %s\n", bars, name, path)
		return nil
	}
	return fault.New(fmt.Sprintf("no song %q, have %v", name, song.Names(songs)))
}

func start(e *engine.Engine, name string, tempo float64) error {
	if tempo > 0 {
		return e.StartPlayingAt(name, tempo)
	}
	return e.StartPlaying(name)
}

// runHeadless plays one song and prints every event until interrupted
func runHeadless(e *engine.Engine, out *midi.Output, cfg *config.Config, name string, tempo float64) error {
	if name == "" {
		fmt.Println("songs:")
		for _, n := range e.Songs() {
			fmt.Println("  " + n)
		}
		return fault.New("--song is required with --headless")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := start(e, name, tempo); err != nil {
		return err
	}
	for _, err := range e.Failures() {
		fmt.Fprintf(os.Stderr, "skipped: %v\n", err)
	}

	began := time.Now()
	ticker := time.NewTicker(cfg.FrameInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Dispose()
			drain(e, out, began)
			out.Reset()
			return nil
		case <-ticker.C:
			drain(e, out, began)
		}
	}
}

func drain(e *engine.Engine, out *midi.Output, began time.Time) {
	for ev := range e.PollEvents() {
		fmt.Printf("%9.3fs  %s\n", time.Since(began).Seconds(), ev)
		if err := out.Handle(ev); err != nil {
			debug.LogEvery(64, "midi", "%v", err)
		}
	}
}
