package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-cue/clock"
	"go-cue/config"
	"go-cue/engine"
	"go-cue/midi"
	"go-cue/song"
)

type fakeBacking struct {
	stops   int
	playing string
}

func (b *fakeBacking) Stop()           { b.stops++; b.playing = "" }
func (b *fakeBacking) Playing() string { return b.playing }

func newModel(t *testing.T) (Model, *clock.Fake, *[]gomidi.Message, *fakeBacking) {
	t.Helper()
	songs := []*song.Song{
		{Name: "alpha", Tempo: 120, Instruments: []*song.Instrument{
			{Name: "kick", Patterns: []*song.Pattern{{Kind: song.Hit, HitsPerBar: 4, BarsToRepeatAfter: 1, OccursOn: []int{1, 3}}}},
			{Name: "pan", Patterns: []*song.Pattern{{Kind: song.Positional, HitsPerBar: 4, LocationPattern: []song.Location{{Index: 2, Value: 90}}}}},
		}},
		{Name: "beta", Tempo: 90, Instruments: []*song.Instrument{
			{Name: "swell", Patterns: []*song.Pattern{{Kind: song.IntensityIncrease, HitsPerBar: 4, OccursOn: []int{1, 2}}}},
		}},
	}
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	e, err := engine.New(songs, engine.Options{Clock: clk})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Dispose)

	var sent []gomidi.Message
	send := func(msg gomidi.Message) error {
		sent = append(sent, msg)
		return nil
	}
	backing := &fakeBacking{}
	m := NewModel(e, nil, time.Second/60)
	m.Output = midi.NewOutput(config.DefaultConfig().MIDI, send, clk)
	m.Backing = backing
	return m, clk, &sent, backing
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestStartAndPoll(t *testing.T) {
	m, clk, sent, _ := newModel(t)

	m = update(m, key("enter"))
	if m.playing != "alpha" || len(m.Engine.Schedulers()) != 2 {
		t.Fatalf("expected alpha playing with 2 schedulers, got %q", m.playing)
	}

	// drop the reset sent on start
	*sent = (*sent)[:0]

	clk.Advance(500 * time.Millisecond)
	m = update(m, frameMsg(clk.Now()))

	if l := m.lanes[0]; l == nil || l.hits != 1 || l.flash != flashFrames {
		t.Fatalf("expected kick lane lit, got %+v", m.lanes[0])
	}
	if l := m.lanes[1]; l == nil || !l.moved || l.position != 90 {
		t.Fatalf("expected pan lane at 90, got %+v", m.lanes[1])
	}
	if len(m.log) != 2 {
		t.Fatalf("expected 2 log lines, got %v", m.log)
	}
	// kick note-on and pan cc, the note-off waits for the gate
	if len(*sent) != 2 {
		t.Fatalf("expected 2 midi messages, got %d", len(*sent))
	}
	clk.Advance(50 * time.Millisecond)
	if len(*sent) != 3 {
		t.Fatalf("expected note-off after the gate, got %d messages", len(*sent))
	}

	m = update(m, frameMsg(clk.Now()))
	if m.lanes[0].flash != flashFrames-1 {
		t.Fatalf("expected flash to decay, got %d", m.lanes[0].flash)
	}

	view := m.View()
	for _, want := range []string{"PLAY alpha", "kick", "pan", "Armed"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestSelectAndStop(t *testing.T) {
	m, _, _, backing := newModel(t)

	m = update(m, key("j"))
	m = update(m, key("j"))
	if m.cursor != 1 {
		t.Fatalf("cursor should stop at the last song, got %d", m.cursor)
	}
	m = update(m, key("enter"))
	if m.playing != "beta" {
		t.Fatalf("expected beta, got %q", m.playing)
	}

	m = update(m, key("s"))
	if m.playing != "" || len(m.Engine.Schedulers()) != 0 {
		t.Fatalf("expected everything stopped")
	}
	if backing.stops < 2 {
		t.Fatalf("backing should be stopped on start and stop, got %d", backing.stops)
	}

	m = m.Select("alpha")
	if m.cursor != 0 {
		t.Fatalf("Select should move the cursor, got %d", m.cursor)
	}
}

func TestQuitDisposes(t *testing.T) {
	m, clk, _, _ := newModel(t)
	m = update(m, key("enter"))

	next, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if next.(Model).View() != "" {
		t.Fatal("expected empty view after quit")
	}
	if clk.Pending() != 0 {
		t.Fatalf("expected no armed timers after quit, got %d", clk.Pending())
	}
	if err := m.Engine.StartPlaying("alpha"); err == nil {
		t.Fatal("expected a disposed engine")
	}
}

func TestPortEvents(t *testing.T) {
	m, _, _, _ := newModel(t)
	m.Watcher = midi.NewPortWatcher("synth")

	m = update(m, portMsg{Type: midi.PortDisconnected, Name: "synth"})
	if m.port != "synth disconnected" {
		t.Fatalf("unexpected port status %q", m.port)
	}
}

func TestSkippedPatternsCountedPerStart(t *testing.T) {
	songs := []*song.Song{
		{Name: "broken", Tempo: 120, Instruments: []*song.Instrument{
			{Name: "kick", Patterns: []*song.Pattern{
				{Kind: song.Hit, HitsPerBar: 4, BarsToRepeatAfter: 1, OccursOn: []int{1, 3}},
				{Kind: song.Hit, HitsPerBar: 4},
			}},
		}},
		{Name: "clean", Tempo: 120, Instruments: []*song.Instrument{
			{Name: "kick", Patterns: []*song.Pattern{{Kind: song.Hit, HitsPerBar: 4, OccursOn: []int{1}}}},
		}},
	}
	e, err := engine.New(songs, engine.Options{Clock: clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Dispose)
	m := NewModel(e, nil, time.Second/60)

	m = update(m, key("enter"))
	if m.status != "playing broken (1 patterns skipped)" {
		t.Fatalf("unexpected status %q", m.status)
	}
	m = update(m, key("j"))
	m = update(m, key("enter"))
	if m.status != "playing clean" {
		t.Fatalf("earlier failures should not be reported again, got %q", m.status)
	}
}
