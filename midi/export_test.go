package midi

import (
	"bytes"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-cue/config"
	"go-cue/song"
)

func TestRender(t *testing.T) {
	s := &song.Song{Name: "two", Tempo: 120, Instruments: []*song.Instrument{
		{Name: "kick", Patterns: []*song.Pattern{{Kind: song.Hit, HitsPerBar: 4, BarsToRepeatAfter: 1, OccursOn: []int{1, 3}}}},
		{Name: "pan", Patterns: []*song.Pattern{{Kind: song.Positional, HitsPerBar: 4, LocationPattern: []song.Location{{Index: 4, Value: 100}}}}},
	}}

	sm, err := Render(s, 2, 0, config.DefaultConfig().MIDI)
	if err != nil {
		t.Fatal(err)
	}
	if len(sm.Tracks) != 2 {
		t.Fatalf("expected meta and cue tracks, got %d", len(sm.Tracks))
	}

	var ons, ccs int
	var total uint32
	var onAt []uint32
	for _, ev := range sm.Tracks[1] {
		total += ev.Delta
		msg := gomidi.Message(ev.Message)
		var ch, a, b uint8
		switch {
		case msg.GetNoteOn(&ch, &a, &b):
			ons++
			onAt = append(onAt, total)
		case msg.GetControlChange(&ch, &a, &b):
			ccs++
			if a != 10 || b != 100 {
				t.Fatalf("unexpected cc %d=%d", a, b)
			}
		}
	}
	// kick on beats 1 and 3 of two bars, pan once
	if ons != 4 || ccs != 1 {
		t.Fatalf("expected 4 notes and 1 cc, got %d and %d", ons, ccs)
	}
	want := []uint32{0, 1920, 3840, 5760}
	for i := range want {
		if onAt[i] != want[i] {
			t.Fatalf("note %d at tick %d, want %d", i, onAt[i], want[i])
		}
	}

	var buf bytes.Buffer
	if _, err := sm.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("MThd")) {
		t.Fatal("expected a standard midi file header")
	}
}

func TestRenderRejectsZeroBars(t *testing.T) {
	s := &song.Song{Name: "x", Tempo: 120}
	if _, err := Render(s, 0, 0, config.DefaultConfig().MIDI); err == nil {
		t.Fatal("expected error for zero bars")
	}
}

func TestRenderTempoOverride(t *testing.T) {
	s := &song.Song{Name: "slow", Tempo: 120, Instruments: []*song.Instrument{
		{Name: "kick", Patterns: []*song.Pattern{{Kind: song.Hit, HitsPerBar: 4, BarsToRepeatAfter: 1, OccursOn: []int{1, 3}}}},
	}}

	sm, err := Render(s, 2, 60, config.DefaultConfig().MIDI)
	if err != nil {
		t.Fatal(err)
	}

	var bpm float64
	for _, ev := range sm.Tracks[0] {
		if ev.Message.GetMetaTempo(&bpm) {
			break
		}
	}
	if bpm != 60 {
		t.Fatalf("expected the file tempo to be 60, got %g", bpm)
	}

	// two full bars at the slower tempo, still on beats 1 and 3
	var onAt []uint32
	var total uint32
	for _, ev := range sm.Tracks[1] {
		total += ev.Delta
		var ch, key, vel uint8
		if gomidi.Message(ev.Message).GetNoteOn(&ch, &key, &vel) {
			onAt = append(onAt, total)
		}
	}
	want := []uint32{0, 1920, 3840, 5760}
	if len(onAt) != len(want) {
		t.Fatalf("expected %d notes, got ticks %v", len(want), onAt)
	}
	for i := range want {
		if onAt[i] != want[i] {
			t.Fatalf("note %d at tick %d, want %d", i, onAt[i], want[i])
		}
	}
	if total != 2*4*ticksPerQuarter {
		t.Fatalf("expected the track to end after 2 bars, got tick %d", total)
	}
}
