package main

import (
	"path/filepath"
	"strings"
	"testing"

	"gitlab.com/gomidi/midi/v2/smf"
)

func TestRunReturnsErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.json")

	err := run([]string{"--config", cfg, "--songs", dir})
	if err == nil || !strings.Contains(err.Error(), "no songs") {
		t.Fatalf("expected a no songs error, got %v", err)
	}
	if err := run([]string{"--config", cfg, "--no-such-flag"}); err == nil {
		t.Fatal("expected an unknown flag to be an error")
	}
	if err := run([]string{"--config", cfg, "--songs", "songs", "--song", "missing", "--export", filepath.Join(dir, "x.mid")}); err == nil {
		t.Fatal("expected exporting an unknown song to fail")
	}
}

func TestExportHonoursTempo(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "groove.mid")

	err := run([]string{
		"--config", filepath.Join(dir, "config.json"),
		"--songs", "songs",
		"--song", "groove",
		"--export", out,
		"--bars", "1",
		"--tempo", "60",
	})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	sm, err := smf.ReadFile(out)
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
		t.Fatalf("expected the exported tempo to be 60, got %g", bpm)
	}
}
