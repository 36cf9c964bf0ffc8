package midi

import (
	"math"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-cue/clock"
	"go-cue/config"
	"go-cue/engine"
	"go-cue/song"
)

const ticksPerQuarter = 960

type stamped struct {
	at  time.Duration
	msg gomidi.Message
}

// Render plays s for the given number of bars on a simulated clock and
// returns the MIDI it would have sent as a Standard MIDI File. A tempo above
// zero overrides the song's own.
func Render(s *song.Song, bars int, tempo float64, cfg config.MIDIConfig) (*smf.SMF, error) {
	if bars <= 0 {
		return nil, fault.New("bars must be positive", ftag.With(ftag.InvalidArgument))
	}
	if tempo <= 0 {
		tempo = s.Tempo
	}

	start := time.Unix(0, 0)
	clk := clock.NewFake(start)
	e, err := engine.New([]*song.Song{s}, engine.Options{Clock: clk})
	if err != nil {
		return nil, err
	}
	defer e.Dispose()

	var recorded []stamped
	out := NewOutput(cfg, func(msg gomidi.Message) error {
		recorded = append(recorded, stamped{at: clk.Now().Sub(start), msg: msg})
		return nil
	}, clk)

	if err := e.StartPlayingAt(s.Name, tempo); err != nil {
		return nil, fault.Wrap(err, fmsg.With("render "+s.Name))
	}

	bar := time.Duration(float64(time.Minute) * 4 / tempo)
	end := time.Duration(bars) * bar
	flush := func() {
		for ev := range e.PollEvents() {
			out.Handle(ev)
		}
	}

	flush()
	for {
		d, ok := clk.NextDue()
		if !ok || clk.Now().Sub(start)+d >= end {
			break
		}
		clk.AdvanceToNext()
		flush()
	}
	e.Stop()
	// let the last note-offs land
	clk.Advance(end - clk.Now().Sub(start) + out.gate())

	return buildSMF(tempo, end, recorded), nil
}

func buildSMF(tempo float64, end time.Duration, recorded []stamped) *smf.SMF {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var meta smf.Track
	meta.Add(0, smf.MetaMeter(4, 4))
	meta.Add(0, smf.MetaTempo(tempo))
	meta.Close(0)
	sm.Add(meta)

	var track smf.Track
	var last uint32
	for _, r := range recorded {
		at := toTicks(tempo, r.at)
		track.Add(at-last, r.msg)
		last = at
	}
	var tail uint32
	if t := toTicks(tempo, end); t > last {
		tail = t - last
	}
	track.Close(tail)
	sm.Add(track)
	return sm
}

func toTicks(tempo float64, d time.Duration) uint32 {
	return uint32(math.Round(d.Minutes() * tempo * ticksPerQuarter))
}
