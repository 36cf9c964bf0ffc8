package engine

import (
	"time"

	"go-cue/song"
)

// beatsPerBar is the number of crotchets a bar of hitsPerBar subdivisions spans
const beatsPerBar = 4.0

// Timing holds the durations a pattern scheduler works in
type Timing struct {
	Interval time.Duration // one subdivision
	Offset   time.Duration // delay before the pattern starts
}

// SubdivisionInterval returns the length of one subdivision when a bar of
// hitsPerBar subdivisions is played at tempo beats per minute.
func SubdivisionInterval(tempo float64, hitsPerBar int) time.Duration {
	secondsPerBeat := 60.0 / tempo
	ms := secondsPerBeat * (beatsPerBar / float64(hitsPerBar)) * 1000
	return time.Duration(ms * float64(time.Millisecond))
}

// TimingFor derives the timing of p at tempo
func TimingFor(tempo float64, p *song.Pattern) Timing {
	interval := SubdivisionInterval(tempo, p.HitsPerBar)
	return Timing{
		Interval: interval,
		Offset:   time.Duration(p.Offset) * interval,
	}
}
