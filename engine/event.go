package engine

import (
	"fmt"

	"go-cue/song"
)

// AudioEvent is one cue emitted by a pattern scheduler
type AudioEvent struct {
	InstrumentID int       // position of the instrument in the song
	Kind         song.Kind // kind of the pattern that fired
	Parameter    int       // position value for Positional cues, 0 otherwise
}

func (ev AudioEvent) String() string {
	if ev.Kind == song.Positional {
		return fmt.Sprintf("%s(inst=%d, pos=%d)", ev.Kind, ev.InstrumentID, ev.Parameter)
	}
	return fmt.Sprintf("%s(inst=%d)", ev.Kind, ev.InstrumentID)
}
