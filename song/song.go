package song

import (
	"fmt"
	"sort"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
)

// Instrument is a named group of patterns. Its position in Song.Instruments is
// the instrument id carried by emitted events.
type Instrument struct {
	Name     string     `yaml:"name"`
	Patterns []*Pattern `yaml:"patterns"`
}

// Song is a tempo plus the cue patterns of every instrument
type Song struct {
	Name        string        `yaml:"name"`
	Tempo       float64       `yaml:"tempo"`             // beats per minute
	Backing     string        `yaml:"backing,omitempty"` // audio file played alongside the cues
	Instruments []*Instrument `yaml:"instruments"`
}

// PatternCount returns the number of patterns across all instruments
func (s *Song) PatternCount() int {
	n := 0
	for _, inst := range s.Instruments {
		n += len(inst.Patterns)
	}
	return n
}

// Validate checks the song and every pattern in it
func (s *Song) Validate() error {
	if s.Name == "" {
		return invalid("song has no name")
	}
	if s.Tempo <= 0 {
		return invalid("song %s: tempo must be positive, got %g", s.Name, s.Tempo)
	}
	for i, inst := range s.Instruments {
		for j, p := range inst.Patterns {
			if p == nil {
				return invalid("song %s: instrument %d pattern %d is empty", s.Name, i, j)
			}
			if err := p.Validate(); err != nil {
				return fault.Wrap(err, fmsg.With(fmt.Sprintf("song %s: instrument %d (%s) pattern %d", s.Name, i, inst.Name, j)))
			}
		}
	}
	return nil
}

// Names returns the sorted names of songs
func Names(songs []*Song) []string {
	names := make([]string, 0, len(songs))
	for _, s := range songs {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}
