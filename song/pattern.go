package song

import (
	"errors"
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

var (
	ErrUnknownKind    = errors.New("unknown pattern kind")
	ErrEmptySequence  = errors.New("pattern has no events")
	ErrEventNotFound  = errors.New("event index not in pattern")
	ErrNoLocation     = errors.New("no location at or before index")
	ErrInvalidPattern = errors.New("invalid pattern")
)

// Kind identifies what a pattern emits when it fires
type Kind int

const (
	Hit Kind = iota
	Positional
	IntensityIncrease
)

var kindNames = [...]string{
	Hit:               "Hit",
	Positional:        "Positional",
	IntensityIncrease: "IntensityIncrease",
}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	return k >= Hit && k <= IntensityIncrease
}

// ParseKind maps the song file spelling of a kind to a Kind
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fault.Wrap(ErrUnknownKind,
		fmsg.WithDesc(fmt.Sprintf("parse kind %q", s), fmt.Sprintf("Unknown pattern type %q", s)),
		ftag.With(ftag.InvalidArgument))
}

// Location is one entry of a positional pattern: from Index on, the position is Value
type Location struct {
	Index int `yaml:"index"`
	Value int `yaml:"value"`
}

// Pattern is one rhythmic pattern of an instrument.
//
// Indices are 1-based subdivisions of a bar. OccursOn is used by Hit and
// IntensityIncrease patterns, LocationPattern by Positional ones. Both must be
// strictly ascending. A Pattern is never modified once loaded.
type Pattern struct {
	Kind              Kind       `yaml:"type"`
	HitsPerBar        int        `yaml:"hitsPerBar"`
	BarsToRepeatAfter int        `yaml:"barsToRepeatAfter"` // 0 = play once
	OccursOn          []int      `yaml:"occursOn,flow"`
	Offset            int        `yaml:"offset"` // subdivisions before the pattern starts
	LocationPattern   []Location `yaml:"locationPattern"`
}

// ShouldRepeat returns true if the pattern loops
func (p *Pattern) ShouldRepeat() bool {
	return p.BarsToRepeatAfter > 0
}

// TotalHits is the number of subdivisions in one full loop
func (p *Pattern) TotalHits() int {
	return p.HitsPerBar * p.BarsToRepeatAfter
}

// Len returns the number of events in the active sequence
func (p *Pattern) Len() int {
	if p.Kind == Positional {
		return len(p.LocationPattern)
	}
	return len(p.OccursOn)
}

// indexAt returns the subdivision index of the i-th event in the active sequence
func (p *Pattern) indexAt(i int) int {
	if p.Kind == Positional {
		return p.LocationPattern[i].Index
	}
	return p.OccursOn[i]
}

func (p *Pattern) checkKind() error {
	switch p.Kind {
	case Hit, IntensityIncrease, Positional:
		return nil
	default:
		return fault.Wrap(ErrUnknownKind,
			fmsg.With(fmt.Sprintf("kind %d", int(p.Kind))),
			ftag.With(ftag.InvalidArgument))
	}
}

func (p *Pattern) checkNotEmpty() error {
	if err := p.checkKind(); err != nil {
		return err
	}
	if p.Len() == 0 {
		return fault.Wrap(ErrEmptySequence,
			fmsg.With(p.Kind.String()+" pattern"),
			ftag.With(ftag.InvalidArgument))
	}
	return nil
}

// FirstDistance returns how many subdivisions come before the first event
func (p *Pattern) FirstDistance() (int, error) {
	if err := p.checkNotEmpty(); err != nil {
		return 0, err
	}
	return p.indexAt(0) - 1, nil
}

// IsLastHit reports whether index is the final event of the pattern
func (p *Pattern) IsLastHit(index int) (bool, error) {
	if err := p.checkNotEmpty(); err != nil {
		return false, err
	}
	return index == p.indexAt(p.Len()-1), nil
}

// EventAfter returns the index of the event that follows current.
// current must itself be an event of the pattern and not the last one.
func (p *Pattern) EventAfter(current int) (int, error) {
	if err := p.checkNotEmpty(); err != nil {
		return 0, err
	}
	for i := 0; i < p.Len()-1; i++ {
		if p.indexAt(i) == current {
			return p.indexAt(i + 1), nil
		}
	}
	return 0, fault.Wrap(ErrEventNotFound,
		fmsg.With(fmt.Sprintf("next event after %d", current)),
		ftag.With(ftag.InvalidArgument))
}

// LocationAt resolves the position value in effect at index: the value of the
// last location whose Index is <= index.
func (p *Pattern) LocationAt(index int) (int, error) {
	if p.Kind != Positional {
		return 0, fault.Wrap(ErrInvalidPattern,
			fmsg.With(p.Kind.String()+" pattern has no locations"),
			ftag.With(ftag.InvalidArgument))
	}
	found := false
	value := 0
	for _, loc := range p.LocationPattern {
		if loc.Index > index {
			break
		}
		value = loc.Value
		found = true
	}
	if !found {
		return 0, fault.Wrap(ErrNoLocation,
			fmsg.With(fmt.Sprintf("location at %d", index)),
			ftag.With(ftag.InvalidArgument))
	}
	return value, nil
}

// Validate checks everything the engine assumes about a pattern
func (p *Pattern) Validate() error {
	if err := p.checkNotEmpty(); err != nil {
		return err
	}
	if p.HitsPerBar <= 0 {
		return invalid("hitsPerBar must be positive, got %d", p.HitsPerBar)
	}
	if p.BarsToRepeatAfter < 0 {
		return invalid("barsToRepeatAfter must not be negative, got %d", p.BarsToRepeatAfter)
	}
	if p.Offset < 0 {
		return invalid("offset must not be negative, got %d", p.Offset)
	}
	prev := 0
	for i := 0; i < p.Len(); i++ {
		idx := p.indexAt(i)
		if idx <= prev {
			return invalid("event indices must be positive and strictly ascending (%d after %d)", idx, prev)
		}
		prev = idx
	}
	if p.ShouldRepeat() && prev > p.TotalHits() {
		return invalid("last event %d is beyond the loop length %d", prev, p.TotalHits())
	}
	return nil
}

func invalid(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fault.Wrap(ErrInvalidPattern, fmsg.WithDesc(msg, msg), ftag.With(ftag.InvalidArgument))
}
