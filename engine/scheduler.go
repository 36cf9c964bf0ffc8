package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"go-cue/clock"
	"go-cue/debug"
	"go-cue/song"
)

// State is where a PatternScheduler is in its firing cycle
type State int32

const (
	Armed      State = iota // waiting for the timer
	Firing                  // computing and emitting an event
	Terminated              // done, never fires again
)

func (s State) String() string {
	switch s {
	case Armed:
		return "Armed"
	case Firing:
		return "Firing"
	case Terminated:
		return "Terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// SchedulerConfig carries the per-pattern values derived by the engine
type SchedulerConfig struct {
	Instrument int
	Interval   time.Duration // one subdivision
	Offset     time.Duration // delay before the pattern starts
	MinDelay   time.Duration // first hits due sooner than this fire during construction
	Clock      clock.Clock
	OnFail     func(error) // called once if a firing terminates the scheduler with an error
}

// PatternScheduler walks one pattern, firing an AudioEvent at each of its
// indices. It owns a one-shot timer that it rearms after every firing, so the
// firings of one scheduler never overlap.
type PatternScheduler struct {
	pattern       *song.Pattern
	cfg           SchedulerConfig
	emit          func(AudioEvent) bool
	firstDistance int

	// traversal state, written only by the firing path
	current   atomic.Int64
	scheduled atomic.Int64
	state     atomic.Int32
	fired     atomic.Int64
	stopped   atomic.Bool

	mu    sync.Mutex // guards timer and err
	timer clock.Timer
	err   error
}

// NewPatternScheduler builds a scheduler for p and arms it. If the first hit is
// due in less than cfg.MinDelay it fires before NewPatternScheduler returns.
// emit receives every event and reports whether it was accepted.
func NewPatternScheduler(p *song.Pattern, cfg SchedulerConfig, emit func(AudioEvent) bool) (*PatternScheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fault.Wrap(song.ErrInvalidPattern,
			fmsg.With(fmt.Sprintf("subdivision interval %v", cfg.Interval)),
			ftag.With(ftag.InvalidArgument))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	first, err := p.FirstDistance()
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With(fmt.Sprintf("instrument %d", cfg.Instrument)))
	}

	s := &PatternScheduler{
		pattern:       p,
		cfg:           cfg,
		emit:          emit,
		firstDistance: first,
	}

	wait := cfg.Offset + time.Duration(first)*cfg.Interval
	s.scheduled.Store(int64(first + 1))

	if wait < cfg.MinDelay {
		s.state.Store(int32(Firing))
		s.fire()
		return s, nil
	}

	debug.Log("sched", "inst=%d %s first hit %d in %v", cfg.Instrument, p.Kind, first+1, wait)
	s.state.Store(int32(Armed))
	s.arm(wait)
	return s, nil
}

// fire is the timer callback
func (s *PatternScheduler) fire() {
	if s.stopped.Load() {
		return
	}
	s.state.Store(int32(Firing))

	current := int(s.scheduled.Load())
	s.current.Store(int64(current))

	next, wait, done, err := s.scheduleNextEventAfter(current)
	if err != nil {
		s.fail(err)
		return
	}
	ev, err := s.buildEvent(current)
	if err != nil {
		s.fail(err)
		return
	}

	s.scheduled.Store(int64(next))
	if !s.emit(ev) {
		// queue closed, the engine is gone
		s.terminate()
		return
	}
	s.fired.Add(1)
	debug.LogEvery(32, "fire", "inst=%d %s index=%d next=%d", s.cfg.Instrument, s.pattern.Kind, current, next)

	if done {
		debug.Log("sched", "inst=%d %s finished after %d events", s.cfg.Instrument, s.pattern.Kind, s.fired.Load())
		s.terminate()
		return
	}
	s.state.Store(int32(Armed))
	s.arm(wait)
}

// scheduleNextEventAfter returns the index that fires after current and how
// long after current it is due. done is set when a one-shot pattern has played
// its last event.
func (s *PatternScheduler) scheduleNextEventAfter(current int) (next int, wait time.Duration, done bool, err error) {
	last, err := s.pattern.IsLastHit(current)
	if err != nil {
		return 0, 0, false, err
	}

	if !last {
		next, err = s.pattern.EventAfter(current)
		if err != nil {
			return 0, 0, false, fault.Wrap(err,
				fmsg.With(fmt.Sprintf("instrument %d lost its place", s.cfg.Instrument)),
				ftag.With(ftag.Internal))
		}
		return next, time.Duration(next-current) * s.cfg.Interval, false, nil
	}

	if !s.pattern.ShouldRepeat() {
		return 0, 0, true, nil
	}

	// wrap to the first event of the next loop
	hitsToRestart := s.pattern.TotalHits() - current
	next = s.firstDistance + 1
	return next, time.Duration(hitsToRestart+next) * s.cfg.Interval, false, nil
}

func (s *PatternScheduler) buildEvent(current int) (AudioEvent, error) {
	switch s.pattern.Kind {
	case song.Hit:
		return AudioEvent{InstrumentID: s.cfg.Instrument, Kind: song.Hit}, nil
	case song.Positional:
		loc, err := s.pattern.LocationAt(current)
		if err != nil {
			return AudioEvent{}, err
		}
		return AudioEvent{InstrumentID: s.cfg.Instrument, Kind: song.Positional, Parameter: loc}, nil
	case song.IntensityIncrease:
		return AudioEvent{InstrumentID: s.cfg.Instrument, Kind: song.IntensityIncrease}, nil
	default:
		return AudioEvent{}, fault.Wrap(song.ErrUnknownKind,
			fmsg.With(fmt.Sprintf("instrument %d", s.cfg.Instrument)),
			ftag.With(ftag.InvalidArgument))
	}
}

func (s *PatternScheduler) arm(wait time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		return
	}
	s.timer = s.cfg.Clock.AfterFunc(wait, s.fire)
}

func (s *PatternScheduler) fail(err error) {
	debug.Log("sched", "inst=%d %s failed: %v", s.cfg.Instrument, s.pattern.Kind, err)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.terminate()
	if s.cfg.OnFail != nil {
		s.cfg.OnFail(err)
	}
}

func (s *PatternScheduler) terminate() {
	s.stopped.Store(true)
	s.state.Store(int32(Terminated))
}

// Stop disarms the timer for good. A firing already in progress completes but
// arms nothing afterwards.
func (s *PatternScheduler) Stop() {
	s.stopped.Store(true)
	s.mu.Lock()
	t := s.timer
	s.mu.Unlock()
	if t != nil {
		t.Stop()
	}
	s.state.Store(int32(Terminated))
}

// State returns the scheduler's current state
func (s *PatternScheduler) State() State {
	if s.stopped.Load() {
		return Terminated
	}
	return State(s.state.Load())
}

// Current returns the index that fired most recently (0 before the first fire)
func (s *PatternScheduler) Current() int { return int(s.current.Load()) }

// Scheduled returns the index that fires next (0 once terminated)
func (s *PatternScheduler) Scheduled() int { return int(s.scheduled.Load()) }

// Fired returns the number of events emitted so far
func (s *PatternScheduler) Fired() int { return int(s.fired.Load()) }

func (s *PatternScheduler) Instrument() int { return s.cfg.Instrument }

func (s *PatternScheduler) Pattern() *song.Pattern { return s.pattern }

// Err returns the error that terminated the scheduler, if any
func (s *PatternScheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
