package engine

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"go-cue/clock"
	"go-cue/debug"
	"go-cue/song"
)

var (
	ErrSongNotFound = errors.New("song not found")
	ErrDisposed     = errors.New("engine disposed")
	ErrInvalidTempo = errors.New("tempo must be positive")
)

// DefaultMinDelay is the timer resolution: first hits due sooner fire at once
const DefaultMinDelay = time.Millisecond

// PlayFunc starts audio for a song. It is called once per StartPlaying, before
// any pattern is armed, and its outcome does not affect scheduling.
type PlayFunc func(songName string)

// Options configures an Engine
type Options struct {
	Clock    clock.Clock   // defaults to the wall clock
	MinDelay time.Duration // <= 0 selects DefaultMinDelay
	Player   PlayFunc      // optional
}

// Engine turns song patterns into a stream of AudioEvents. Every pattern of a
// playing song gets its own PatternScheduler; all of them feed one queue that
// the consumer drains with PollEvents.
type Engine struct {
	songs    map[string]*song.Song
	clock    clock.Clock
	minDelay time.Duration
	queue    *eventQueue

	mu       sync.Mutex
	player   PlayFunc
	active   []*PatternScheduler
	failures []error
	disposed bool
}

// New creates an engine for a catalog of songs. Song names must be unique.
func New(songs []*song.Song, opts Options) (*Engine, error) {
	e := &Engine{
		songs:    make(map[string]*song.Song, len(songs)),
		clock:    opts.Clock,
		minDelay: opts.MinDelay,
		player:   opts.Player,
		queue:    newEventQueue(),
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.minDelay <= 0 {
		e.minDelay = DefaultMinDelay
	}

	for _, s := range songs {
		if s == nil {
			continue
		}
		if _, ok := e.songs[s.Name]; ok {
			return nil, fault.Wrap(song.ErrDuplicateSong,
				fmsg.With(s.Name),
				ftag.With(ftag.AlreadyExists))
		}
		e.songs[s.Name] = s
	}
	return e, nil
}

// SetPlayer sets the playback callback used by later StartPlaying calls
func (e *Engine) SetPlayer(fn PlayFunc) {
	e.mu.Lock()
	e.player = fn
	e.mu.Unlock()
}

// Songs returns the catalog's song names, sorted
func (e *Engine) Songs() []string {
	names := make([]string, 0, len(e.songs))
	for name := range e.songs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Song looks up a song by name
func (e *Engine) Song(name string) (*song.Song, bool) {
	s, ok := e.songs[name]
	return s, ok
}

// StartPlaying starts the named song at its own tempo
func (e *Engine) StartPlaying(name string) error {
	s, err := e.lookup(name)
	if err != nil {
		return err
	}
	return e.start(s, s.Tempo)
}

// StartPlayingAt starts the named song at tempo beats per minute
func (e *Engine) StartPlayingAt(name string, tempo float64) error {
	s, err := e.lookup(name)
	if err != nil {
		return err
	}
	return e.start(s, tempo)
}

func (e *Engine) lookup(name string) (*song.Song, error) {
	s, ok := e.songs[name]
	if !ok {
		return nil, fault.Wrap(ErrSongNotFound,
			fmsg.WithDesc(name, fmt.Sprintf("No song called %q", name)),
			ftag.With(ftag.NotFound))
	}
	return s, nil
}

func (e *Engine) start(s *song.Song, tempo float64) error {
	if tempo <= 0 {
		return fault.Wrap(ErrInvalidTempo,
			fmsg.WithDesc(fmt.Sprintf("%s: tempo %g", s.Name, tempo), "Tempo must be above zero"),
			ftag.With(ftag.InvalidArgument))
	}

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return fault.Wrap(ErrDisposed, ftag.With(ftag.Internal))
	}
	player := e.player
	e.mu.Unlock()

	debug.Log("engine", "start %s at %gbpm (%d patterns)", s.Name, tempo, s.PatternCount())
	if player != nil {
		player(s.Name)
	}

	for id, inst := range s.Instruments {
		for j, p := range inst.Patterns {
			where := fmt.Sprintf("%s: %s pattern %d", s.Name, inst.Name, j)
			t := TimingFor(tempo, p)
			sched, err := NewPatternScheduler(p, SchedulerConfig{
				Instrument: id,
				Interval:   t.Interval,
				Offset:     t.Offset,
				MinDelay:   e.minDelay,
				Clock:      e.clock,
				OnFail: func(err error) {
					e.recordFailure(fault.Wrap(err, fmsg.With(where)))
				},
			}, e.queue.push)
			if err != nil {
				// only this pattern is lost
				err = fault.Wrap(err, fmsg.With(where))
				debug.Log("engine", "pattern skipped: %v", err)
				e.recordFailure(err)
				continue
			}

			e.mu.Lock()
			if e.disposed {
				e.mu.Unlock()
				sched.Stop()
				return fault.Wrap(ErrDisposed, ftag.With(ftag.Internal))
			}
			e.active = append(e.active, sched)
			e.mu.Unlock()
		}
	}
	return nil
}

// PollEvents returns the events queued when it is called. The sequence removes
// each event as it yields it, never blocks, and can be ranged over only once.
func (e *Engine) PollEvents() iter.Seq[AudioEvent] {
	n := e.queue.len()
	used := false
	return func(yield func(AudioEvent) bool) {
		if used {
			return
		}
		used = true
		for ; n > 0; n-- {
			ev, ok := e.queue.pop()
			if !ok || !yield(ev) {
				return
			}
		}
	}
}

// Pending returns the number of events waiting to be polled
func (e *Engine) Pending() int {
	return e.queue.len()
}

// Status describes one scheduler for display
type Status struct {
	Instrument int
	Kind       song.Kind
	State      State
	Current    int
	Next       int
	Fired      int
	Err        error
}

// Schedulers returns the status of every active scheduler in creation order
func (e *Engine) Schedulers() []Status {
	e.mu.Lock()
	active := append([]*PatternScheduler(nil), e.active...)
	e.mu.Unlock()

	out := make([]Status, len(active))
	for i, s := range active {
		out[i] = Status{
			Instrument: s.Instrument(),
			Kind:       s.Pattern().Kind,
			State:      s.State(),
			Current:    s.Current(),
			Next:       s.Scheduled(),
			Fired:      s.Fired(),
			Err:        s.Err(),
		}
	}
	return out
}

// ClearFinished drops terminated schedulers from the active list and returns
// how many were removed
func (e *Engine) ClearFinished() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.active[:0]
	for _, s := range e.active {
		if s.State() != Terminated {
			kept = append(kept, s)
		}
	}
	removed := len(e.active) - len(kept)
	clear(e.active[len(kept):])
	e.active = kept
	return removed
}

func (e *Engine) recordFailure(err error) {
	e.mu.Lock()
	e.failures = append(e.failures, err)
	e.mu.Unlock()
}

// Failures returns the errors of patterns that could not be scheduled or that
// stopped with an error while playing, oldest first
func (e *Engine) Failures() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.failures...)
}

// Stop halts every active scheduler and forgets them. Queued events stay
// pollable and the engine can start another song.
func (e *Engine) Stop() {
	e.mu.Lock()
	active := e.active
	e.active = nil
	e.mu.Unlock()

	for _, s := range active {
		s.Stop()
	}
	debug.Log("engine", "stopped %d schedulers", len(active))
}

// Dispose stops every scheduler and closes the queue to new events. Events
// queued before Dispose stay available to a final poll.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	active := e.active
	e.mu.Unlock()

	// close first so a firing racing with Stop cannot enqueue
	e.queue.close()
	for _, s := range active {
		s.Stop()
	}
	debug.Log("engine", "disposed (%d schedulers, %d events pending)", len(active), e.queue.len())
}
