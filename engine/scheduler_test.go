package engine

import (
	"errors"
	"testing"
	"time"

	"go-cue/clock"
	"go-cue/song"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// recorder collects emitted events with the fake time they were emitted at
type recorder struct {
	clk    *clock.Fake
	events []AudioEvent
	at     []time.Duration
	closed bool
}

func (r *recorder) emit(ev AudioEvent) bool {
	if r.closed {
		return false
	}
	r.events = append(r.events, ev)
	r.at = append(r.at, r.clk.Now().Sub(epoch))
	return true
}

func newScheduler(t *testing.T, p *song.Pattern, tempo float64) (*PatternScheduler, *recorder, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(epoch)
	rec := &recorder{clk: clk}
	timing := TimingFor(tempo, p)
	s, err := NewPatternScheduler(p, SchedulerConfig{
		Instrument: 2,
		Interval:   timing.Interval,
		Offset:     timing.Offset,
		MinDelay:   DefaultMinDelay,
		Clock:      clk,
	}, rec.emit)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, rec, clk
}

func TestSubdivisionInterval(t *testing.T) {
	tests := []struct {
		tempo      float64
		hitsPerBar int
		want       time.Duration
	}{
		{120, 4, 500 * time.Millisecond},
		{60, 8, 500 * time.Millisecond},
		{120, 16, 125 * time.Millisecond},
		{100, 1, 2400 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := SubdivisionInterval(tt.tempo, tt.hitsPerBar); got != tt.want {
			t.Fatalf("SubdivisionInterval(%g, %d) = %v, want %v", tt.tempo, tt.hitsPerBar, got, tt.want)
		}
	}

	timing := TimingFor(120, &song.Pattern{HitsPerBar: 4, Offset: 3})
	if timing.Offset != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s offset, got %v", timing.Offset)
	}
}

func TestOneShotPatternFiresEachHitThenTerminates(t *testing.T) {
	p := &song.Pattern{Kind: song.Hit, HitsPerBar: 4, OccursOn: []int{1, 3, 5}}
	s, rec, clk := newScheduler(t, p, 120)

	// index 1 is due immediately
	if len(rec.events) != 1 {
		t.Fatalf("expected synchronous first fire, got %d events", len(rec.events))
	}
	if s.State() != Armed {
		t.Fatalf("expected Armed after first fire, got %v", s.State())
	}

	clk.Advance(time.Minute)
	if len(rec.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(rec.events))
	}
	wantAt := []time.Duration{0, time.Second, 2 * time.Second}
	for i, ev := range rec.events {
		if ev != (AudioEvent{InstrumentID: 2, Kind: song.Hit}) {
			t.Fatalf("event %d: unexpected %v", i, ev)
		}
		if rec.at[i] != wantAt[i] {
			t.Fatalf("event %d at %v, want %v", i, rec.at[i], wantAt[i])
		}
	}
	if s.State() != Terminated {
		t.Fatalf("expected Terminated, got %v", s.State())
	}
	if s.Current() != 5 || s.Scheduled() != 0 || s.Fired() != 3 {
		t.Fatalf("unexpected final state current=%d scheduled=%d fired=%d", s.Current(), s.Scheduled(), s.Fired())
	}
	if clk.Pending() != 0 {
		t.Fatalf("expected no armed timer, got %d", clk.Pending())
	}

	clk.Advance(time.Hour)
	if len(rec.events) != 3 {
		t.Fatalf("terminated scheduler fired again")
	}
}

func TestRepeatingPatternWrapsToFirstHit(t *testing.T) {
	p := &song.Pattern{Kind: song.Hit, HitsPerBar: 4, BarsToRepeatAfter: 1, OccursOn: []int{1, 3}}
	s, rec, clk := newScheduler(t, p, 120)
	interval := 500 * time.Millisecond

	if s.Current() != 1 || s.Scheduled() != 3 {
		t.Fatalf("expected current=1 scheduled=3, got %d %d", s.Current(), s.Scheduled())
	}
	if d, _ := clk.NextDue(); d != 2*interval {
		t.Fatalf("expected index 3 due in %v, got %v", 2*interval, d)
	}

	clk.Advance(2 * interval)
	if s.Current() != 3 {
		t.Fatalf("expected index 3 fired, got %d", s.Current())
	}
	if s.Scheduled() != 1 {
		t.Fatalf("expected wrap to index 1, got %d", s.Scheduled())
	}
	if d, _ := clk.NextDue(); d != 2*interval {
		t.Fatalf("expected wrap interval %v, got %v", 2*interval, d)
	}

	// through the end of the second bar
	clk.Advance(4 * interval)
	if len(rec.events) != 4 {
		t.Fatalf("expected 4 events over two bars, got %d", len(rec.events))
	}
	want := []time.Duration{0, 1000 * time.Millisecond, 2000 * time.Millisecond, 3000 * time.Millisecond}
	for i := range want {
		if rec.at[i] != want[i] {
			t.Fatalf("event %d at %v, want %v", i, rec.at[i], want[i])
		}
	}
	if s.State() != Armed {
		t.Fatalf("repeating pattern should stay armed, got %v", s.State())
	}
}

func TestRepeatingPatternWithLeadIn(t *testing.T) {
	// first hit on index 2 of an 8-step bar looping every 2 bars
	p := &song.Pattern{Kind: song.IntensityIncrease, HitsPerBar: 8, BarsToRepeatAfter: 2, OccursOn: []int{2, 16}}
	s, rec, clk := newScheduler(t, p, 120)
	interval := 250 * time.Millisecond

	if len(rec.events) != 0 || s.State() != Armed {
		t.Fatalf("expected armed with no events, got %d events state %v", len(rec.events), s.State())
	}
	clk.Advance(interval)
	clk.Advance(14 * interval)
	if s.Current() != 16 || s.Scheduled() != 2 {
		t.Fatalf("expected current=16 scheduled=2, got %d %d", s.Current(), s.Scheduled())
	}
	// 16 subdivisions per loop: 0 to restart + 2 into the next loop
	if d, _ := clk.NextDue(); d != 2*interval {
		t.Fatalf("expected %v until wrap, got %v", 2*interval, d)
	}
	for _, ev := range rec.events {
		if ev.Kind != song.IntensityIncrease || ev.Parameter != 0 {
			t.Fatalf("unexpected event %v", ev)
		}
	}
}

func TestPositionalEventsCarryLocation(t *testing.T) {
	p := &song.Pattern{
		Kind:              song.Positional,
		HitsPerBar:        4,
		BarsToRepeatAfter: 2,
		LocationPattern:   []song.Location{{Index: 1, Value: 10}, {Index: 4, Value: 20}, {Index: 7, Value: 5}},
	}
	_, rec, clk := newScheduler(t, p, 120)
	clk.Advance(8 * 500 * time.Millisecond)

	want := []int{10, 20, 5, 10}
	if len(rec.events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(rec.events))
	}
	for i, ev := range rec.events {
		if ev.Kind != song.Positional || ev.Parameter != want[i] {
			t.Fatalf("event %d: expected Positional %d, got %v", i, want[i], ev)
		}
	}
}

func TestOffsetDelaysFirstHit(t *testing.T) {
	p := &song.Pattern{Kind: song.Hit, HitsPerBar: 4, Offset: 2, OccursOn: []int{3}}
	s, rec, clk := newScheduler(t, p, 120)

	if d, _ := clk.NextDue(); d != 2*time.Second {
		t.Fatalf("expected first hit in 2s, got %v", d)
	}
	if s.Scheduled() != 3 || s.Current() != 0 {
		t.Fatalf("expected scheduled=3 current=0, got %d %d", s.Scheduled(), s.Current())
	}
	clk.Advance(2 * time.Second)
	if len(rec.events) != 1 || s.State() != Terminated {
		t.Fatalf("expected single hit then terminated, got %d events state %v", len(rec.events), s.State())
	}
}

func TestMinDelayDecidesSynchronousFire(t *testing.T) {
	p := &song.Pattern{Kind: song.Hit, HitsPerBar: 4, OccursOn: []int{2}}
	clk := clock.NewFake(epoch)
	rec := &recorder{clk: clk}

	_, err := NewPatternScheduler(p, SchedulerConfig{Interval: 500 * time.Millisecond, MinDelay: 600 * time.Millisecond, Clock: clk}, rec.emit)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 1 {
		t.Fatalf("expected hit due under MinDelay to fire during construction")
	}

	rec.events = nil
	_, err = NewPatternScheduler(p, SchedulerConfig{Interval: 500 * time.Millisecond, MinDelay: 500 * time.Millisecond, Clock: clk}, rec.emit)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("expected hit due at MinDelay to be armed")
	}
}

func TestConstructionRejectsBadPatterns(t *testing.T) {
	clk := clock.NewFake(epoch)
	rec := &recorder{clk: clk}
	cfg := SchedulerConfig{Interval: time.Second, Clock: clk}

	if _, err := NewPatternScheduler(&song.Pattern{Kind: song.Hit, HitsPerBar: 4}, cfg, rec.emit); !errors.Is(err, song.ErrEmptySequence) {
		t.Fatalf("expected ErrEmptySequence, got %v", err)
	}
	if _, err := NewPatternScheduler(&song.Pattern{Kind: song.Kind(42), OccursOn: []int{1}}, cfg, rec.emit); !errors.Is(err, song.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	cfg.Interval = 0
	if _, err := NewPatternScheduler(&song.Pattern{Kind: song.Hit, OccursOn: []int{1}}, cfg, rec.emit); !errors.Is(err, song.ErrInvalidPattern) {
		t.Fatalf("expected zero interval to be rejected, got %v", err)
	}
	if clk.Pending() != 0 || len(rec.events) != 0 {
		t.Fatalf("rejected schedulers must never arm or fire")
	}
}

func TestLostPlaceTerminatesScheduler(t *testing.T) {
	p := &song.Pattern{Kind: song.Hit, HitsPerBar: 4, OccursOn: []int{1, 3, 5}}
	s, _, _ := newScheduler(t, p, 120)

	if _, _, _, err := s.scheduleNextEventAfter(2); !errors.Is(err, song.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}

	// corrupt the traversal and let the next firing discover it
	s.Stop()
	s2, rec, clk := newScheduler(t, p, 120)
	s2.scheduled.Store(4)
	clk.Advance(time.Second)
	if s2.State() != Terminated || !errors.Is(s2.Err(), song.ErrEventNotFound) {
		t.Fatalf("expected terminated with ErrEventNotFound, got %v %v", s2.State(), s2.Err())
	}
	if len(rec.events) != 1 {
		t.Fatalf("expected no event from the failed firing, got %d", len(rec.events))
	}
}

func TestStopPreventsNextFiring(t *testing.T) {
	p := &song.Pattern{Kind: song.Hit, HitsPerBar: 4, BarsToRepeatAfter: 1, OccursOn: []int{1, 3}}
	s, rec, clk := newScheduler(t, p, 120)
	s.Stop()
	clk.Advance(time.Minute)
	if len(rec.events) != 1 {
		t.Fatalf("expected only the synchronous event, got %d", len(rec.events))
	}
	if s.State() != Terminated || clk.Pending() != 0 {
		t.Fatalf("expected terminated with no timers, got %v / %d", s.State(), clk.Pending())
	}
}

func TestRejectedEmitTerminates(t *testing.T) {
	p := &song.Pattern{Kind: song.Hit, HitsPerBar: 4, BarsToRepeatAfter: 1, OccursOn: []int{1, 3}}
	s, rec, clk := newScheduler(t, p, 120)
	rec.closed = true
	clk.Advance(time.Minute)
	if s.State() != Terminated || s.Fired() != 1 {
		t.Fatalf("expected terminated after rejected emit, got %v fired=%d", s.State(), s.Fired())
	}
	if clk.Pending() != 0 {
		t.Fatalf("expected no rearm after rejected emit")
	}
}
