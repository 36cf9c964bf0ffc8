package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Fake is a Clock whose time only moves when Advance is called. Due timers run
// synchronously on the goroutine calling Advance, earliest first; timers due at
// the same instant run in the order they were created.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	pending timerHeap
	seq     uint64
}

// NewFake creates a fake clock starting at start
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	t := &fakeTimer{clock: c, due: c.now.Add(d), seq: c.seq, f: f, index: -1}
	c.seq++
	heap.Push(&c.pending, t)
	return t
}

// Advance moves time forward by d, running every timer that falls due
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.runUntil(target)
}

// AdvanceToNext moves time to the next pending timer and runs it.
// It returns false if nothing is pending.
func (c *Fake) AdvanceToNext() bool {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return false
	}
	target := c.pending[0].due
	c.mu.Unlock()
	c.runUntil(target)
	return true
}

// Pending returns the number of armed timers
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// NextDue returns how long until the earliest pending timer fires
func (c *Fake) NextDue() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return 0, false
	}
	return c.pending[0].due.Sub(c.now), true
}

func (c *Fake) runUntil(target time.Time) {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 || c.pending[0].due.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		t := heap.Pop(&c.pending).(*fakeTimer)
		c.now = t.due
		t.fired = true
		c.mu.Unlock()

		// callbacks may arm new timers on this clock
		t.f()
	}
}

type fakeTimer struct {
	clock *Fake
	due   time.Time
	seq   uint64
	f     func()
	index int
	fired bool
}

func (t *fakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.fired || t.index < 0 {
		return false
	}
	heap.Remove(&c.pending, t.index)
	return true
}

// timerHeap implements container/heap.Interface ordered by due time, with
// creation order breaking ties.
type timerHeap []*fakeTimer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].due.Equal(h[j].due) {
		return h[i].due.Before(h[j].due)
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*fakeTimer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
