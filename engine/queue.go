package engine

import "sync"

// eventQueue is an unbounded queue written by every scheduler and drained by
// the polling consumer. Once closed it drops new events but keeps the ones it
// already holds.
type eventQueue struct {
	mu     sync.Mutex
	events []AudioEvent
	head   int
	closed bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{events: make([]AudioEvent, 0, 64)}
}

// push appends ev. It returns false if the queue is closed.
func (q *eventQueue) push(ev AudioEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.events = append(q.events, ev)
	return true
}

// pop removes the oldest event
func (q *eventQueue) pop() (AudioEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.events) {
		// drained - reuse the backing array
		q.events = q.events[:0]
		q.head = 0
		return AudioEvent{}, false
	}
	ev := q.events[q.head]
	q.head++
	if q.head >= 1024 && q.head*2 >= len(q.events) {
		n := copy(q.events, q.events[q.head:])
		q.events = q.events[:n]
		q.head = 0
	}
	return ev, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events) - q.head
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
