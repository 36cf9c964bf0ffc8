package midi

import (
	"context"
	"slices"
	"time"

	"go-cue/debug"
)

// PortEvent is emitted when the watched port appears or goes away
type PortEvent struct {
	Type PortEventType
	Name string
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

func (t PortEventType) String() string {
	if t == PortConnected {
		return "connected"
	}
	return "disconnected"
}

// PortWatcher handles hot-plug detection of the synth output port
type PortWatcher struct {
	name     string
	list     func() ([]string, error)
	events   chan PortEvent
	pollRate time.Duration
	present  bool
}

// NewPortWatcher watches for an output port called name
func NewPortWatcher(name string) *PortWatcher {
	return &PortWatcher{
		name:     name,
		list:     OutPortNames,
		events:   make(chan PortEvent, 16),
		pollRate: time.Second,
	}
}

// Events returns a channel of connect/disconnect events
func (w *PortWatcher) Events() <-chan PortEvent {
	return w.events
}

// Run starts the polling loop (blocking - run in goroutine)
func (w *PortWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()
	defer close(w.events)

	w.scan()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan()
		}
	}
}

func (w *PortWatcher) scan() {
	names, err := w.list()
	if err != nil {
		// hung driver, try again next tick
		debug.Log("midi", "port scan: %v", err)
		return
	}

	seen := slices.Contains(names, w.name)
	if seen == w.present {
		return
	}
	w.present = seen

	ev := PortEvent{Type: PortDisconnected, Name: w.name}
	if seen {
		ev.Type = PortConnected
	}
	debug.Log("midi", "%s %s", w.name, ev.Type)
	select {
	case w.events <- ev:
	default:
	}
}
