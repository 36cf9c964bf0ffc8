package midi

import (
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-cue/clock"
	"go-cue/config"
	"go-cue/debug"
	"go-cue/engine"
	"go-cue/song"
)

// Sender delivers one message to a port
type Sender func(gomidi.Message) error

// Output turns engine cues into MIDI for an external synth. Hits become a note
// held for the gate time, positional cues a pan-style CC and intensity cues a
// CC that climbs one step per cue.
type Output struct {
	cfg   config.MIDIConfig
	send  Sender
	clock clock.Clock

	mu        sync.Mutex
	intensity map[int]int
	sent      int
	errors    int
	lastErr   error
}

// NewOutput creates an output writing through send. A nil clock uses the wall
// clock for note gates.
func NewOutput(cfg config.MIDIConfig, send Sender, clk clock.Clock) *Output {
	if clk == nil {
		clk = clock.Real()
	}
	return &Output{
		cfg:       cfg,
		send:      send,
		clock:     clk,
		intensity: make(map[int]int),
	}
}

// Translate returns the messages sent immediately for ev. A hit's note-off is
// not included; Handle schedules it after the gate time.
func (o *Output) Translate(ev engine.AudioEvent) []Event {
	out := o.cfg.Output(ev.InstrumentID)
	ch := clamp7(out.Channel-1) & 0x0F

	switch ev.Kind {
	case song.Hit:
		return []Event{{Type: NoteOn, Channel: ch, Data1: clamp7(out.Note), Data2: clamp7(o.cfg.Velocity)}}
	case song.Positional:
		return []Event{{Type: CC, Channel: ch, Data1: clamp7(o.cfg.PositionalCC), Data2: clamp7(ev.Parameter)}}
	case song.IntensityIncrease:
		o.mu.Lock()
		level := min(o.intensity[ev.InstrumentID]+o.cfg.IntensityStep, 127)
		o.intensity[ev.InstrumentID] = level
		o.mu.Unlock()
		return []Event{{Type: CC, Channel: ch, Data1: clamp7(o.cfg.IntensityCC), Data2: uint8(level)}}
	}
	return nil
}

// Handle sends the messages for ev
func (o *Output) Handle(ev engine.AudioEvent) error {
	var first error
	for _, e := range o.Translate(ev) {
		if err := o.write(e); err != nil && first == nil {
			first = err
		}
		if e.Type == NoteOn {
			off := Event{Type: NoteOff, Channel: e.Channel, Data1: e.Data1}
			o.clock.AfterFunc(o.gate(), func() { o.write(off) })
		}
	}
	return first
}

func (o *Output) gate() time.Duration {
	return time.Duration(o.cfg.GateMs) * time.Millisecond
}

func (o *Output) write(e Event) error {
	if o.send == nil {
		return nil
	}
	err := o.send(e.Message())

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.errors++
		o.lastErr = fault.Wrap(err, fmsg.With(e.String()))
		debug.LogEvery(16, "midi", "send failed: %v", err)
		return o.lastErr
	}
	o.sent++
	return nil
}

// Intensity returns the current intensity level of an instrument
func (o *Output) Intensity(instrument int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.intensity[instrument]
}

// Reset drops every instrument back to zero intensity and silences the
// channels in use
func (o *Output) Reset() {
	o.mu.Lock()
	clear(o.intensity)
	o.mu.Unlock()

	channels := make(map[uint8]bool)
	for i := range o.cfg.Instruments {
		channels[clamp7(o.cfg.Instruments[i].Channel-1)&0x0F] = true
	}
	for ch := range channels {
		// all notes off
		o.write(Event{Type: CC, Channel: ch, Data1: 123})
		o.write(Event{Type: CC, Channel: ch, Data1: clamp7(o.cfg.IntensityCC)})
	}
	debug.Log("midi", "reset %d channels", len(channels))
}

// Stats reports how many messages went out and how many failed
func (o *Output) Stats() (sent, failed int, lastErr error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent, o.errors, o.lastErr
}
