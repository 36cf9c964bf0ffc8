package midi

import (
	"errors"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

var (
	ErrPortNotFound = errors.New("midi port not found")
	ErrPortTimeout  = errors.New("midi port scan timed out")
)

// scanTimeout bounds a port listing; CoreMIDI can hang
const scanTimeout = 3 * time.Second

// OutPortNames lists the output ports the driver can see
func OutPortNames() ([]string, error) {
	outs, err := outPorts()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, p := range outs {
		names[i] = p.String()
	}
	return names, nil
}

func outPorts() ([]drivers.Out, error) {
	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- gomidi.GetOutPorts()
	}()

	select {
	case outs := <-ch:
		return outs, nil
	case <-time.After(scanTimeout):
		// fix: sudo killall coreaudiod midiserver
		return nil, fault.Wrap(ErrPortTimeout, ftag.With(ftag.Internal))
	}
}

// OpenPort opens the output port called name
func OpenPort(name string) (Sender, error) {
	outs, err := outPorts()
	if err != nil {
		return nil, err
	}
	for _, port := range outs {
		if port.String() == name {
			send, err := gomidi.SendTo(port)
			if err != nil {
				return nil, fault.Wrap(err, fmsg.With("open "+name))
			}
			return send, nil
		}
	}
	return nil, fault.Wrap(ErrPortNotFound,
		fmsg.WithDesc(name, "No MIDI output called "+name),
		ftag.With(ftag.NotFound))
}

// Ports caches open senders by port name
type Ports struct {
	open func(name string) (Sender, error)

	mu      sync.RWMutex
	senders map[string]Sender
}

// NewPorts returns a cache that opens real driver ports
func NewPorts() *Ports {
	return newPorts(OpenPort)
}

func newPorts(open func(string) (Sender, error)) *Ports {
	return &Ports{open: open, senders: make(map[string]Sender)}
}

// Sender returns the sender for name, opening the port on first use
func (p *Ports) Sender(name string) (Sender, error) {
	p.mu.RLock()
	if s, ok := p.senders[name]; ok {
		p.mu.RUnlock()
		return s, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// double-check after acquiring write lock
	if s, ok := p.senders[name]; ok {
		return s, nil
	}
	s, err := p.open(name)
	if err != nil {
		return nil, err
	}
	p.senders[name] = s
	return s, nil
}

// Lazy returns a Sender that resolves name on every send, so a port that
// appears later is picked up
func (p *Ports) Lazy(name string) Sender {
	if name == "" {
		return nil
	}
	return func(msg gomidi.Message) error {
		s, err := p.Sender(name)
		if err != nil {
			return err
		}
		return s(msg)
	}
}

// Forget drops a cached sender, e.g. after its device was unplugged
func (p *Ports) Forget(name string) {
	p.mu.Lock()
	delete(p.senders, name)
	p.mu.Unlock()
}

// Close releases the cached senders and closes the driver
func (p *Ports) Close() {
	p.mu.Lock()
	clear(p.senders)
	p.mu.Unlock()
	gomidi.CloseDriver()
}
