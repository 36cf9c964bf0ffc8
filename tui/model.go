package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Southclaws/fault/fmsg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-cue/engine"
	"go-cue/midi"
	"go-cue/song"
	"go-cue/theme"
	"go-cue/widgets"
)

const (
	logSize     = 8
	flashFrames = 6
	meterWidth  = 16
)

// Backing is the backing track player as seen by the monitor
type Backing interface {
	Stop()
	Playing() string
}

// lane is what the monitor shows for one instrument
type lane struct {
	flash     int // frames left to show a hit
	hits      int
	position  int
	moved     bool
	intensity int
}

type Model struct {
	Engine  *engine.Engine
	Output  *midi.Output      // may be nil
	Backing Backing           // may be nil
	Ports   *midi.Ports       // may be nil
	Watcher *midi.PortWatcher // may be nil
	Theme   *theme.Theme
	Tempo   float64 // overrides song tempos when > 0

	frame    time.Duration
	songs    []string
	cursor   int
	playing  string
	last     string
	lanes    map[int]*lane
	log      []string
	status   string
	port     string
	showHelp bool
	quitting bool
}

type frameMsg time.Time

type portMsg midi.PortEvent

func NewModel(e *engine.Engine, th *theme.Theme, frame time.Duration) Model {
	if th == nil {
		th = theme.New(nil)
	}
	return Model{
		Engine: e,
		Theme:  th,
		frame:  frame,
		songs:  e.Songs(),
		lanes:  make(map[int]*lane),
	}
}

// Select moves the cursor to the named song
func (m Model) Select(name string) Model {
	for i, s := range m.songs {
		if s == name {
			m.cursor = i
		}
	}
	return m
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func ListenForPorts(w *midi.PortWatcher) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-w.Events()
		if !ok {
			return nil
		}
		return portMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tick(m.frame)}
	if m.Watcher != nil {
		cmds = append(cmds, ListenForPorts(m.Watcher))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.stop()
			m.Engine.Dispose()
			return m, tea.Quit

		case "j", "down":
			if m.cursor < len(m.songs)-1 {
				m.cursor++
			}

		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}

		case "enter":
			m = m.Play()

		case "s":
			m.stop()
			m.playing = ""
			m.status = "stopped"

		case "c":
			if n := m.Engine.ClearFinished(); n > 0 {
				m.status = fmt.Sprintf("cleared %d finished", n)
			}

		case "?":
			m.showHelp = !m.showHelp
		}

	case frameMsg:
		m = m.Poll()
		return m, tick(m.frame)

	case portMsg:
		ev := midi.PortEvent(msg)
		m.port = fmt.Sprintf("%s %s", ev.Name, ev.Type)
		if ev.Type == midi.PortDisconnected && m.Ports != nil {
			m.Ports.Forget(ev.Name)
		}
		return m, ListenForPorts(m.Watcher)
	}

	return m, nil
}

// Play starts the song under the cursor
func (m Model) Play() Model {
	if len(m.songs) == 0 {
		return m
	}
	name := m.songs[m.cursor]
	m.stop()
	m.lanes = make(map[int]*lane)
	m.log = nil

	skipped := len(m.Engine.Failures())
	var err error
	if m.Tempo > 0 {
		err = m.Engine.StartPlayingAt(name, m.Tempo)
	} else {
		err = m.Engine.StartPlaying(name)
	}
	if err != nil {
		m.status = issue(err)
		m.playing = ""
		return m
	}
	m.playing = name
	m.last = name
	m.status = "playing " + name
	if n := len(m.Engine.Failures()) - skipped; n > 0 {
		m.status += fmt.Sprintf(" (%d patterns skipped)", n)
	}
	return m
}

func (m Model) stop() {
	m.Engine.Stop()
	if m.Backing != nil {
		m.Backing.Stop()
	}
	if m.Output != nil {
		m.Output.Reset()
	}
}

// Last returns the song started most recently
func (m Model) Last() string {
	return m.last
}

// Poll drains the engine once, as one frame of the monitor does
func (m Model) Poll() Model {
	for l := range m.lanes {
		if m.lanes[l].flash > 0 {
			m.lanes[l].flash--
		}
	}

	for ev := range m.Engine.PollEvents() {
		l, ok := m.lanes[ev.InstrumentID]
		if !ok {
			l = &lane{}
			m.lanes[ev.InstrumentID] = l
		}
		switch ev.Kind {
		case song.Hit:
			l.flash = flashFrames
			l.hits++
		case song.Positional:
			l.position = ev.Parameter
			l.moved = true
		case song.IntensityIncrease:
			l.intensity++
		}

		if m.Output != nil {
			if err := m.Output.Handle(ev); err != nil {
				m.status = issue(err)
			}
		}

		m.log = append(m.log, ev.String())
		if len(m.log) > logSize {
			m.log = m.log[len(m.log)-logSize:]
		}
	}
	return m
}

func issue(err error) string {
	if s := fmsg.GetIssue(err); s != "" {
		return s
	}
	return err.Error()
}

var keys = []widgets.KeyBinding{
	{Key: "j/k", Desc: "select"},
	{Key: "enter", Desc: "start"},
	{Key: "s", Desc: "stop"},
	{Key: "c", Desc: "clear finished"},
	{Key: "?", Desc: "help"},
	{Key: "q", Desc: "quit"},
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())
	sym := m.Theme.Symbols

	var out strings.Builder
	state := "STOP"
	if m.playing != "" {
		state = "PLAY " + m.playing
	}
	if m.Backing != nil && m.Backing.Playing() != "" {
		state += " +backing"
	}
	out.WriteString("\n")
	out.WriteString(headerStyle.Render("go-cue  " + state))
	if m.port != "" {
		out.WriteString(dimStyle.Render("  midi: " + m.port))
	}
	out.WriteString("\n\n")

	// song list
	for i, name := range m.songs {
		cursor := " "
		if i == m.cursor {
			cursor = string(sym.Cursor)
		}
		line := fmt.Sprintf("%s %s", cursor, name)
		if s, ok := m.Engine.Song(name); ok {
			line += dimStyle.Render(fmt.Sprintf("  %gbpm  %d patterns", s.Tempo, s.PatternCount()))
		}
		out.WriteString(line + "\n")
	}
	out.WriteString("\n")

	// instrument lanes
	if s, ok := m.Engine.Song(m.playing); ok {
		for id, inst := range s.Instruments {
			l := m.lanes[id]
			if l == nil {
				l = &lane{}
			}
			color := m.Theme.Lane(id)
			pos := "  -"
			if l.moved {
				pos = fmt.Sprintf("%3d", l.position)
			}
			fmt.Fprintf(&out, "  %-10s %s %4d  pos %s  %s\n",
				truncate(inst.Name, 10),
				widgets.RenderFlash(l.flash > 0, sym.Hit, sym.Idle, color),
				l.hits,
				pos,
				widgets.RenderMeter(l.intensity, 16, meterWidth, sym.Level, sym.Gap, color))
		}
		out.WriteString("\n")
	}

	// scheduler states
	for _, st := range m.Engine.Schedulers() {
		mark := sym.Armed
		switch st.State {
		case engine.Firing:
			mark = sym.Firing
		case engine.Terminated:
			mark = sym.Terminated
		}
		line := fmt.Sprintf("  %c inst %d %-18s %-10s at %3d next %3d  fired %d",
			mark, st.Instrument, st.Kind, st.State, st.Current, st.Next, st.Fired)
		if st.Err != nil {
			line += warnStyle.Render("  " + issue(st.Err))
		}
		out.WriteString(line + "\n")
	}

	if len(m.log) > 0 {
		out.WriteString("\n")
		out.WriteString(dimStyle.Render(strings.Join(m.log, "\n")))
		out.WriteString("\n")
	}

	if m.status != "" {
		out.WriteString("\n" + m.status + "\n")
	}
	out.WriteString("\n")
	if m.showHelp {
		out.WriteString(widgets.RenderKeyHelp([]widgets.KeySection{{Title: "Keys", Keys: keys}}))
	} else {
		out.WriteString(dimStyle.Render(widgets.RenderKeyLine(keys)))
	}
	return out.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
