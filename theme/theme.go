package theme

import (
	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// lane states
	Idle  rune // · nothing this frame
	Hit   rune // ● hit fired
	Level rune // █ filled part of a meter
	Gap   rune // ░ empty part of a meter

	// scheduler states
	Armed      rune // ○ waiting
	Firing     rune // ▶ firing now
	Terminated rune // ■ done

	Cursor rune // ▸ selected song
}

func New(palette *Palette) *Theme {
	if palette == nil {
		palette = Builtin()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Idle:  '·',
			Hit:   '●',
			Level: '█',
			Gap:   '░',

			Armed:      '○',
			Firing:     '▶',
			Terminated: '■',

			Cursor: '▸',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0
	RoleMuted   = 0.2
	RoleFG      = 0.4
	RoleAccent  = 0.55
	RoleActive  = 0.65
	RoleWarning = 0.8
	RoleSuccess = 1.0
)

func (t *Theme) FG() lipgloss.Color      { return t.Color(RoleFG) }
func (t *Theme) Accent() lipgloss.Color  { return t.Color(RoleAccent) }
func (t *Theme) Muted() lipgloss.Color   { return t.Color(RoleMuted) }
func (t *Theme) Active() lipgloss.Color  { return t.Color(RoleActive) }
func (t *Theme) Warning() lipgloss.Color { return t.Color(RoleWarning) }
func (t *Theme) Success() lipgloss.Color { return t.Color(RoleSuccess) }

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return lipgloss.Color(t.Palette.Lookup(norm).Hex())
}

// Lane returns a distinct color for an instrument lane
func (t *Theme) Lane(instrument int) lipgloss.Color {
	// walk the bright half of the palette
	steps := []float64{0.45, 0.6, 0.75, 0.9, 0.52, 0.68, 0.83, 1.0}
	return t.Color(steps[instrument%len(steps)])
}
