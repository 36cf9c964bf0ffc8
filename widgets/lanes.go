package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderMeter draws a horizontal bar filled to value/limit
func RenderMeter(value, limit, width int, fill, gap rune, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	n := 0
	if limit > 0 {
		n = value * width / limit
	}
	n = min(max(n, 0), width)
	bar := strings.Repeat(string(fill), n)
	rest := strings.Repeat(string(gap), width-n)
	return lipgloss.NewStyle().Foreground(color).Render(bar) + rest
}

// RenderFlash shows on when a lane fired recently and off otherwise
func RenderFlash(lit bool, on, off rune, color lipgloss.Color) string {
	if !lit {
		return string(off)
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render(string(on))
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// RenderKeyLine formats key bindings on a single line
func RenderKeyLine(keys []KeyBinding) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.Key + ":" + k.Desc
	}
	return strings.Join(parts, "  ")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
