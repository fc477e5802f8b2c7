package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Subtle  lipgloss.Style
	OK      lipgloss.Style
	Warn    lipgloss.Style
	Bad     lipgloss.Style
	Panel   lipgloss.Style
	heatLow lipgloss.Style
	heatMid lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Text).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(t.Muted),
		Label:  lipgloss.NewStyle().Foreground(t.Muted),
		Value:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Subtle: lipgloss.NewStyle().Foreground(t.Muted),
		OK:     lipgloss.NewStyle().Bold(true).Foreground(t.Success),
		Warn:   lipgloss.NewStyle().Bold(true).Foreground(t.Warning),
		Bad:    lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Muted).
			Padding(0, 1),
		heatLow: lipgloss.NewStyle().Foreground(t.Muted),
		heatMid: lipgloss.NewStyle().Foreground(t.Accent),
	}
}

// ProgressBar renders a bar of the given width filled to fraction.
func (s Styles) ProgressBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	switch {
	case fraction > 0.8:
		return s.OK.Render(bar)
	case fraction > 0.4:
		return s.Warn.Render(bar)
	}
	return s.Subtle.Render(bar)
}

// Heat renders |v| relative to scale as one block character.
func (s Styles) Heat(v, scale float64) string {
	chars := []rune{' ', '░', '▒', '▓', '█'}
	if scale <= 0 {
		return string(chars[0])
	}
	norm := v / scale
	if norm < 0 {
		norm = -norm
	}
	idx := int(norm * float64(len(chars)-1))
	if idx >= len(chars) {
		idx = len(chars) - 1
	}
	c := string(chars[idx])
	switch {
	case norm > 0.66:
		return s.Value.Render(c)
	case norm > 0.33:
		return s.heatMid.Render(c)
	}
	return s.heatLow.Render(c)
}

func Separator(s Styles, width int) string {
	return s.Subtle.Render(strings.Repeat("─", width))
}
