package viz

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors of every rendered report.
type Theme struct {
	Name    string
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Text    lipgloss.Color
	Muted   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
}

var (
	ThemeTerminal = Theme{
		Name:    "terminal",
		Primary: lipgloss.Color("#00ccff"),
		Accent:  lipgloss.Color("#ffcc00"),
		Text:    lipgloss.Color("#e0e0e0"),
		Muted:   lipgloss.Color("#777788"),
		Success: lipgloss.Color("#00ff88"),
		Warning: lipgloss.Color("#ffaa00"),
		Error:   lipgloss.Color("#ff4444"),
	}

	ThemeMinimal = Theme{
		Name:    "minimal",
		Primary: lipgloss.Color("#ffffff"),
		Accent:  lipgloss.Color("#0088ff"),
		Text:    lipgloss.Color("#ffffff"),
		Muted:   lipgloss.Color("#888888"),
		Success: lipgloss.Color("#00ff00"),
		Warning: lipgloss.Color("#ffaa00"),
		Error:   lipgloss.Color("#ff0000"),
	}

	ThemePaper = Theme{
		Name:    "paper",
		Primary: lipgloss.Color("#1a1a80"),
		Accent:  lipgloss.Color("#a05000"),
		Text:    lipgloss.Color("#202020"),
		Muted:   lipgloss.Color("#707070"),
		Success: lipgloss.Color("#007700"),
		Warning: lipgloss.Color("#aa6600"),
		Error:   lipgloss.Color("#bb0000"),
	}

	Themes = []Theme{ThemeTerminal, ThemeMinimal, ThemePaper}
)

// GetTheme returns a theme by name, falling back to the terminal theme.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemeTerminal
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}
