package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/stemsi/exstem-attempt/internal/attempt"
)

// Palette colors follow the usual exam-portal legend.
const (
	colorText    = "#E5E7EB"
	colorMuted   = "#9CA3AF"
	colorFaint   = "#4B5563"
	colorAccent  = "#60A5FA"
	colorSuccess = "#22C55E"
	colorWarning = "#F59E0B"
	colorDanger  = "#EF4444"
	colorMarked  = "#A855F7"
	colorSurface = "#1F2937"
)

var statusColors = map[attempt.Status]string{
	attempt.StatusNotVisited:     colorFaint,
	attempt.StatusNotAnswered:    colorDanger,
	attempt.StatusAnswered:       colorSuccess,
	attempt.StatusMarked:         colorMarked,
	attempt.StatusAnsweredMarked: colorAccent,
}

// styles holds the pre-built lipgloss styles used by the views.
type styles struct {
	Header   lipgloss.Style
	Title    lipgloss.Style
	Timer    lipgloss.Style
	TimerLow lipgloss.Style
	Text     lipgloss.Style
	Muted    lipgloss.Style
	Accent   lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Danger   lipgloss.Style
	Selected lipgloss.Style
	Box      lipgloss.Style
	Footer   lipgloss.Style
}

func newStyles() styles {
	return styles{
		Header: lipgloss.NewStyle().
			Background(lipgloss.Color(colorSurface)).
			Foreground(lipgloss.Color(colorText)).
			Padding(0, 1),
		Title:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorText)).Bold(true),
		Timer:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorSuccess)).Bold(true),
		TimerLow: lipgloss.NewStyle().Foreground(lipgloss.Color(colorDanger)).Bold(true).Blink(true),
		Text:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorText)),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)),
		Accent:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorSuccess)).Bold(true),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarning)),
		Danger:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorDanger)).Bold(true),
		Selected: lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)).Bold(true),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorFaint)).
			Padding(0, 1),
		Footer: lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted)),
	}
}

// paletteCell renders one palette entry: the 1-based number on the status
// color, reversed when it is the current question.
func paletteCell(n int, s attempt.Status, current bool) string {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#111827")).
		Background(lipgloss.Color(statusColors[s])).
		Width(4).
		Align(lipgloss.Center)
	if current {
		style = style.Bold(true).Underline(true)
	}
	return style.Render(itoa(n))
}
