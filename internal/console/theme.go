package console

import "github.com/charmbracelet/lipgloss"

// Session state colors.
var (
	ColorActive  = lipgloss.Color("#22c55e")
	ColorPaused  = lipgloss.Color("#d97706")
	ColorStopped = lipgloss.Color("#9ca3af")
	ColorClosed  = lipgloss.Color("#374151")
)

// UI chrome colors.
var (
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorDanger  = lipgloss.Color("#dc2626")
)

var (
	StyleHeader = lipgloss.NewStyle().Bold(true).Foreground(ColorBright)
	StyleDimmed = lipgloss.NewStyle().Foreground(ColorDimmed)
	StyleDanger = lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)
	StyleOK     = lipgloss.NewStyle().Foreground(ColorHealthy)

	StyleOverlay = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDanger).
			Padding(1, 4)
)

// StateColor maps a session state name to its color.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "active":
		return ColorActive
	case "paused":
		return ColorPaused
	case "stopped":
		return ColorStopped
	}
	return ColorClosed
}
