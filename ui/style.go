package ui

import (
	"fmt"

	"vintage-mod-manager/compat"

	"github.com/charmbracelet/lipgloss"
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	MutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// Colorize applies the given color to the text using lipgloss.
// color is an ANSI color number or a hex string like "#ff8800".
func Colorize(text string, color string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(text)
}

// ConfidenceBadge renders the effective tag with a color for how it was
// chosen: green when exact, yellow for a range fallback, red for a default.
func ConfidenceBadge(eff compat.Effective) string {
	if eff.Tag == "" {
		return ErrorStyle.Render("unknown game version")
	}
	text := fmt.Sprintf("%s (%s)", eff.Tag, eff.Confidence)
	switch eff.Confidence {
	case compat.Exact:
		return SuccessStyle.Render(text)
	case compat.RangeFallback:
		return WarningStyle.Render(text)
	default:
		return ErrorStyle.Render(text)
	}
}
