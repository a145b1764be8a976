package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title       lipgloss.Style
	header      lipgloss.Style
	destination lipgloss.Style
	selected    lipgloss.Style
	detail      lipgloss.Style
	warning     lipgloss.Style
	section     lipgloss.Style
	empty       lipgloss.Style
	label       lipgloss.Style
	succeeded   lipgloss.Style
	partial     lipgloss.Style
	failed      lipgloss.Style
	cancelled   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:       lipgloss.NewStyle().Bold(true),
		header:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		destination: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("250")),
		selected:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:      lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:     lipgloss.NewStyle().MarginTop(1),
		empty:       lipgloss.NewStyle().Faint(true),
		label:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		succeeded:   lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		partial:     lipgloss.NewStyle().Foreground(lipgloss.Color("221")),
		failed:      lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		cancelled:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}
