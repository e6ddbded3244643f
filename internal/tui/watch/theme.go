// Package watch implements the `lanes queue watch` TUI: live dispatcher
// stats polled from /queues plus the task event stream from /events.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes styling for the watch TUI.
type Theme struct {
	StatusOK        lipgloss.Style
	StatusRunning   lipgloss.Style
	StatusFailed    lipgloss.Style
	StatusQueued    lipgloss.Style
	StatusDiscarded lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
	Selected  lipgloss.Style

	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
	Bar            lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusOK:        lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusQueued:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		StatusDiscarded: lipgloss.NewStyle().Foreground(lipgloss.Color("#D19A66")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Selected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")),

		TickerActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
		Bar:            lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
	}
}
