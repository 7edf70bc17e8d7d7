package tui

import "charm.land/lipgloss/v2"

var (
	tabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("245"))

	activeTabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("63"))

	streamingTabStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Foreground(lipgloss.Color("214"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	systemStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("243"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	disconnectedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("208"))

	inputPromptStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))
)
