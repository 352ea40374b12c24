package main

import "github.com/charmbracelet/lipgloss"

var (
	cyan   = lipgloss.Color("#5FD7FF")
	green  = lipgloss.Color("#87D787")
	amber  = lipgloss.Color("#FFAF5F")
	red    = lipgloss.Color("#FF5F5F")
	muted  = lipgloss.Color("#8A8A8A")
	border = lipgloss.Color("#444444")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(cyan)
	stateStyle = lipgloss.NewStyle().Foreground(muted)
	errorStyle = lipgloss.NewStyle().Foreground(red)
	infoStyle  = lipgloss.NewStyle().Foreground(green)
	waitStyle  = lipgloss.NewStyle().Foreground(amber)
	helpStyle  = lipgloss.NewStyle().Foreground(muted).Italic(true)
	labelStyle = lipgloss.NewStyle().Width(12).Foreground(muted)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1)

	inboxStyle = paneStyle.Width(36)
)
