package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"perp-mm/internal/bot"
)

// Run starts the monitor program, blocking until the user quits.
func Run(snapshots <-chan bot.Snapshot) error {
	_, err := tea.NewProgram(New(snapshots)).Run()
	return err
}
