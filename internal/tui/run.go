package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run dials addr and drives the debugger UI until the user quits or the
// connection drops.
func Run(addr string) error {
	client, err := Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	p := tea.NewProgram(New(client, addr), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
