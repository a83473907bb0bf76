package tui

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the mixer until the user quits
func Run(ctrl Controller, title string, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(NewModel(ctrl, title),
		tea.WithAltScreen(),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	_, err := p.Run()
	return err
}
