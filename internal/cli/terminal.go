package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// TerminalDetector decides whether output goes to an interactive terminal
type TerminalDetector interface {
	IsTerminal(fd int) bool
}

// DefaultTerminalDetector is the default implementation using golang.org/x/term
type DefaultTerminalDetector struct{}

// IsTerminal implements TerminalDetector interface
func (d *DefaultTerminalDetector) IsTerminal(fd int) bool {
	isTerminal := term.IsTerminal(fd)
	slog.Debug("terminal detection result", "fd", fd, "is_terminal", isTerminal)
	return isTerminal
}

// isInteractive reports whether both ends of the mixer UI are a terminal.
// Writers that are not files, such as test buffers, never are.
func (c *CLI) isInteractive(in io.Reader, out io.Writer) bool {
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}

	inFile, ok := in.(*os.File)
	if !ok {
		return false
	}
	outFile, ok := out.(*os.File)
	if !ok {
		return false
	}
	return c.terminalDetector.IsTerminal(int(inFile.Fd())) &&
		c.terminalDetector.IsTerminal(int(outFile.Fd()))
}
