package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// ClearScreen moves the cursor home and clears the terminal.
const ClearScreen = "\033[H\033[2J"

// IsTerminal reports whether f is connected to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ConfigureOutput drops colors when out is not a terminal or NO_COLOR is set.
func ConfigureOutput(out *os.File) {
	if !IsTerminal(out) || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
