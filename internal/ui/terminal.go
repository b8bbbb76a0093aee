package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether stdout should get ANSI colors. It honors
// NO_COLOR, CLICOLOR_FORCE and CLICOLOR before falling back to TTY detection.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsInteractive reports whether stdin is a terminal, i.e. an operator is
// typing or a keyboard-wedge scanner is attached.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Width returns the terminal width of stdout, or fallback when unknown.
func Width(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}
