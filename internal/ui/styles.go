// Package ui styles operator-facing terminal output. Scan feedback must be
// readable at arm's length, so outcomes get distinct colors and rejections
// ring the terminal bell.
package ui

import (
	"fmt"
	"io"
)

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorOK     = 71  // green
	colorWarn   = 178 // amber
	colorError  = 167 // red
	colorMuted  = 245 // medium gray
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderOK marks an accepted scan.
func RenderOK(s string) string { return paint(colorOK, s) }

// RenderWarn marks a degraded but accepted outcome.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderError marks a rejected scan.
func RenderError(s string) string { return paint(colorError, s) }

// RenderMuted returns s in gray.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderBig returns the acknowledgement suffix in bold, for reading from a
// distance.
func RenderBig(s string) string {
	if noColor {
		return s
	}
	return "\x1b[1m" + s + "\x1b[0m"
}

// Bell writes the terminal bell to w unless color output is disabled.
func Bell(w io.Writer) {
	if !noColor {
		fmt.Fprint(w, "\a")
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
