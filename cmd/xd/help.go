package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/alfredjeanlab/crossdock/internal/ui"
	"github.com/spf13/cobra"
)

var (
	// Unindented lines ending with ":" ("Scanning:", "Flags:").
	reGroupHeader = regexp.MustCompile(`(?m)^[A-Z][^\n]*:[ \t]*$`)

	// Two-space indent, a command name, then the description column.
	reCommand = regexp.MustCompile(`(?m)^(  )([a-z][\w-]*)(  )`)

	reDefault = regexp.MustCompile(`\(default [^)]*\)`)
)

// colorizedHelpFunc post-processes Cobra's help text with ANSI colors when
// stdout supports them.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		orig := cmd.OutOrStdout()
		if !ui.ShouldUseColor() || noColor {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(orig)
		fmt.Fprint(orig, colorizeHelpOutput(buf.String()))
	}
}

func colorizeHelpOutput(s string) string {
	s = reGroupHeader.ReplaceAllStringFunc(s, ui.RenderAccent)
	s = reCommand.ReplaceAllString(s, "${1}"+ui.RenderBig("${2}")+"${3}")
	return reDefault.ReplaceAllStringFunc(s, ui.RenderMuted)
}
