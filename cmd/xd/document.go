package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var errBinaryToTerminal = errors.New("refusing to write a spreadsheet to the terminal (use --output)")

// writeDocument writes a rendered manifest or discrepancy report to output,
// or to w when output is empty.
func writeDocument(w io.Writer, data []byte, format, output string) error {
	if output == "" {
		if format == "xlsx" {
			if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				return errBinaryToTerminal
			}
		}
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes)\n", output, len(data))
	return nil
}
