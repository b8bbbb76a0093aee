package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alfredjeanlab/crossdock/internal/client"
	"github.com/alfredjeanlab/crossdock/internal/dispatch"
	"github.com/alfredjeanlab/crossdock/internal/reconcile"
	"github.com/alfredjeanlab/crossdock/internal/ui"
)

// scanFunc submits one key and writes the outcome to out.
type scanFunc func(ctx context.Context, key string, out io.Writer) error

// scanLoop feeds keys to fn: the given args, or else one per input line
// until EOF. Rejections are reported and the loop continues; any other
// error stops it. It returns the number of rejected scans.
func scanLoop(ctx context.Context, args []string, in io.Reader, out io.Writer, prompt string, fn scanFunc) (int, error) {
	rejected := 0
	handle := func(key string) error {
		err := fn(ctx, key, out)
		if err == nil {
			return nil
		}
		if client.ReasonOf(err) == "" {
			return err
		}
		rejected++
		ui.Bell(out)
		fmt.Fprintln(out, ui.RenderError("✗ "+rejectionMessage(err)))
		return nil
	}

	if len(args) > 0 {
		for _, key := range args {
			if err := handle(key); err != nil {
				return rejected, err
			}
		}
		return rejected, nil
	}

	lines := bufio.NewScanner(in)
	for {
		if prompt != "" {
			fmt.Fprint(out, ui.RenderMuted(prompt))
		}
		if !lines.Scan() {
			break
		}
		key := strings.TrimSpace(lines.Text())
		if key == "" {
			continue
		}
		if err := handle(key); err != nil {
			return rejected, err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return rejected, lines.Err()
}

func rejectionMessage(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func printAck(out io.Writer, key string, ack *dispatch.Ack) {
	line := fmt.Sprintf("✓ %s  %s", ui.RenderBig(ack.Suffix), ui.RenderMuted(key))
	if ack.Destination != "" {
		line += "  → " + ack.Destination
		if ack.Branch != "" {
			line += " (" + ack.Branch + ")"
		}
	}
	fmt.Fprintln(out, ui.RenderOK(line))
	if ack.Warning != "" {
		fmt.Fprintln(out, ui.RenderWarn("  ! "+ack.Warning))
	}
}

func printReceipt(out io.Writer, r *reconcile.Receipt) {
	p := r.Progress
	fmt.Fprintf(out, "%s  %s\n",
		ui.RenderOK(fmt.Sprintf("✓ %s", r.Key)),
		ui.RenderMuted(fmt.Sprintf("manifest %d: %d/%d, %d missing", r.ManifestID, p.Confirmed, p.Expected, p.Missing)))
}
