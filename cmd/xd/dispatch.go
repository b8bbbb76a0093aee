package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/alfredjeanlab/crossdock/internal/ui"
	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:     "dispatch",
	Short:   "Build and close outbound manifests",
	GroupID: "scan",
}

var dispatchOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a new manifest at the operator's site",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := requireSession()
		if err != nil {
			return err
		}
		dest, _ := cmd.Flags().GetString("destination")
		m, err := scanner.OpenManifest(context.Background(), sid, dest)
		if err != nil {
			return fmt.Errorf("opening manifest: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), m)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Opened manifest %s at %s\n",
			ui.RenderBig(fmt.Sprint(m.ID)), m.OriginSite.Label())
		return nil
	},
}

var dispatchScanCmd = &cobra.Command{
	Use:   "scan [key...]",
	Short: "Record volumes into the open manifest",
	Long: `Record volumes into the open manifest.

With no arguments, keys are read one per line from stdin until EOF, which
suits keyboard-wedge barcode scanners. Rejected scans ring the bell and
scanning continues.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := requireSession()
		if err != nil {
			return err
		}
		dest, _ := cmd.Flags().GetString("destination")
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		prompt := ""
		if len(args) == 0 && ui.IsInteractive() {
			prompt = "dispatch> "
		}
		accepted := 0
		rejected, err := scanLoop(ctx, args, cmd.InOrStdin(), cmd.OutOrStdout(), prompt,
			func(ctx context.Context, key string, out io.Writer) error {
				ack, err := scanner.RecordVolume(ctx, sid, key, dest)
				if err != nil {
					return err
				}
				accepted++
				printAck(out, key, ack)
				return nil
			})
		fmt.Fprintf(cmd.ErrOrStderr(), "%d recorded, %d rejected\n", accepted, rejected)
		return err
	},
}

var dispatchCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the open manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := requireSession()
		if err != nil {
			return err
		}
		ctx := context.Background()
		m, err := scanner.CloseManifest(ctx, sid)
		if err != nil {
			return fmt.Errorf("closing manifest: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), m)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Closed manifest %d\n", m.ID)

		if doPrint, _ := cmd.Flags().GetBool("print"); doPrint {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			data, err := api.PrintManifest(ctx, m.ID, format)
			if err != nil {
				return fmt.Errorf("printing manifest %d: %w", m.ID, err)
			}
			return writeDocument(cmd.OutOrStdout(), data, format, output)
		}
		return nil
	},
}

var dispatchDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Forget the open manifest in this session",
	Long: `Forget the open manifest in this session.

The manifest itself stays open on the server with the volumes recorded so
far; only the session lets go of it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := requireSession()
		if err != nil {
			return err
		}
		entry, err := api.DiscardManifest(context.Background(), sid)
		if err != nil {
			return fmt.Errorf("discarding manifest: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entry)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Discarded dispatch context")
		return nil
	},
}

func init() {
	dispatchOpenCmd.Flags().String("destination", "", "default destination for volumes without an inventory match")
	dispatchScanCmd.Flags().String("destination", "", "destination recorded for these volumes")
	dispatchCloseCmd.Flags().Bool("print", false, "print the manifest after closing")
	dispatchCloseCmd.Flags().String("format", "text", "print format (text, html or xlsx)")
	dispatchCloseCmd.Flags().StringP("output", "o", "", "write the printout to a file")

	dispatchCmd.AddCommand(dispatchOpenCmd)
	dispatchCmd.AddCommand(dispatchScanCmd)
	dispatchCmd.AddCommand(dispatchCloseCmd)
	dispatchCmd.AddCommand(dispatchDiscardCmd)
}
