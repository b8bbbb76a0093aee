package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/crossdock/internal/client"
	"github.com/alfredjeanlab/crossdock/internal/ui"
	"github.com/spf13/cobra"
)

var receiveCmd = &cobra.Command{
	Use:     "receive",
	Short:   "Confirm inbound manifests volume by volume",
	GroupID: "scan",
}

// loadRequest builds a load from the command line: a single numeric
// argument selects one manifest, anything else is parsed as free text.
func loadRequest(args []string, ids string, stdin io.Reader) (*client.LoadRequest, error) {
	if ids == "" && len(args) == 1 {
		if id, err := strconv.ParseInt(args[0], 10, 64); err == nil && id > 0 {
			return &client.LoadRequest{ManifestID: id}, nil
		}
	}
	text := strings.TrimSpace(strings.Join(append(args, ids), "\n"))
	if text == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading manifest ids: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return nil, fmt.Errorf("no manifest ids given")
	}
	return &client.LoadRequest{IDs: text}, nil
}

var receiveLoadCmd = &cobra.Command{
	Use:   "load [manifest-id...]",
	Short: "Load one or more closed manifests for receiving",
	Long: `Load one or more closed manifests for receiving.

A single id loads that manifest. Several ids, or --ids text pasted from a
spreadsheet, load them together; invalid or unknown ids are reported and
skipped. With no arguments the ids are read from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := requireSession()
		if err != nil {
			return err
		}
		ids, _ := cmd.Flags().GetString("ids")
		req, err := loadRequest(args, ids, cmd.InOrStdin())
		if err != nil {
			return err
		}
		res, err := scanner.LoadReceiving(context.Background(), sid, req)
		if err != nil {
			return fmt.Errorf("loading manifests: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printLoadResult(cmd.OutOrStdout(), res)
		return nil
	},
}

var receiveScanCmd = &cobra.Command{
	Use:   "scan [key...]",
	Short: "Confirm volumes against the loaded manifests",
	Long: `Confirm volumes against the loaded manifests.

With no arguments, keys are read one per line from stdin until EOF.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := requireSession()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		prompt := ""
		if len(args) == 0 && ui.IsInteractive() {
			prompt = "receive> "
		}
		confirmed := 0
		rejected, err := scanLoop(ctx, args, cmd.InOrStdin(), cmd.OutOrStdout(), prompt,
			func(ctx context.Context, key string, out io.Writer) error {
				rc, err := scanner.ReceiveVolume(ctx, sid, key)
				if err != nil {
					return err
				}
				confirmed++
				printReceipt(out, rc)
				return nil
			})
		fmt.Fprintf(cmd.ErrOrStderr(), "%d confirmed, %d rejected\n", confirmed, rejected)
		return err
	},
}

var receiveProgressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show receiving progress per manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := requireSession()
		if err != nil {
			return err
		}
		res, err := api.Progress(context.Background(), sid)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printProgressTable(cmd.OutOrStdout(), res.Progress, res.Totals)
		return nil
	},
}

var receiveFinalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Check the loaded manifests for missing volumes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := requireSession()
		if err != nil {
			return err
		}
		res, err := scanner.FinalizeReceiving(context.Background(), sid)
		if err != nil {
			return fmt.Errorf("finalizing: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

var receiveClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Unload the receiving session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := requireSession()
		if err != nil {
			return err
		}
		if err := api.ClearReceiving(context.Background(), sid); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Receiving session cleared")
		return nil
	},
}

var receiveDiscrepancyCmd = &cobra.Command{
	Use:   "discrepancy <manifest-id>",
	Short: "Render the missing-volume report for a loaded manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := requireSession()
		if err != nil {
			return err
		}
		id, err := parseManifestID(args[0])
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		data, err := api.Discrepancy(context.Background(), sid, id, format)
		if err != nil {
			return err
		}
		return writeDocument(cmd.OutOrStdout(), data, format, output)
	},
}

func parseManifestID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid manifest id %q", s)
	}
	return id, nil
}

func init() {
	receiveLoadCmd.Flags().String("ids", "", "free text containing manifest ids")
	receiveDiscrepancyCmd.Flags().String("format", "text", "report format (text, html or xlsx)")
	receiveDiscrepancyCmd.Flags().StringP("output", "o", "", "write the report to a file")

	receiveCmd.AddCommand(receiveLoadCmd)
	receiveCmd.AddCommand(receiveScanCmd)
	receiveCmd.AddCommand(receiveProgressCmd)
	receiveCmd.AddCommand(receiveFinalizeCmd)
	receiveCmd.AddCommand(receiveClearCmd)
	receiveCmd.AddCommand(receiveDiscrepancyCmd)
}
