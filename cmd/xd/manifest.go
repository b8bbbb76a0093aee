package main

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/crossdock/internal/client"
	"github.com/spf13/cobra"
)

var manifestCmd = &cobra.Command{
	Use:     "manifest",
	Short:   "Inspect manifests",
	GroupID: "views",
}

var manifestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List manifests, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetStringSlice("status")
		origin, _ := cmd.Flags().GetString("origin")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		resp, err := api.ListManifests(context.Background(), &client.ListManifestsRequest{
			Status: status,
			Origin: origin,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printManifestTable(cmd.OutOrStdout(), resp.Manifests, resp.Total)
		return nil
	},
}

var manifestShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseManifestID(args[0])
		if err != nil {
			return err
		}
		m, err := api.GetManifest(context.Background(), id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), m)
		}
		printManifest(cmd.OutOrStdout(), m)
		return nil
	},
}

var manifestPrintCmd = &cobra.Command{
	Use:   "print <id>",
	Short: "Render the printable manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseManifestID(args[0])
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		data, err := api.PrintManifest(context.Background(), id, format)
		if err != nil {
			return fmt.Errorf("printing manifest %d: %w", id, err)
		}
		return writeDocument(cmd.OutOrStdout(), data, format, output)
	},
}

var manifestEventsCmd = &cobra.Command{
	Use:   "events <id>",
	Short: "Show the event history of a manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseManifestID(args[0])
		if err != nil {
			return err
		}
		evts, err := api.GetEvents(context.Background(), id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), evts)
		}
		printEvents(cmd.OutOrStdout(), evts)
		return nil
	},
}

func init() {
	manifestListCmd.Flags().StringSlice("status", nil, "filter by status (open, closed)")
	manifestListCmd.Flags().String("origin", "", "filter by origin site")
	manifestListCmd.Flags().Int("limit", 50, "maximum number of manifests")
	manifestListCmd.Flags().Int("offset", 0, "number of manifests to skip")
	manifestPrintCmd.Flags().String("format", "text", "print format (text, html or xlsx)")
	manifestPrintCmd.Flags().StringP("output", "o", "", "write the printout to a file")

	manifestCmd.AddCommand(manifestListCmd)
	manifestCmd.AddCommand(manifestShowCmd)
	manifestCmd.AddCommand(manifestPrintCmd)
	manifestCmd.AddCommand(manifestEventsCmd)
}
