package main

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/crossdock/internal/client"
	"github.com/spf13/cobra"
)

var volumesCmd = &cobra.Command{
	Use:     "volumes",
	Short:   "List recorded volumes, most recent first",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, _ := cmd.Flags().GetInt64Slice("manifest")
		received, _ := cmd.Flags().GetString("received")
		sort, _ := cmd.Flags().GetString("sort")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		switch received {
		case "", "true", "false":
		default:
			return fmt.Errorf("--received must be true or false, got %q", received)
		}

		resp, err := api.ListVolumes(context.Background(), &client.ListVolumesRequest{
			ManifestIDs: ids,
			Received:    received,
			Sort:        sort,
			Limit:       limit,
			Offset:      offset,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printVolumeTable(cmd.OutOrStdout(), resp.Volumes, resp.Total)
		return nil
	},
}

var inventoryCmd = &cobra.Command{
	Use:     "inventory <key>",
	Short:   "Look up the destination of a volume in the inventory system",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := api.LookupInventory(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), l)
		}
		printInventory(cmd.OutOrStdout(), l)
		return nil
	},
}

func init() {
	volumesCmd.Flags().Int64Slice("manifest", nil, "restrict to these manifest ids")
	volumesCmd.Flags().String("received", "", "true for received volumes only, false for pending only")
	volumesCmd.Flags().String("sort", "", "sort field, prefix with - for descending (e.g. -received_at)")
	volumesCmd.Flags().Int("limit", 100, "maximum number of volumes")
	volumesCmd.Flags().Int("offset", 0, "number of volumes to skip")
}
